package reconciliation

import (
	"context"

	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/disbursement/internal/fsp"
)

type Reason string

const (
	ReasonAmountMismatch      Reason = "AMOUNT_MISMATCH"
	ReasonProviderUnconfirmed Reason = "PROVIDER_UNCONFIRMED"
	ReasonDuplicateSettlement Reason = "DUPLICATE_SETTLEMENT"
)

// DefaultRefreshConcurrency bounds the provider status checks of one run.
const DefaultRefreshConcurrency = 8

type BatchLookup interface {
	GetByID(ctx context.Context, id string) (*payment.PaymentBatch, error)
}

type PaymentSource interface {
	ListByBatch(ctx context.Context, batchID string) ([]*payment.Payment, error)
}

// ProviderLookup finds the adapter that settled a payment. The fsp.Registry
// satisfies it.
type ProviderLookup interface {
	Get(code string) (fsp.Adapter, fsp.Profile, bool)
}

type RepositoryAPI interface {
	// Save supersedes earlier results of the batch, stores result and writes
	// records in one transaction.
	Save(ctx context.Context, result *reconciliation.Result, records ...audit.Record) error
	Latest(ctx context.Context, batchID string) (*reconciliation.Result, error)
	History(ctx context.Context, batchID string) ([]*reconciliation.Result, error)
}

type ServiceAPI interface {
	Reconcile(ctx context.Context, batchID, actor string) (*View, error)
	Latest(ctx context.Context, batchID string) (*View, error)
	History(ctx context.Context, batchID string) ([]*View, error)
}
