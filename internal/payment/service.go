package payment

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/events"
)

type Service struct {
	repo      RepositoryAPI
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToView(p), nil
}

func (s *Service) ListByBatch(ctx context.Context, batchID string) ([]*View, error) {
	payments, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return ToViews(payments), nil
}

// Hold keeps a PENDING payment out of dispatch until it is released.
func (s *Service) Hold(ctx context.Context, id, reason, actor string) (*View, error) {
	p, err := s.repo.Transition(ctx, id, Transition{
		From:        StatusPending,
		To:          StatusOnHold,
		Event:       audit.EventPaymentOnHold,
		Actor:       actor,
		Description: reason,
	})
	if err != nil {
		s.logger.Warn("failed to hold payment", "payment_id", id, "actor", actor, "error", err)
		return nil, err
	}

	s.logger.Info("payment put on hold", "payment_id", id, "actor", actor, "reason", reason)
	return ToView(p), nil
}

func (s *Service) Release(ctx context.Context, id, actor string) (*View, error) {
	p, err := s.repo.Transition(ctx, id, Transition{
		From:  StatusOnHold,
		To:    StatusPending,
		Event: audit.EventPaymentReleased,
		Actor: actor,
	})
	if err != nil {
		s.logger.Warn("failed to release payment", "payment_id", id, "actor", actor, "error", err)
		return nil, err
	}

	s.logger.Info("payment released", "payment_id", id, "actor", actor)
	return ToView(p), nil
}

// Refund records that a completed payment was reversed by the provider.
func (s *Service) Refund(ctx context.Context, id, reason, actor string) (*View, error) {
	p, err := s.repo.Transition(ctx, id, Transition{
		From:        StatusCompleted,
		To:          StatusRefunded,
		Event:       audit.EventPaymentRefunded,
		Actor:       actor,
		Description: reason,
	})
	if err != nil {
		s.logger.Warn("failed to refund payment", "payment_id", id, "actor", actor, "error", err)
		return nil, err
	}

	s.logger.Info("payment refunded", "payment_id", id, "actor", actor, "reason", reason)

	if s.publisher != nil {
		event := events.NewPaymentEvent(events.EventTypePaymentRefunded, p.ID, p.Reference, p.BatchID,
			p.BeneficiaryID, p.Amount.StringFixed(2), p.Currency, p.Status, reason)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish refund event", "payment_id", id, "error", err)
		}
	}
	return ToView(p), nil
}
