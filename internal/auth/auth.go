package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/disbursement/internal"
)

// Operator permissions carried in the "permissions" claim.
const (
	PermCreateBatches  = "create_batches"
	PermViewBatches    = "view_batches"
	PermManageBatches  = "manage_batches"
	PermRetryPayments  = "retry_payments"
	PermManagePayments = "manage_payments"
	PermReconcile      = "reconcile"
	PermViewAudit      = "view_audit"
	PermAdmin          = "admin"
)

var AllPermissions = []string{
	PermCreateBatches,
	PermViewBatches,
	PermManageBatches,
	PermRetryPayments,
	PermManagePayments,
	PermReconcile,
	PermViewAudit,
	PermAdmin,
}

// Claims represents operator token claims. Tokens are issued by the identity
// provider; this service only verifies them.
type Claims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Operator is the authenticated caller of an API request.
type Operator struct {
	Subject     string
	Permissions []string
}

type TokenVerifierAPI interface {
	VerifyToken(tokenString string) (*Claims, error)
}

// ContextWithOperator stores the operator so services record it as the actor.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	ctx = internal.ContextWithActor(ctx, op.Subject)
	return internal.ContextWithPermissions(ctx, op.Permissions)
}

// OperatorFromContext returns the operator of the request, if authenticated.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	perms := internal.PermissionsFromContext(ctx)
	actor := internal.ActorFromContext(ctx)
	if perms == nil || actor == internal.SystemActor {
		return Operator{}, false
	}
	return Operator{Subject: actor, Permissions: perms}, true
}
