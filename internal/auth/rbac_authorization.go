package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/transport"
)

// RBACAuthorization guards routes by the permissions of the authenticated
// operator.
type RBACAuthorization struct {
	*transport.BaseHandler
	checker PermissionChecker
}

func NewRBACAuthorization(checker PermissionChecker, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		checker:     checker,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok := OperatorFromContext(r.Context())
		if !ok {
			ra.Logger.WarnContext(r.Context(), "authorization check failed: operator not found in context")
			ra.HandleError(w, internal.ErrInvalidToken)
			return
		}

		if !ra.checker.HasPermission(op.Permissions, permission) {
			ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"actor", op.Subject,
				"required_permission", permission,
				"operator_permissions", op.Permissions)
			ra.HandleError(w, internal.ErrUnauthorizedAccess)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, permission)
	}
}
