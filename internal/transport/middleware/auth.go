package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/auth"
	"github.com/frahmantamala/disbursement/internal/transport"
	"github.com/frahmantamala/disbursement/pkg/logger"
)

// Authenticate verifies the bearer token and stores the operator in the
// request context.
func Authenticate(verifier auth.TokenVerifierAPI, lg *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(transport.BearerToken(r))
			if token == "" {
				base.HandleError(w, internal.ErrInvalidToken)
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.From(r.Context()).Warn("token rejected", "error", err)
				base.HandleServiceError(w, err)
				return
			}

			ctx := auth.ContextWithOperator(r.Context(), auth.Operator{
				Subject:     claims.Subject,
				Permissions: claims.Permissions,
			})
			ctx = logger.With(ctx, "actor", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
