package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/transport"
	"github.com/frahmantamala/disbursement/pkg/logger"
)

// LoadOpenAPI reads and validates the API document. Server entries are
// dropped; routes are matched relative to the mount prefix instead.
func LoadOpenAPI(path string) (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	doc.Servers = nil
	return doc, nil
}

// OpenAPIValidator rejects requests whose parameters or body do not match the
// document. Requests for paths the document does not describe pass through.
func OpenAPIValidator(doc *openapi3.T, prefix string, lg *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	base := transport.NewBaseHandler(lg)
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			probe := r.Clone(r.Context())
			probe.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)

			route, pathParams, err := router.FindRoute(probe)
			if err != nil {
				if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
					next.ServeHTTP(w, r)
					return
				}
				base.HandleServiceError(w, err)
				return
			}

			err = openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
				Request:    probe,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			})
			// the validator drains and replaces the body on the probe
			r.Body = probe.Body
			if err != nil {
				logger.From(r.Context()).Info("request rejected by schema", "path", r.URL.Path, "error", err)
				base.HandleError(w, internal.NewValidationError("request does not match the API schema", internal.ErrCodeValidationFailed).
					WithDetails(map[string]string{"reason": err.Error()}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
