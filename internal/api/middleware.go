package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/http/response"
	"github.com/fitmentiq/fitment-server/internal/store"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const contextKeyTenant contextKey = "tenant"

// resolveTenant is middleware that resolves the {slug} route parameter to a
// tenant and attaches it to the request context.
func (s *Server) resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		if slug == "" {
			response.BadRequest(w, "missing tenant slug", s.logger)
			return
		}

		tenant, err := s.store.GetTenantBySlug(r.Context(), slug)
		if err != nil {
			if err == store.ErrNotFound {
				response.NotFound(w, "tenant not found", s.logger)
				return
			}
			response.HandleError(w, err, s.logger)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyTenant, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFrom extracts the resolved tenant from request context.
func tenantFrom(ctx context.Context) *domain.Tenant {
	if tenant, ok := ctx.Value(contextKeyTenant).(*domain.Tenant); ok {
		return tenant
	}
	return nil
}
