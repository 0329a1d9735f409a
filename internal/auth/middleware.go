package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rethread-erp/rethread-erp/internal/platform/httpx"
)

// Middleware authenticates requests with a bearer API token and stores the
// actor id on the context.
func Middleware(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			bearer, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || bearer == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			actorID, err := service.Authenticate(r.Context(), bearer)
			if err != nil {
				logger.Warn("rejected token", slog.String("remote", r.RemoteAddr))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actorID)))
		})
	}
}
