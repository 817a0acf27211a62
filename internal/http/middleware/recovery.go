package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/domain"
	applog "github.com/headcorn/dashboard-api/internal/logger"
	"go.uber.org/zap"
)

// Recovery turns panics into a 500 JSON response
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log := applog.WithRequest(logger, r.Method, r.URL.Path, RequestIDFromContext(r.Context()))
				if userCtx, ok := auth.FromContext(r.Context()); ok {
					log = applog.WithUser(log, userCtx.Email, userCtx.FullName)
				}
				log.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(domain.APIError{
					Type:   domain.ErrorTypeInternal,
					Title:  http.StatusText(http.StatusInternalServerError),
					Status: http.StatusInternalServerError,
					Detail: "Internal server error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
