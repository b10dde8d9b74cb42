package middleware

import (
	"net/http"

	"runcore/internal/platform/apperror"
	"runcore/internal/platform/logger"
)

// Recover turns a panicking handler into a 500 INTERNAL_ERROR response
// instead of tearing down the whole server process.
func Recover() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered in http handler", "path", r.URL.Path, "panic", rec)
					apperror.WriteHTTP(w, apperror.New(apperror.CodeInternal, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
