package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"runcore/internal/platform/apperror"
)

// TokenVerifier validates a bearer access token and returns the caller's
// user id, satisfied by *auth.Service.VerifyAccessToken.
type TokenVerifier interface {
	VerifyAccessToken(tokenString string) (uuid.UUID, error)
}

// Auth extracts a Bearer token from the Authorization header, verifies it,
// and injects the caller's user id into the request context, mirroring the
// teacher's AuthInterceptor's Bearer-extraction-then-validate shape.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				apperror.WriteHTTP(w, apperror.ErrAuthExpired)
				return
			}

			token := strings.TrimPrefix(header, prefix)
			userID, err := verifier.VerifyAccessToken(token)
			if err != nil {
				apperror.WriteHTTP(w, apperror.ErrAuthExpired)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
