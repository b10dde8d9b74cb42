// Package middleware provides the net/http middleware chain for
// internal/httpapi, translated from the teacher's
// services/gateway-svc/internal/middleware grpc.UnaryServerInterceptor
// chain into func(http.Handler) http.Handler form.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	requestIDKey contextKey = "request_id"
)

// UserID extracts the authenticated caller's id from ctx, set by Auth.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(userIDKey).(uuid.UUID)
	return v, ok
}

// WithUserID attaches an authenticated caller's id to ctx.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// RequestID extracts the per-request id from ctx, set by Logging.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// generateRequestID produces a short random id for request correlation.
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
