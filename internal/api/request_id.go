package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "x-request-id"

const maxRequestIDLength = 128

type requestIDKey struct{}

// RequestIDMiddleware gives every request an ID, echoes it in the response
// and puts a logger carrying it into the request context. Anything logging
// through RequestLogger or zerolog.Ctx tags its lines with the ID.
func RequestIDMiddleware(logger *zerolog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = &log.Logger
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			requestLogger := logger.With().Str("request_id", requestID).Logger()
			ctx := WithRequestID(r.Context(), requestID)
			ctx = requestLogger.WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestID stores requestID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// RequestLogger returns the request-scoped logger, falling back to the
// global logger outside RequestIDMiddleware.
func RequestLogger(r *http.Request) *zerolog.Logger {
	if r != nil {
		if logger := zerolog.Ctx(r.Context()); logger.GetLevel() != zerolog.Disabled {
			return logger
		}
	}
	return &log.Logger
}
