package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/room-combine-go/internal/api"
	"github.com/strefethen/room-combine-go/internal/apperrors"
	"github.com/strefethen/room-combine-go/internal/config"
)

var publicRoutes = map[string]struct{}{
	"/v1/auth/unlock":  {},
	"/v1/auth/refresh": {},
	"/v1/feedback":     {},
}

var publicPrefixes = []string{
	"/v1/health",
}

type contextKey string

const userKey contextKey = "authUser"

// User is an unlocked operator panel or client.
type User struct {
	Sub        string
	DeviceName string
	Type       TokenType
	Scope      string
}

// UserFromContext returns the authenticated user, if present.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	user, ok := ctx.Value(userKey).(User)
	return user, ok
}

// Middleware validates JWT tokens on routes that change the room. Reads are
// open so the panel can render without unlocking; the codec posts feedback
// without a token. A token must carry ScopeOperate and the fingerprint of
// the current unlock PIN, so replacing the PIN locks every panel again.
func Middleware(cfg config.Config, pins PINSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if isTestModeRequest(r, cfg) {
				user := User{
					Sub:        "test-device",
					DeviceName: "Test Device",
					Type:       TokenTypeAccess,
					Scope:      ScopeOperate,
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Missing Authorization header"))
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid Authorization header format"))
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid Authorization header format"))
				return
			}

			payload, err := VerifyToken(cfg, token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
					return
				}
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			if payload.Type != TokenTypeAccess {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token type", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			pin, err := pins.UnlockPIN(r.Context())
			if err != nil {
				api.WriteError(w, r, apperrors.NewServiceUnavailableError("Unlock is not available"))
				return
			}
			if err := CheckUnlock(cfg, payload, pin); err != nil {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Panel must be unlocked again", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			user := User{
				Sub:        payload.Sub,
				DeviceName: payload.DeviceName,
				Type:       payload.Type,
				Scope:      payload.Scope,
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isPublicRoute(path string) bool {
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isTestModeRequest(r *http.Request, cfg config.Config) bool {
	if !cfg.AllowTestMode {
		return false
	}
	if cfg.NodeEnv != "development" {
		return false
	}
	return r.Header.Get("x-test-mode") == "true"
}
