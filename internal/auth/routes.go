package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/api"
	"github.com/strefethen/room-combine-go/internal/apperrors"
	"github.com/strefethen/room-combine-go/internal/config"
)

// PINSource supplies the current unlock PIN. It changes when the topology
// is replaced.
type PINSource interface {
	UnlockPIN(ctx context.Context) (string, error)
}

// RegisterRoutes wires auth routes to the router.
func RegisterRoutes(router chi.Router, pins PINSource, cfg config.Config, logger *zerolog.Logger) {
	if logger == nil {
		logger = &log.Logger
	}
	authLogger := logger.With().Str("component", "auth").Logger()

	router.Method(http.MethodPost, "/v1/auth/unlock", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			PIN        string `json:"pin"`
			DeviceName string `json:"device_name"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.PIN == "" {
			return apperrors.NewValidationError("pin is required", nil)
		}
		if body.DeviceName == "" {
			body.DeviceName = "Operator Panel"
		}

		expected, err := pins.UnlockPIN(r.Context())
		if err != nil {
			return apperrors.NewServiceUnavailableError("Unlock is not available")
		}
		if !pinMatches(expected, body.PIN) {
			authLogger.Warn().Str("device_name", body.DeviceName).Str("request_id", api.RequestIDFromContext(r.Context())).Msg("unlock rejected")
			return apperrors.NewUnauthorizedError("Invalid PIN", apperrors.ErrorCodeInvalidPIN)
		}

		tokens, err := GenerateTokenPair(cfg, TokenPayload{
			Sub:        uuid.NewString(),
			DeviceName: body.DeviceName,
			Scope:      ScopeOperate,
			Unlock:     UnlockFingerprint(cfg, expected),
		})
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token pair")
		}
		authLogger.Info().Str("device_name", body.DeviceName).Msg("panel unlocked")

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_pair",
			"access_token":   tokens.AccessToken,
			"refresh_token":  tokens.RefreshToken,
			"expires_in_sec": tokens.ExpiresInSec,
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}
		if body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		pin, err := pins.UnlockPIN(r.Context())
		if err != nil {
			return apperrors.NewServiceUnavailableError("Unlock is not available")
		}
		accessToken, expiresIn, err := RefreshAccessToken(cfg, body.RefreshToken, pin)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
			case errors.Is(err, ErrTokenRevoked):
				return apperrors.NewUnauthorizedError("Panel must be unlocked again", apperrors.ErrorCodeAuthTokenInvalid)
			case errors.Is(err, ErrTokenType):
				return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			default:
				return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			}
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": expiresIn,
		})
	}))
}

// pinMatches compares in constant time. An empty configured PIN never matches.
func pinMatches(expected, given string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
