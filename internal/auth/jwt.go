package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strefethen/room-combine-go/internal/config"
)

// TokenType describes access vs refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ScopeOperate lets a panel combine, split and override the director. It is
// the only scope the unlock PIN grants.
const ScopeOperate = "room:operate"

const (
	tokenIssuer   = "room-combine"
	tokenAudience = "room-combine-operator"
)

// TokenPayload is what a panel token asserts. Unlock is the fingerprint of
// the PIN it was unlocked with; see UnlockFingerprint.
type TokenPayload struct {
	Sub        string
	DeviceName string
	Type       TokenType
	Scope      string
	Unlock     string
}

// TokenPair is returned by unlock.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
	// ErrTokenRevoked means the unlock PIN changed after the token was issued.
	ErrTokenRevoked = errors.New("token was issued for a previous unlock PIN")
)

type tokenClaims struct {
	DeviceName string    `json:"deviceName"`
	Type       TokenType `json:"type"`
	Scope      string    `json:"scope"`
	Unlock     string    `json:"unlock"`
	jwt.RegisteredClaims
}

// UnlockFingerprint binds a token to the PIN that unlocked it without
// putting the PIN in the token. Replacing the topology with a new PIN
// changes the fingerprint, so older tokens stop working.
func UnlockFingerprint(cfg config.Config, pin string) string {
	mac := hmac.New(sha256.New, []byte(cfg.JWTSecret))
	mac.Write([]byte("unlock:" + pin))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:16])
}

// CheckUnlock verifies payload was unlocked with the current PIN.
func CheckUnlock(cfg config.Config, payload TokenPayload, currentPIN string) error {
	if currentPIN == "" {
		return ErrTokenRevoked
	}
	expected := UnlockFingerprint(cfg, currentPIN)
	if !hmac.Equal([]byte(expected), []byte(payload.Unlock)) {
		return ErrTokenRevoked
	}
	return nil
}

// GenerateTokenPair creates a new access and refresh token.
func GenerateTokenPair(cfg config.Config, payload TokenPayload) (TokenPair, error) {
	accessToken, err := generateToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := generateToken(cfg, payload, TokenTypeRefresh, cfg.JWTRefreshTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresInSec: cfg.JWTAccessTokenExpirySec,
	}, nil
}

// RefreshAccessToken validates a refresh token against the current PIN and
// returns a new access token with the same scope.
func RefreshAccessToken(cfg config.Config, refreshToken, currentPIN string) (string, int, error) {
	payload, err := VerifyToken(cfg, refreshToken)
	if err != nil {
		return "", 0, err
	}
	if payload.Type != TokenTypeRefresh {
		return "", 0, ErrTokenType
	}
	if err := CheckUnlock(cfg, payload, currentPIN); err != nil {
		return "", 0, err
	}
	accessToken, err := generateToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return "", 0, err
	}
	return accessToken, cfg.JWTAccessTokenExpirySec, nil
}

// VerifyToken parses and validates the JWT. It does not check the unlock
// fingerprint; callers pair it with CheckUnlock.
func VerifyToken(cfg config.Config, token string) (TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	payload := TokenPayload{
		Sub:        claims.Subject,
		DeviceName: claims.DeviceName,
		Type:       claims.Type,
		Scope:      claims.Scope,
		Unlock:     claims.Unlock,
	}
	if payload.Sub == "" || payload.DeviceName == "" || payload.Unlock == "" {
		return TokenPayload{}, ErrTokenInvalid
	}
	if payload.Scope != ScopeOperate {
		return TokenPayload{}, ErrTokenInvalid
	}
	if payload.Type != TokenTypeAccess && payload.Type != TokenTypeRefresh {
		return TokenPayload{}, ErrTokenInvalid
	}

	return payload, nil
}

func generateToken(cfg config.Config, payload TokenPayload, tokenType TokenType, expirySec int) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		DeviceName: payload.DeviceName,
		Type:       tokenType,
		Scope:      payload.Scope,
		Unlock:     payload.Unlock,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Sub,
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expirySec) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}
