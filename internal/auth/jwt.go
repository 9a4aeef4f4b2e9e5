// Package auth issues and validates the operator tokens that guard admin endpoints.
//
// Operator tokens are HS256 JWTs carrying a subject and a list of scopes.
// There are no refresh tokens: operators mint a new token with the CLI
// when the old one expires.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenExpiry is how long operator tokens are valid unless overridden.
const DefaultTokenExpiry = 1 * time.Hour

// Scopes granted to operator tokens.
const (
	ScopeCatalogReload = "catalog:reload"
	ScopeCacheAdmin    = "cache:admin"
	ScopeStatus        = "ops:status"
)

// Predefined token errors.
var (
	ErrInvalidToken    = errors.New("invalid operator token")
	ErrTokenExpired    = errors.New("operator token has expired")
	ErrMissingScope    = errors.New("operator token lacks scope")
	ErrSigningKeyUnset = errors.New("signing key is not configured")
)

// Claims represents the claims in operator tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Scopes lists the admin operations the bearer may perform.
	Scopes []string `json:"scp"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// TokenConfig holds configuration for the token service.
type TokenConfig struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim for tokens (e.g., "tramline").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "tramline-admin").
	Audience string
}

// TokenService handles operator token creation and validation.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewTokenService creates a new token service.
func NewTokenService(cfg TokenConfig) *TokenService {
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// Enabled reports whether a signing key is configured.
func (s *TokenService) Enabled() bool {
	return len(s.signingKey) > 0
}

// Issue creates a token for subject with the given scopes.
// A non-positive ttl uses DefaultTokenExpiry.
func (s *TokenService) Issue(subject string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrSigningKeyUnset
	}
	if ttl <= 0 {
		ttl = DefaultTokenExpiry
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate validates a token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrSigningKeyUnset
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
