package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alxtim10/alx-auth/config"
	"github.com/alxtim10/alx-auth/internal/api"
)

const defaultAccessTokenTTL = 2 * time.Hour

// TokenIssuer mints short-lived signed access tokens. It is stateless;
// an issued token is accepted until its natural expiry.
type TokenIssuer struct {
	secretKey []byte
	issuer    string
	audience  string
	ttl       time.Duration
}

func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &TokenIssuer{
		secretKey: []byte(cfg.SecretKey),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       ttl,
	}
}

// Issue signs a bearer token with subject = username, a fresh jti and
// the user's role.
func (t *TokenIssuer) Issue(userID uuid.UUID, username, role string) (string, error) {
	now := time.Now()
	claims := api.Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", api.ErrInternal)
	}
	return signed, nil
}

// newOpaqueToken produces the high-entropy raw value handed to clients
// as a refresh or one-time token. Never persisted as-is.
func newOpaqueToken() string {
	return uuid.NewString() + "." + uuid.NewString()
}

// hashToken is the one-way mapping from a raw opaque token to its
// stored form.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
