// Package identity verifies the signed principal tokens issued by the
// upstream authentication collaborator. A token binds one live connection to
// a (user id, email, name) principal; this package never issues credentials.
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
)

// Principal is the verified identity behind one request or connection.
type Principal struct {
	UserID string
	Email  string
	Name   string
}

// Config defines how principal tokens are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Issuer    string `env:"TEAMUP_IDENTITY_ISSUER"`
	Audience  string `env:"TEAMUP_IDENTITY_AUDIENCE"`
	PublicKey string `env:"TEAMUP_IDENTITY_PUBLIC_KEY"`
}

// principalClaims is the internal claims type used for JWT parsing.
type principalClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoadConfigFromEnv reads principal token verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw tokenEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse identity env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("TEAMUP_IDENTITY_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("TEAMUP_IDENTITY_AUDIENCE is required")
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("TEAMUP_IDENTITY_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode identity public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("identity public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// VerifyToken verifies a principal token and returns the identity it carries.
func VerifyToken(token string, cfg Config) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, apperrors.New(apperrors.CodeUnauthorized, "identity token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Principal{}, errors.New("identity verifier is not configured")
	}

	var parsed principalClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Principal{}, apperrors.Wrap(apperrors.CodeUnauthorized, "identity token is invalid", err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Principal{}, apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"identity token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Principal{}, apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"identity token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}

	now := cfg.Now().UTC()
	if parsed.ExpiresAt == nil || !now.Before(parsed.ExpiresAt.Time) {
		return Principal{}, apperrors.New(apperrors.CodeUnauthorized, "identity token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time) {
		return Principal{}, apperrors.New(apperrors.CodeUnauthorized, "identity token is not yet valid")
	}

	userID := strings.TrimSpace(parsed.Subject)
	if userID == "" {
		return Principal{}, apperrors.New(apperrors.CodeUnauthorized, "identity token has no subject")
	}

	return Principal{
		UserID: userID,
		Email:  strings.TrimSpace(strings.ToLower(parsed.Email)),
		Name:   strings.TrimSpace(parsed.Name),
	}, nil
}

// MintInput describes one principal token to sign.
type MintInput struct {
	Principal Principal
	Issuer    string
	Audience  string
	TTL       time.Duration
	Now       func() time.Time
}

// MintToken signs a principal token. It backs the development tooling and
// tests; production tokens come from the upstream identity provider.
func MintToken(key ed25519.PrivateKey, input MintInput) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("private key must be %d bytes", ed25519.PrivateKeySize)
	}
	userID := strings.TrimSpace(input.Principal.UserID)
	if userID == "" {
		return "", errors.New("principal user id is required")
	}
	now := time.Now
	if input.Now != nil {
		now = input.Now
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	issuedAt := now().UTC()
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    strings.TrimSpace(input.Issuer),
			Subject:   userID,
			Audience:  jwt.ClaimStrings{strings.TrimSpace(input.Audience)},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Email: strings.TrimSpace(strings.ToLower(input.Principal.Email)),
		Name:  strings.TrimSpace(input.Principal.Name),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign principal token: %w", err)
	}
	return signed, nil
}

func audienceContains(audience jwt.ClaimStrings, want string) bool {
	for _, value := range audience {
		if value == want {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if decoded, err := base64.RawStdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
