package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
)

const (
	testIssuer   = "https://auth.example.test"
	testAudience = "teamup"
)

func newTestKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return publicKey, privateKey
}

func testConfig(publicKey ed25519.PublicKey, now func() time.Time) Config {
	return Config{
		Issuer:   testIssuer,
		Audience: testAudience,
		Key:      publicKey,
		Now:      now,
	}
}

func TestMintAndVerifyToken(t *testing.T) {
	t.Parallel()

	publicKey, privateKey := newTestKeys(t)
	now := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	token, err := MintToken(privateKey, MintInput{
		Principal: Principal{UserID: "user-1", Email: "Ada@Example.Test", Name: "Ada"},
		Issuer:    testIssuer,
		Audience:  testAudience,
		TTL:       time.Hour,
		Now:       now,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	principal, err := VerifyToken(token, testConfig(publicKey, now))
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if principal.UserID != "user-1" {
		t.Fatalf("unexpected user id %q", principal.UserID)
	}
	if principal.Email != "ada@example.test" {
		t.Fatalf("expected lowercased email, got %q", principal.Email)
	}
	if principal.Name != "Ada" {
		t.Fatalf("unexpected name %q", principal.Name)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	t.Parallel()

	publicKey, privateKey := newTestKeys(t)
	minted := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	later := func() time.Time { return minted().Add(2 * time.Hour) }

	token, err := MintToken(privateKey, MintInput{
		Principal: Principal{UserID: "user-1"},
		Issuer:    testIssuer,
		Audience:  testAudience,
		TTL:       time.Hour,
		Now:       minted,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	_, err = VerifyToken(token, testConfig(publicKey, later))
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyTokenRejectsWrongIssuerAndAudience(t *testing.T) {
	t.Parallel()

	publicKey, privateKey := newTestKeys(t)
	now := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	cases := []struct {
		name     string
		issuer   string
		audience string
	}{
		{"issuer mismatch", "https://other.example.test", testAudience},
		{"audience mismatch", testIssuer, "other-app"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := MintToken(privateKey, MintInput{
				Principal: Principal{UserID: "user-1"},
				Issuer:    tc.issuer,
				Audience:  tc.audience,
				Now:       now,
			})
			if err != nil {
				t.Fatalf("mint token: %v", err)
			}
			if _, err := VerifyToken(token, testConfig(publicKey, now)); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestVerifyTokenRejectsForeignKey(t *testing.T) {
	t.Parallel()

	publicKey, _ := newTestKeys(t)
	_, otherPrivate := newTestKeys(t)
	now := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	token, err := MintToken(otherPrivate, MintInput{
		Principal: Principal{UserID: "user-1"},
		Issuer:    testIssuer,
		Audience:  testAudience,
		Now:       now,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	if _, err := VerifyToken(token, testConfig(publicKey, now)); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyTokenRequiresToken(t *testing.T) {
	t.Parallel()

	publicKey, _ := newTestKeys(t)
	if _, err := VerifyToken("  ", testConfig(publicKey, nil)); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	publicKey, _ := newTestKeys(t)

	t.Setenv("TEAMUP_IDENTITY_ISSUER", testIssuer)
	t.Setenv("TEAMUP_IDENTITY_AUDIENCE", testAudience)
	t.Setenv("TEAMUP_IDENTITY_PUBLIC_KEY", base64.RawStdEncoding.EncodeToString(publicKey))

	cfg, err := LoadConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Issuer != testIssuer || cfg.Audience != testAudience {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !publicKey.Equal(cfg.Key) {
		t.Fatal("decoded key does not match")
	}
}

func TestLoadConfigFromEnvRequiresKey(t *testing.T) {
	t.Setenv("TEAMUP_IDENTITY_ISSUER", testIssuer)
	t.Setenv("TEAMUP_IDENTITY_AUDIENCE", testAudience)
	t.Setenv("TEAMUP_IDENTITY_PUBLIC_KEY", "")

	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected missing key error")
	}
}
