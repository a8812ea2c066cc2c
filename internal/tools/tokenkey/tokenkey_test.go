package tokenkey

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/openhack/teamup/internal/platform/identity"
)

func TestRunWritesKeyExports(t *testing.T) {
	var out strings.Builder
	if err := Run(&out, nil, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 export lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "export TEAMUP_IDENTITY_PRIVATE_KEY=") {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "export TEAMUP_IDENTITY_PUBLIC_KEY=") {
		t.Fatalf("second line = %q", lines[1])
	}
}

func TestRunMintsVerifiableDevToken(t *testing.T) {
	var out strings.Builder
	err := Run(&out, nil, Options{
		MintUserID: "user-1",
		MintEmail:  "dev@example.com",
		MintName:   "Dev User",
		Issuer:     "https://id.test",
		Audience:   "teamup",
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var publicKey, token string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if value, ok := strings.CutPrefix(line, "export TEAMUP_IDENTITY_PUBLIC_KEY="); ok {
			publicKey = value
		}
		if value, ok := strings.CutPrefix(line, "export TEAMUP_DEV_TOKEN="); ok {
			token = value
		}
	}
	if publicKey == "" || token == "" {
		t.Fatalf("expected public key and token exports:\n%s", out.String())
	}

	keyBytes, err := base64.RawStdEncoding.DecodeString(publicKey)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	principal, err := identity.VerifyToken(token, identity.Config{
		Issuer:   "https://id.test",
		Audience: "teamup",
		Key:      ed25519.PublicKey(keyBytes),
	})
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if principal.UserID != "user-1" || principal.Email != "dev@example.com" {
		t.Fatalf("principal = %+v", principal)
	}
}

func TestRunRequiresOutput(t *testing.T) {
	if err := Run(nil, nil, Options{}); err == nil {
		t.Fatal("expected error for nil output")
	}
}
