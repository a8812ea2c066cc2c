// Package tokenkey generates identity token signing keys for development.
package tokenkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openhack/teamup/internal/platform/identity"
)

// Options controls key generation and optional dev token minting.
type Options struct {
	// MintUserID, when set, also mints a development token for that user.
	MintUserID string
	MintEmail  string
	MintName   string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// Run generates an identity key pair and writes exports. When a mint user is
// given it also prints a signed development token for local testing.
func Run(out io.Writer, reader io.Reader, opts Options) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate identity key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export TEAMUP_IDENTITY_PRIVATE_KEY=%s\n", base64.RawStdEncoding.EncodeToString(privateKey)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "export TEAMUP_IDENTITY_PUBLIC_KEY=%s\n", base64.RawStdEncoding.EncodeToString(publicKey)); err != nil {
		return err
	}

	userID := strings.TrimSpace(opts.MintUserID)
	if userID == "" {
		return nil
	}
	token, err := identity.MintToken(privateKey, identity.MintInput{
		Principal: identity.Principal{
			UserID: userID,
			Email:  opts.MintEmail,
			Name:   opts.MintName,
		},
		Issuer:   opts.Issuer,
		Audience: opts.Audience,
		TTL:      opts.TTL,
	})
	if err != nil {
		return fmt.Errorf("mint development token: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export TEAMUP_DEV_TOKEN=%s\n", token); err != nil {
		return err
	}
	return nil
}
