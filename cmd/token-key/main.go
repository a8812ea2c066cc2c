// Package main provides a one-shot utility for identity key generation.
//
// It emits the ed25519 keypair the services verify principal tokens with,
// and can mint a development token for local testing.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/openhack/teamup/internal/platform/config"
	"github.com/openhack/teamup/internal/tools/tokenkey"
)

func main() {
	var opts tokenkey.Options
	flag.StringVar(&opts.MintUserID, "mint-user", "", "also mint a dev token for this user id")
	flag.StringVar(&opts.MintEmail, "mint-email", "", "email claim for the minted dev token")
	flag.StringVar(&opts.MintName, "mint-name", "", "name claim for the minted dev token")
	flag.StringVar(&opts.Issuer, "issuer", "https://id.localhost", "issuer claim for the minted dev token")
	flag.StringVar(&opts.Audience, "audience", "teamup", "audience claim for the minted dev token")
	flag.DurationVar(&opts.TTL, "ttl", 24*time.Hour, "lifetime of the minted dev token")
	flag.Parse()

	if err := tokenkey.Run(os.Stdout, nil, opts); err != nil {
		config.Exitf("generate identity key: %v", err)
	}
}
