// Package chat parses chat command flags and composes the service entrypoint.
package chat

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/openhack/teamup/internal/platform/cmd"
	"github.com/openhack/teamup/internal/platform/identity"
	server "github.com/openhack/teamup/internal/services/chat/app"
)

// Config holds chat command configuration.
type Config struct {
	HTTPAddr       string `env:"TEAMUP_CHAT_HTTP_ADDR"     envDefault:":8082"`
	StoragePath    string `env:"TEAMUP_CHAT_STORAGE_PATH"  envDefault:"chat.db"`
	TeamsBaseURL   string `env:"TEAMUP_TEAMS_BASE_URL"     envDefault:"http://localhost:8081"`
	ResourceSecret string `env:"TEAMUP_RESOURCE_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "chat HTTP listen address")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "chat SQLite database path")
	fs.StringVar(&cfg.TeamsBaseURL, "teams-base-url", cfg.TeamsBaseURL, "teams service base URL for membership checks")
	fs.StringVar(&cfg.ResourceSecret, "resource-secret", cfg.ResourceSecret, "shared secret for the teams membership endpoint")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the chat app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	identityConfig, err := identity.LoadConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load identity config: %w", err)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceChat, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:       cfg.HTTPAddr,
			StoragePath:    cfg.StoragePath,
			TeamsBaseURL:   cfg.TeamsBaseURL,
			ResourceSecret: cfg.ResourceSecret,
			Identity:       identityConfig,
		})
	})
}
