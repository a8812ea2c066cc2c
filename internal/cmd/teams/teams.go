// Package teams parses teams command flags and composes the service entrypoint.
package teams

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/openhack/teamup/internal/platform/cmd"
	"github.com/openhack/teamup/internal/platform/identity"
	server "github.com/openhack/teamup/internal/services/teams/app"
)

// Config holds teams command configuration.
type Config struct {
	HTTPAddr       string `env:"TEAMUP_TEAMS_HTTP_ADDR"    envDefault:":8081"`
	StoragePath    string `env:"TEAMUP_TEAMS_STORAGE_PATH" envDefault:"teams.db"`
	ResourceSecret string `env:"TEAMUP_RESOURCE_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "teams HTTP listen address")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "teams SQLite database path")
	fs.StringVar(&cfg.ResourceSecret, "resource-secret", cfg.ResourceSecret, "shared secret guarding internal endpoints")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the teams app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	identityConfig, err := identity.LoadConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load identity config: %w", err)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTeams, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:       cfg.HTTPAddr,
			StoragePath:    cfg.StoragePath,
			ResourceSecret: cfg.ResourceSecret,
			Identity:       identityConfig,
		})
	})
}
