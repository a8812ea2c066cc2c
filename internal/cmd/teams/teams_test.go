package teams

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("teams", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.StoragePath != "teams.db" {
		t.Fatalf("expected default storage path, got %q", cfg.StoragePath)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("TEAMUP_TEAMS_HTTP_ADDR", "env-addr")
	t.Setenv("TEAMUP_TEAMS_STORAGE_PATH", "env-path")
	t.Setenv("TEAMUP_RESOURCE_SECRET", "env-secret")

	fs := flag.NewFlagSet("teams", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-storage-path", "flag-path",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.StoragePath != "flag-path" {
		t.Fatalf("expected flag storage path, got %q", cfg.StoragePath)
	}
	if cfg.ResourceSecret != "env-secret" {
		t.Fatalf("expected env resource secret, got %q", cfg.ResourceSecret)
	}
}
