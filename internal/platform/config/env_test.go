package config

import "testing"

type sampleConfig struct {
	Addr string `env:"TEAMUP_TEST_ADDR" envDefault:":9999"`
}

func TestParseEnvAppliesDefaults(t *testing.T) {
	var cfg sampleConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
}

func TestParseEnvReadsEnvironment(t *testing.T) {
	t.Setenv("TEAMUP_TEST_ADDR", ":4040")

	var cfg sampleConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":4040" {
		t.Fatalf("expected env addr, got %q", cfg.Addr)
	}
}
