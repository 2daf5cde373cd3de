package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Surety.PayoutPercent != 150 {
		t.Fatalf("expected 1.5x payout multiplier, got %d", cfg.Surety.PayoutPercent)
	}
	if cfg.Surety.ConsensusAirlineCount != 4 {
		t.Fatalf("expected consensus at 4 airlines, got %d", cfg.Surety.ConsensusAirlineCount)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "surety.yaml")
	doc := []byte(`
server:
  port: 9090
surety:
  operator_id: ops-team
  minimum_bond: 25
  oracle_quorum: 5
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Surety.OperatorID != "ops-team" {
		t.Fatalf("expected operator override, got %s", cfg.Surety.OperatorID)
	}
	if cfg.Surety.MinimumBond != 25 || cfg.Surety.OracleQuorum != 5 {
		t.Fatalf("expected surety overrides, got %+v", cfg.Surety)
	}
	// Unspecified fields keep their defaults.
	if cfg.Surety.InsuranceCap != 100 {
		t.Fatalf("expected default insurance cap, got %d", cfg.Surety.InsuranceCap)
	}
}

func TestLoadFromPathRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "surety.yaml")
	doc := []byte(`
surety:
  payout_percent: 50
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatalf("expected sub-par payout multiplier to be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SURETY_PORT", "7070")
	t.Setenv("SURETY_OPERATOR_ID", "night-shift")
	t.Setenv("SURETY_DATABASE_DSN", "postgres://localhost/surety")

	cfg := Default()
	applyEnv(cfg)

	if cfg.Server.Port != 7070 {
		t.Fatalf("expected port from env, got %d", cfg.Server.Port)
	}
	if cfg.Surety.OperatorID != "night-shift" {
		t.Fatalf("expected operator from env, got %s", cfg.Surety.OperatorID)
	}
	if cfg.Database.DSN == "" || cfg.Database.Driver != "postgres" {
		t.Fatalf("expected database settings from env, got %+v", cfg.Database)
	}
}

func TestValidateRejectsWedgedConsensus(t *testing.T) {
	cfg := Default()
	cfg.Surety.ConsensusAirlineCount = 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected consensus count of 1 to be rejected")
	}

	cfg = Default()
	cfg.Surety.OracleQuorum = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero quorum to be rejected")
	}

	cfg = Default()
	cfg.Surety.MinimumBond = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero bond to be rejected")
	}
}
