// Package config loads the daemon configuration from YAML with environment
// overrides. Domain constants (bond, cap, payout multiplier, quorums) are
// configuration rather than literals so deployments can tune them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/skysurety/service_layer/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig controls the optional PostgreSQL store. An empty DSN keeps
// the daemon on the in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// SuretyConfig holds the domain constants of the insurance ledger.
type SuretyConfig struct {
	OperatorID           string `yaml:"operator_id"`
	BootstrapAirlineID   string `yaml:"bootstrap_airline_id"`
	BootstrapAirlineName string `yaml:"bootstrap_airline_name"`

	// MinimumBond is the deposit that promotes a registered airline to
	// funded (10 currency units in the reference deployment).
	MinimumBond int64 `yaml:"minimum_bond"`
	// InsuranceCap bounds the insured amount a passenger may buy.
	InsuranceCap int64 `yaml:"insurance_cap"`
	// PayoutPercent is the payout multiplier in percent (150 = 1.5x).
	PayoutPercent int64 `yaml:"payout_percent"`
	// ConsensusAirlineCount is the network size at which admission switches
	// from the fast path to multiparty voting.
	ConsensusAirlineCount int `yaml:"consensus_airline_count"`
	// OracleQuorum is the number of matching reporter submissions that
	// resolves a status request.
	OracleQuorum int `yaml:"oracle_quorum"`
	// SettlementSchedule is the cron expression driving the withdrawal
	// settlement sweep.
	SettlementSchedule string `yaml:"settlement_schedule"`
	// RequestsPerSecond rate-limits mutating API calls per caller.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Surety   SuretyConfig         `yaml:"surety"`
}

// Default returns the reference-deployment configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Surety: SuretyConfig{
			OperatorID:            "operator",
			BootstrapAirlineID:    "airline-1",
			BootstrapAirlineName:  "First Airline",
			MinimumBond:           10,
			InsuranceCap:          100,
			PayoutPercent:         150,
			ConsensusAirlineCount: 4,
			OracleQuorum:          3,
			SettlementSchedule:    "@every 15s",
			RequestsPerSecond:     20,
		},
	}
}

// Load reads configuration from SURETY_CONFIG or config/surety.yaml,
// falling back to defaults when the file does not exist.
func Load() (*Config, error) {
	path := os.Getenv("SURETY_CONFIG")
	if path == "" {
		path = filepath.Join("config", "surety.yaml")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnv(cfg)
		return cfg, cfg.Validate()
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv("SURETY_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
		if cfg.Database.Driver == "" {
			cfg.Database.Driver = "postgres"
		}
	}
	if port := os.Getenv("SURETY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("SURETY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if op := os.Getenv("SURETY_OPERATOR_ID"); op != "" {
		cfg.Surety.OperatorID = op
	}
}

// Validate rejects configurations that would wedge the consensus rules.
func (c *Config) Validate() error {
	s := c.Surety
	if s.OperatorID == "" {
		return fmt.Errorf("surety.operator_id is required")
	}
	if s.BootstrapAirlineID == "" {
		return fmt.Errorf("surety.bootstrap_airline_id is required")
	}
	if s.MinimumBond <= 0 {
		return fmt.Errorf("surety.minimum_bond must be positive")
	}
	if s.InsuranceCap <= 0 {
		return fmt.Errorf("surety.insurance_cap must be positive")
	}
	if s.PayoutPercent < 100 {
		return fmt.Errorf("surety.payout_percent must be at least 100")
	}
	if s.ConsensusAirlineCount < 2 {
		return fmt.Errorf("surety.consensus_airline_count must be at least 2")
	}
	if s.OracleQuorum < 1 {
		return fmt.Errorf("surety.oracle_quorum must be at least 1")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
