// Package config provides unified configuration loading for bankrun.
// It supports loading from YAML files, an optional .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/bankrun/internal/agent"
	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/simulation"
)

// BankrunConfig contains all bankrun configuration settings.
type BankrunConfig struct {
	// Simulation holds the parameters of a single run.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Batch holds the Monte-Carlo batch options.
	Batch montecarlo.Options `json:"batch" yaml:"batch"`

	// Store selects where batch reports are kept.
	Store StoreConfig `json:"store" yaml:"store"`

	// Server configures the HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Logging contains settings for operational logging and turn traces.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig is the YAML shape of simulation.Params.
type SimulationConfig struct {
	Nodes               int                  `json:"nodes" yaml:"nodes"`
	NonCustomerFraction float64              `json:"non_customer_fraction" yaml:"non_customer_fraction"`
	MaxTurns            int                  `json:"max_turns" yaml:"max_turns"`
	UpdateMode          constants.UpdateMode `json:"update_mode" yaml:"update_mode"`

	Bank      BankConfig      `json:"bank" yaml:"bank"`
	News      NewsConfig      `json:"news" yaml:"news"`
	Decision  DecisionConfig  `json:"decision" yaml:"decision"`
	Guarantee GuaranteeConfig `json:"guarantee" yaml:"guarantee"`
}

// BankConfig sizes the bank's balance sheet.
type BankConfig struct {
	TotalDeposits float64 `json:"total_deposits" yaml:"total_deposits"`
	ReserveRatio  float64 `json:"reserve_ratio" yaml:"reserve_ratio"`
}

// NewsConfig describes the negative news event.
type NewsConfig struct {
	Score         float64 `json:"score" yaml:"score"`
	Credibility   float64 `json:"credibility" yaml:"credibility"`
	DiffusionRate float64 `json:"diffusion_rate" yaml:"diffusion_rate"`
}

// DecisionConfig holds the panic score weights and the sigmoid curves.
type DecisionConfig struct {
	Weights     agent.Weights `json:"weights" yaml:"weights"`
	Customer    agent.Curve   `json:"customer_curve" yaml:"customer_curve"`
	NonCustomer agent.Curve   `json:"non_customer_curve" yaml:"non_customer_curve"`
}

// GuaranteeConfig describes the deposit guarantee fund.
type GuaranteeConfig struct {
	Threshold      float64 `json:"threshold" yaml:"threshold"`
	PanicReduction float64 `json:"panic_reduction" yaml:"panic_reduction"`
}

// StoreConfig selects the batch report store.
type StoreConfig struct {
	// Driver is "sqlite" (default), "postgres" or "memory".
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the database path (sqlite) or connection string (postgres).
	// Supports ${VAR} syntax for env vars. Empty sqlite DSN means
	// ~/.bankrun/history.db.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// RedactedDSN masks the password of a postgres connection URL.
func (c StoreConfig) RedactedDSN() string {
	if c.Driver != constants.DriverPostgres {
		return c.DSN
	}
	at := strings.LastIndex(c.DSN, "@")
	scheme := strings.Index(c.DSN, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return c.DSN
	}
	creds := c.DSN[scheme+3 : at]
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return c.DSN
	}
	return c.DSN[:scheme+3] + user + ":****" + c.DSN[at:]
}

// String implements fmt.Stringer to keep passwords out of logs.
func (c StoreConfig) String() string {
	return fmt.Sprintf("StoreConfig{Driver:%s, DSN:%s}", c.Driver, c.RedactedDSN())
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr"`

	// RequestsPerSecond bounds simulation requests. Zero disables limiting.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the limiter's bucket size.
	Burst int `json:"burst" yaml:"burst"`

	// MaxSessions caps the number of live step-by-step runs.
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`
}

// LoggingConfig configures bankrun's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables turn tracing to <trace_dir>/turns.jsonl.
	// "trace" additionally logs every agent decision.
	Level string `json:"level" yaml:"level"`

	// TraceDir is where turn traces are written. Empty means ~/.bankrun.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
}

// Default returns a BankrunConfig with the reference calibration.
func Default() *BankrunConfig {
	p := simulation.DefaultParams()
	return &BankrunConfig{
		Simulation: FromParams(p),
		Batch:      montecarlo.DefaultOptions(),
		Store: StoreConfig{
			Driver: constants.DriverSQLite,
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			RequestsPerSecond: 5,
			Burst:             10,
			MaxSessions:       64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// FromParams converts engine parameters to their YAML shape.
func FromParams(p simulation.Params) SimulationConfig {
	return SimulationConfig{
		Nodes:               p.Nodes,
		NonCustomerFraction: p.NonCustomerFraction,
		MaxTurns:            p.MaxTurns,
		UpdateMode:          p.UpdateMode,
		Bank: BankConfig{
			TotalDeposits: p.TotalDeposits,
			ReserveRatio:  p.ReserveRatio,
		},
		News: NewsConfig{
			Score:         p.NewsScore,
			Credibility:   p.NewsCredibility,
			DiffusionRate: p.DiffusionRate,
		},
		Decision: DecisionConfig{
			Weights:     p.Weights,
			Customer:    p.CustomerCurve,
			NonCustomer: p.NonCustomerCurve,
		},
		Guarantee: GuaranteeConfig{
			Threshold:      p.GuaranteeThreshold,
			PanicReduction: p.GuaranteePanicReduction,
		},
	}
}

// Params flattens the simulation section into engine parameters.
func (c SimulationConfig) Params() simulation.Params {
	return simulation.Params{
		Nodes:                   c.Nodes,
		NonCustomerFraction:     c.NonCustomerFraction,
		TotalDeposits:           c.Bank.TotalDeposits,
		ReserveRatio:            c.Bank.ReserveRatio,
		NewsScore:               c.News.Score,
		NewsCredibility:         c.News.Credibility,
		DiffusionRate:           c.News.DiffusionRate,
		MaxTurns:                c.MaxTurns,
		UpdateMode:              c.UpdateMode,
		Weights:                 c.Decision.Weights,
		CustomerCurve:           c.Decision.Customer,
		NonCustomerCurve:        c.Decision.NonCustomer,
		GuaranteeThreshold:      c.Guarantee.Threshold,
		GuaranteePanicReduction: c.Guarantee.PanicReduction,
	}
}

// Dir returns the bankrun home directory (~/.bankrun).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".bankrun"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.bankrun/config.yaml -> .env -> environment variables
func Load() (*BankrunConfig, error) {
	config := Default()

	// Try to load from default config file
	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys absent
// from the file keep their defaults.
func LoadFromFile(path string) (*BankrunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in the DSN
	config.Store.DSN = expandEnvVars(config.Store.DSN)

	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *BankrunConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *BankrunConfig) Validate() error {
	if err := c.Simulation.Params().Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	validDrivers := map[string]bool{constants.DriverSQLite: true, constants.DriverPostgres: true, constants.DriverMemory: true}
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("invalid store driver: %s (valid: sqlite, postgres, memory)", c.Store.Driver)
	}
	if c.Store.Driver == constants.DriverPostgres && c.Store.DSN == "" {
		return errors.New("postgres store requires a dsn")
	}

	if c.Server.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative, got %v", c.Server.RequestsPerSecond)
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rate limiting, got %d", c.Server.Burst)
	}
	if c.Server.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", c.Server.MaxSessions)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// loadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Variables already set win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies BANKRUN_* environment variable overrides to
// the config. Malformed numbers are reported, not ignored.
func applyEnvOverrides(config *BankrunConfig) error {
	sim := &config.Simulation

	ints := []struct {
		key string
		dst *int
	}{
		{"BANKRUN_NODES", &sim.Nodes},
		{"BANKRUN_MAX_TURNS", &sim.MaxTurns},
		{"BANKRUN_RUNS", &config.Batch.Runs},
		{"BANKRUN_WORKERS", &config.Batch.Workers},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"BANKRUN_NON_CUSTOMER_FRACTION", &sim.NonCustomerFraction},
		{"BANKRUN_TOTAL_DEPOSITS", &sim.Bank.TotalDeposits},
		{"BANKRUN_RESERVE_RATIO", &sim.Bank.ReserveRatio},
		{"BANKRUN_NEWS_SCORE", &sim.News.Score},
		{"BANKRUN_NEWS_CREDIBILITY", &sim.News.Credibility},
		{"BANKRUN_DIFFUSION_RATE", &sim.News.DiffusionRate},
	}
	for _, e := range floats {
		if v := os.Getenv(e.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = f
		}
	}

	if v := os.Getenv("BANKRUN_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BANKRUN_SEED: %w", err)
		}
		config.Batch.Seed = seed
	}

	if v := os.Getenv("BANKRUN_UPDATE_MODE"); v != "" {
		sim.UpdateMode = constants.UpdateMode(strings.ToLower(v))
	}

	if v := os.Getenv("BANKRUN_STORE_DRIVER"); v != "" {
		config.Store.Driver = v
	}
	if v := os.Getenv("BANKRUN_STORE_DSN"); v != "" {
		config.Store.DSN = v
	}

	if v := os.Getenv("BANKRUN_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
