// Package config loads the agent settings. Values are layered: built-in
// defaults, then an optional YAML file named by PURPLE_CONFIG, then
// environment variables. Command-line flags are applied by the caller last.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/ixentbench/purple/pkg/command"
	"github.com/ixentbench/purple/pkg/store"
)

const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 9009
	DefaultProvider       = "gemini"
	DefaultModel          = "gemini-3-pro-preview"
	DefaultRequestTimeout = 120 * time.Second
	DefaultAttemptTimeout = 45 * time.Second
)

// defaultModels is used when no model is configured. Unknown providers keep
// their own default.
var defaultModels = map[string]string{
	"gemini": DefaultModel,
	"openai": "gpt-5-nano",
	"fake":   "fake",
}

// Store backends for PostgreSQL URLs. SQLite URLs always use the SQL store.
const (
	BackendAuto = "auto"
	BackendSQL  = "sql"
	BackendGorm = "gorm"
)

// Config is the resolved process configuration.
type Config struct {
	Host string
	Port int

	Provider string
	Model    string
	AgentID  string
	BaseURL  string
	APIKey   string

	MaxRetries     int
	RequestTimeout time.Duration
	AttemptTimeout time.Duration

	DatabaseURL      string
	StoreBackend     string
	KeepObservations bool

	TraceStdout bool
	LogLevel    string
	PromptFile  string

	Rules          command.Rules
	CommandQuery   string
	ReasoningQuery string
}

// file mirrors the YAML layout. Durations are strings such as "30s".
type file struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	AgentID        string `yaml:"agent_id"`
	BaseURL        string `yaml:"base_url"`
	MaxRetries     *int   `yaml:"max_retries"`
	RequestTimeout string `yaml:"request_timeout"`
	AttemptTimeout string `yaml:"attempt_timeout"`
	PromptFile     string `yaml:"prompt_file"`
	LogLevel       string `yaml:"log_level"`
	TraceStdout    *bool  `yaml:"trace_stdout"`

	Store struct {
		URL              string `yaml:"url"`
		Backend          string `yaml:"backend"`
		KeepObservations *bool  `yaml:"keep_observations"`
	} `yaml:"store"`

	Rules struct {
		MaxTurn      int   `yaml:"max_turn"`
		AllowPass    *bool `yaml:"allow_pass"`
		EnforcePhase *bool `yaml:"enforce_phase"`
	} `yaml:"rules"`

	Extract struct {
		Command   string `yaml:"command"`
		Reasoning string `yaml:"reasoning"`
	} `yaml:"extract"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		Provider:       DefaultProvider,
		MaxRetries:     2,
		RequestTimeout: DefaultRequestTimeout,
		AttemptTimeout: DefaultAttemptTimeout,
		StoreBackend:   BackendAuto,
		LogLevel:       "info",
		Rules:          command.DefaultRules(),
		CommandQuery:   command.DefaultCommandQuery,
		ReasoningQuery: command.DefaultReasoningQuery,
	}
}

// Load resolves the configuration from PURPLE_CONFIG and the environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("PURPLE_CONFIG"), os.LookupEnv)
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadFrom applies the YAML file at path (if non-empty) and then env on top
// of the defaults.
func LoadFrom(path string, env LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}
	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	if cfg.AgentID == "" {
		cfg.AgentID = "Purple-Agent-" + cfg.Model
	}
	if cfg.APIKey == "" {
		cfg.APIKey = credential(cfg.Provider, env)
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyYAML(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	setString(&c.Host, f.Host)
	if f.Port != 0 {
		c.Port = f.Port
	}
	setString(&c.Provider, f.Provider)
	setString(&c.Model, f.Model)
	setString(&c.AgentID, f.AgentID)
	setString(&c.BaseURL, f.BaseURL)
	if f.MaxRetries != nil {
		c.MaxRetries = *f.MaxRetries
	}
	if err := setDuration(&c.RequestTimeout, "request_timeout", f.RequestTimeout); err != nil {
		return err
	}
	if err := setDuration(&c.AttemptTimeout, "attempt_timeout", f.AttemptTimeout); err != nil {
		return err
	}
	setString(&c.PromptFile, f.PromptFile)
	setString(&c.LogLevel, f.LogLevel)
	if f.TraceStdout != nil {
		c.TraceStdout = *f.TraceStdout
	}
	setString(&c.DatabaseURL, f.Store.URL)
	setString(&c.StoreBackend, f.Store.Backend)
	if f.Store.KeepObservations != nil {
		c.KeepObservations = *f.Store.KeepObservations
	}
	if f.Rules.MaxTurn != 0 {
		c.Rules.MaxTurn = f.Rules.MaxTurn
	}
	if f.Rules.AllowPass != nil {
		c.Rules.AllowPass = *f.Rules.AllowPass
	}
	if f.Rules.EnforcePhase != nil {
		c.Rules.EnforcePhase = *f.Rules.EnforcePhase
	}
	setString(&c.CommandQuery, f.Extract.Command)
	setString(&c.ReasoningQuery, f.Extract.Reasoning)
	return nil
}

func (c *Config) applyEnv(env LookupFunc) error {
	get := func(key string) string {
		v, _ := env(key)
		return strings.TrimSpace(v)
	}
	setString(&c.Provider, get("PURPLE_PROVIDER"))
	setString(&c.Model, get("PURPLE_MODEL"))
	setString(&c.AgentID, get("PURPLE_AGENT_ID"))
	setString(&c.BaseURL, get("PURPLE_BASE_URL"))
	setString(&c.DatabaseURL, get("PURPLE_DATABASE_URL"))
	setString(&c.StoreBackend, get("PURPLE_STORE_BACKEND"))
	setString(&c.LogLevel, get("PURPLE_LOG_LEVEL"))
	setString(&c.PromptFile, get("PURPLE_PROMPT_FILE"))
	if v := get("PURPLE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PURPLE_MAX_RETRIES: %w", err)
		}
		c.MaxRetries = n
	}
	if err := setDuration(&c.RequestTimeout, "PURPLE_REQUEST_TIMEOUT", get("PURPLE_REQUEST_TIMEOUT")); err != nil {
		return err
	}
	if err := setDuration(&c.AttemptTimeout, "PURPLE_ATTEMPT_TIMEOUT", get("PURPLE_ATTEMPT_TIMEOUT")); err != nil {
		return err
	}
	for key, dst := range map[string]*bool{
		"PURPLE_TRACE_STDOUT":      &c.TraceStdout,
		"PURPLE_KEEP_OBSERVATIONS": &c.KeepObservations,
		"PURPLE_ALLOW_PASS":        &c.Rules.AllowPass,
		"PURPLE_ENFORCE_PHASE":     &c.Rules.EnforcePhase,
	} {
		if v := get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

// credential returns the API key the provider reads from the environment.
func credential(provider string, env LookupFunc) string {
	var key string
	switch provider {
	case "gemini":
		key = "GOOGLE_API_KEY"
	case "openai":
		key = "OPENAI_API_KEY"
	default:
		return ""
	}
	v, _ := env(key)
	return strings.TrimSpace(v)
}

// Validate reports settings the process cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Provider == "" {
		errs = append(errs, errors.New("provider is required"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.Rules.MaxTurn <= 0 || c.Rules.MaxTurn%command.AngleStep != 0 {
		errs = append(errs, fmt.Errorf("rules.max_turn must be a positive multiple of %d", command.AngleStep))
	}
	switch c.StoreBackend {
	case BackendAuto, BackendSQL, BackendGorm:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if c.DatabaseURL != "" && store.Kind(c.DatabaseURL) == "" {
		errs = append(errs, fmt.Errorf("unsupported database url scheme"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// RequiresCredential reports whether the provider needs an API key to start.
func (c Config) RequiresCredential() bool {
	return c.Provider == "gemini" || (c.Provider == "openai" && c.BaseURL == "")
}

// Addr is the listen address.
func (c Config) Addr() string { return c.Host + ":" + strconv.Itoa(c.Port) }

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*dst = d
	return nil
}
