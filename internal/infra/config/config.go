package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"libraria/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Agent    AgentConfig    `yaml:"agent"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Store    StoreConfig    `yaml:"store"`
	Security SecurityConfig `yaml:"security"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// ServerConfig holds the HTTP gateway settings.
type ServerConfig struct {
	Addr            string            `yaml:"addr"`             // e.g. ":8080"
	AuthTokens      map[string]string `yaml:"auth_tokens"`      // bearer token -> user id
	RatePerMinute   int               `yaml:"rate_per_minute"`  // per-user request budget
	RateBurst       int               `yaml:"rate_burst"`       // per-user burst size
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"` // graceful shutdown grace
}

// AgentConfig holds orchestration loop settings.
type AgentConfig struct {
	MaxSteps      int    `yaml:"max_steps"`      // planning/tool-execution cycle budget per turn
	SystemPrompt  string `yaml:"system_prompt"`  // overrides the built-in prompt when set
	HistoryTokens int    `yaml:"history_tokens"` // token budget for prompt history
}

// LLMConfig holds model provider settings.
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url"`      // Gemini API base URL (default official)
	DefaultModel string        `yaml:"default_model"` // used when the profile has no preference
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// SearchConfig holds web-search provider settings.
type SearchConfig struct {
	BaseURL    string        `yaml:"base_url"` // Tavily endpoint (default official)
	Timeout    time.Duration `yaml:"timeout"`
	MaxResults int           `yaml:"max_results"` // hard cap on returned results
	ContentCap int           `yaml:"content_cap"` // per-result body truncation (chars)
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// StoreConfig holds database settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// SecurityConfig holds the credential vault settings. The encryption
// secret is injected here and nowhere else; business logic never reads
// it from the environment directly.
type SecurityConfig struct {
	EncryptionSecret string `yaml:"encryption_secret"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Defaults returns a config populated with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RatePerMinute:   30,
			RateBurst:       10,
			ShutdownTimeout: 10 * time.Second,
		},
		Agent: AgentConfig{
			MaxSteps:      10,
			HistoryTokens: 24_000,
		},
		LLM: LLMConfig{
			DefaultModel: "gemini-2.5-flash",
			Timeout:      60 * time.Second,
			MaxRetries:   3,
		},
		Search: SearchConfig{
			Timeout:    15 * time.Second,
			MaxResults: 10,
			ContentCap: 500,
			CacheTTL:   15 * time.Minute,
		},
		Store: StoreConfig{
			Path: "libraria.db",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads configuration from path (if it exists), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrConfigLoad, path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfigLoad, path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIBRARIA_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LIBRARIA_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("LIBRARIA_ENCRYPTION_SECRET"); v != "" {
		cfg.Security.EncryptionSecret = v
	}
	if v := os.Getenv("LIBRARIA_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LIBRARIA_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("LIBRARIA_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxSteps = n
		}
	}
}

// Validate checks invariants that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Security.EncryptionSecret == "" {
		return fmt.Errorf("%w: security.encryption_secret is required", domain.ErrConfigLoad)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("%w: agent.max_steps must be > 0", domain.ErrConfigLoad)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", domain.ErrConfigLoad)
	}
	if c.Search.MaxResults <= 0 || c.Search.ContentCap <= 0 {
		return fmt.Errorf("%w: search.max_results and search.content_cap must be > 0", domain.ErrConfigLoad)
	}
	switch c.Logger.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown logger.level %q", domain.ErrConfigLoad, c.Logger.Level)
	}
	return nil
}
