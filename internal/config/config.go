package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
	Templates TemplatesConfig `mapstructure:"templates"`
	History   HistoryConfig   `mapstructure:"history"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Server    ServerConfig    `mapstructure:"server"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	EmbedModel        string        `mapstructure:"embed_model"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`

	// Per-template overrides keyed by catalog template name. Each override
	// inherits unset fields from the top-level LLM config.
	Templates map[string]LLMOverride `mapstructure:"templates"`
}

// LLMOverride allows per-template provider configuration.
type LLMOverride struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ResolveFor returns an LLMConfig with the overrides for template applied.
func (c LLMConfig) ResolveFor(template string) LLMConfig {
	override, ok := c.Templates[template]
	if !ok {
		return c
	}
	resolved := c
	if override.Provider != "" {
		resolved.Provider = override.Provider
	}
	if override.Model != "" {
		resolved.Model = override.Model
	}
	if override.APIKey != "" {
		resolved.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		resolved.BaseURL = override.BaseURL
	}
	return resolved
}

// ProviderConfig converts the section into the factory's input.
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = c.Provider
	pc.APIKey = c.APIKey
	pc.Model = c.Model
	pc.BaseURL = c.BaseURL
	pc.EmbedModel = c.EmbedModel
	pc.RequestsPerMinute = c.RequestsPerMinute
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	if c.MaxRetries > 0 {
		pc.MaxRetries = c.MaxRetries
	}
	return pc
}

// RequestOptions returns sampling options, leaving unset values to the model.
func (c LLMConfig) RequestOptions() *llm.RequestOptions {
	opts := &llm.RequestOptions{}
	if c.Temperature > 0 {
		t := c.Temperature
		opts.Temperature = &t
	}
	if c.MaxTokens > 0 {
		m := c.MaxTokens
		opts.MaxTokens = &m
	}
	return opts
}

type TracingConfig struct {
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	CapturePrompts bool    `mapstructure:"capture_prompts"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TemplatesConfig struct {
	Dir string `mapstructure:"dir"`
}

type HistoryConfig struct {
	Backend  string `mapstructure:"backend"` // memory, sqlite, neo4j
	DSN      string `mapstructure:"dsn"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Limit    int    `mapstructure:"limit"`
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SecretsConfig selects where "secret:NAME" values are looked up.
type SecretsConfig struct {
	Backend    string `mapstructure:"backend"` // env, file, vault
	File       string `mapstructure:"file"`
	VaultAddr  string `mapstructure:"vault_addr"`
	VaultToken string `mapstructure:"vault_token"`
	VaultMount string `mapstructure:"vault_mount"`
	VaultPath  string `mapstructure:"vault_path"`
}

// ResolveSecrets passes every field that may hold a secret reference through
// resolve, including per-template API keys, and stores the results.
func (c *Config) ResolveSecrets(resolve func(string) (string, error)) error {
	for _, field := range []*string{&c.LLM.APIKey, &c.History.Password} {
		v, err := resolve(*field)
		if err != nil {
			return err
		}
		*field = v
	}
	for name, o := range c.LLM.Templates {
		v, err := resolve(o.APIKey)
		if err != nil {
			return fmt.Errorf("llm.templates.%s.api_key: %w", name, err)
		}
		o.APIKey = v
		c.LLM.Templates[name] = o
	}
	return nil
}

// apiKeyEnv names the conventional key variable per provider, consulted when
// llm.api_key is unset.
var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"groq":      "GROQ_API_KEY",
	"together":  "TOGETHER_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}
	switch c.History.Backend {
	case "", "memory":
	case "sqlite":
		if c.History.DSN == "" {
			warnings = append(warnings, "history backend 'sqlite' is configured but dsn is empty")
		}
	case "neo4j":
		if c.History.URI == "" {
			warnings = append(warnings, "history backend 'neo4j' is configured but uri is empty")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown history backend '%s'", c.History.Backend))
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("tracing.service_name", "quill")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.limit", 50)
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "quill_examples")
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "quill")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("secrets.backend", "env")
}

// Load reads configuration from an optional file, a .env file and the
// environment (QUILL_ prefix, "." replaced by "_"). An empty path uses
// defaults and the environment only.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{
		"llm.provider", "llm.model", "llm.api_key", "llm.base_url", "llm.embed_model",
		"secrets.vault_addr", "secrets.vault_token",
	} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		if env, ok := apiKeyEnv[cfg.LLM.Provider]; ok {
			cfg.LLM.APIKey = os.Getenv(env)
		}
	}

	return &cfg, nil
}

// loadDotEnv loads .env next to the config file, or in the working directory
// when no file is given. Existing environment variables win.
func loadDotEnv(path string) error {
	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	return nil
}
