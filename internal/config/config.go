// Package config loads netcraft settings from an optional YAML file, the
// environment and a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"netcraft/internal/logging"
	"netcraft/internal/memory"
	"netcraft/internal/provider"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Preference []string                  `mapstructure:"preference"`
	Agent      AgentConfig               `mapstructure:"agent"`
	Memory     MemoryConfig              `mapstructure:"memory"`
	Tools      ToolsConfig               `mapstructure:"tools"`
	Log        logging.Config            `mapstructure:"log"`
	DB         DBConfig                  `mapstructure:"db"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	RateLimit  RateLimitConfig           `mapstructure:"rate_limit"`
}

type ProviderConfig struct {
	Name        string  `mapstructure:"name"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Local       bool    `mapstructure:"local"`
	Temperature float64 `mapstructure:"temperature"`
}

type AgentConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	StepTimeout   time.Duration `mapstructure:"step_timeout"`
	ReasonTimeout time.Duration `mapstructure:"reason_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type MemoryConfig struct {
	SummarizeThreshold int `mapstructure:"summarize_threshold"`
	KeepTurns          int `mapstructure:"keep_turns"`
	KeepMarkers        int `mapstructure:"keep_markers"`
}

type ToolsConfig struct {
	RingSize     int           `mapstructure:"ring_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

type DBConfig struct {
	Path     string `mapstructure:"path"`
	Disabled bool   `mapstructure:"disabled"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
}

type providerDefault struct {
	name, model, baseURL string
	local                bool
	keyEnv               []string
}

var providerDefaults = map[string]providerDefault{
	"openai": {
		name:   "OpenAI",
		model:  "gpt-3.5-turbo",
		keyEnv: []string{"OPENAI_API_KEY"},
	},
	"gemini": {
		name:    "Google Gemini",
		model:   "gemini-2.5-flash-lite",
		baseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
		keyEnv:  []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	},
	"claude": {
		name:    "Anthropic Claude",
		model:   "claude-3-5-sonnet-20241022",
		baseURL: "https://api.anthropic.com/v1/",
		keyEnv:  []string{"ANTHROPIC_API_KEY"},
	},
	"openrouter": {
		name:    "OpenRouter",
		model:   "openai/gpt-4o-mini",
		baseURL: "https://openrouter.ai/api/v1/",
		keyEnv:  []string{"OPENROUTER_API_KEY"},
	},
	"ollama": {
		name:    "Ollama (local)",
		model:   "llama3.1:8b",
		baseURL: "http://localhost:11434",
		local:   true,
	},
}

func setDefaults(v *viper.Viper) {
	for id, d := range providerDefaults {
		key := "providers." + id
		v.SetDefault(key+".name", d.name)
		v.SetDefault(key+".model", d.model)
		v.SetDefault(key+".base_url", d.baseURL)
		v.SetDefault(key+".local", d.local)
		v.SetDefault(key+".api_key", "")
		v.SetDefault(key+".temperature", 0.0)

		upper := strings.ToUpper(id)
		_ = v.BindEnv(key+".model", upper+"_MODEL")
		if d.local {
			_ = v.BindEnv(key+".base_url", upper+"_BASE_URL")
		}
		if len(d.keyEnv) > 0 {
			_ = v.BindEnv(append([]string{key + ".api_key"}, d.keyEnv...)...)
		}
	}
	v.SetDefault("preference", provider.DefaultOrder)

	def := memory.DefaultConfig()
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.step_timeout", 60*time.Second)
	v.SetDefault("agent.reason_timeout", 90*time.Second)
	v.SetDefault("agent.max_retries", 2)
	v.SetDefault("memory.summarize_threshold", def.SummarizeThreshold)
	v.SetDefault("memory.keep_turns", def.KeepTurns)
	v.SetDefault("memory.keep_markers", def.KeepMarkers)
	v.SetDefault("tools.ring_size", 10)
	v.SetDefault("tools.timeout", 60*time.Second)
	v.SetDefault("tools.probe_timeout", 2*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("db.path", "")
	v.SetDefault("db.disabled", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("rate_limit.requests_per_minute", 30.0)
}

// Load reads configuration. An empty path looks for netcraft.yaml in the
// working directory and the user config directory; a missing file there is
// not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NETCRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("netcraft")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "netcraft"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	expandKeys(&cfg)
	return &cfg, nil
}

// expandKeys resolves api_key values written as ${VAR} in the file.
func expandKeys(cfg *Config) {
	for id, pc := range cfg.Providers {
		if strings.HasPrefix(pc.APIKey, "$") {
			name := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(pc.APIKey, "$"), "{"), "}")
			pc.APIKey = os.Getenv(name)
			cfg.Providers[id] = pc
		}
	}
}

// ProviderSpecs converts the providers section for the selector.
func (c *Config) ProviderSpecs() []provider.Spec {
	specs := make([]provider.Spec, 0, len(c.Providers))
	for id, pc := range c.Providers {
		specs = append(specs, provider.Spec{
			ID:      id,
			Name:    pc.Name,
			Model:   pc.Model,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Local:   pc.Local,
		})
	}
	return specs
}

func (c *Config) MemoryConfig() memory.Config {
	return memory.Config{
		SummarizeThreshold: c.Memory.SummarizeThreshold,
		KeepTurns:          c.Memory.KeepTurns,
		KeepMarkers:        c.Memory.KeepMarkers,
	}
}

// DBPath returns the audit database location, defaulting to the user
// config directory.
func (c *Config) DBPath() (string, error) {
	if c.DB.Path != "" {
		return c.DB.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "netcraft", "netcraft.db"), nil
}
