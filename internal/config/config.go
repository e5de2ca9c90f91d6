package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/moodjournal/insight-api/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig `yaml:"server" mapstructure:"server"`
	Auth    AuthConfig   `yaml:"auth" mapstructure:"auth"`
	Model   ModelConfig  `yaml:"model" mapstructure:"model"`
	Quota   QuotaConfig  `yaml:"quota" mapstructure:"quota"`
	Log     LogConfig    `yaml:"log" mapstructure:"log"`
	Pricing cost.Rates   `yaml:"pricing" mapstructure:"pricing"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// AuthConfig selects and configures the token verifier.
type AuthConfig struct {
	Mode      string `yaml:"mode" mapstructure:"mode"` // jwt or remote
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Audience  string `yaml:"audience" mapstructure:"audience"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
	URL       string `yaml:"url" mapstructure:"url"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
}

// ModelConfig configures the text generation provider.
type ModelConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // gemini, genai or anthropic
	GeminiKey         string  `yaml:"gemini_key" mapstructure:"gemini_key"`
	GeminiBaseURL     string  `yaml:"gemini_base_url" mapstructure:"gemini_base_url"`
	GeminiModel       string  `yaml:"gemini_model" mapstructure:"gemini_model"`
	AnthropicKey      string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel    string  `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTemperature    float64 `yaml:"max_temperature" mapstructure:"max_temperature"`
	MaxOutputTokens   int     `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Key returns the API key for the selected provider.
func (m ModelConfig) Key() string {
	if m.Provider == ProviderAnthropic {
		return m.AnthropicKey
	}
	return m.GeminiKey
}

// QuotaConfig configures the daily usage ledger.
type QuotaConfig struct {
	Enabled     bool           `yaml:"enabled" mapstructure:"enabled"`
	Store       string         `yaml:"store" mapstructure:"store"` // memory, postgres, sqlite or redis
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string         `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RedisURL    string         `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConns    int32          `yaml:"max_conns" mapstructure:"max_conns"`
	Limits      map[string]int `yaml:"limits" mapstructure:"limits"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Auth modes.
const (
	AuthJWT    = "jwt"
	AuthRemote = "remote"
)

// Model providers.
const (
	ProviderGemini    = "gemini"
	ProviderGenAI     = "genai"
	ProviderAnthropic = "anthropic"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to "" so that AutomaticEnv can see the keys.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.read_timeout_secs", 10)
	v.SetDefault("server.write_timeout_secs", 40)
	v.SetDefault("auth.mode", AuthJWT)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.url", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("model.provider", ProviderGemini)
	v.SetDefault("model.gemini_key", "")
	v.SetDefault("model.gemini_base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("model.gemini_model", "gemini-2.5-flash")
	v.SetDefault("model.anthropic_key", "")
	v.SetDefault("model.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("model.timeout_secs", 25)
	v.SetDefault("model.max_temperature", 1.0)
	v.SetDefault("model.max_output_tokens", 512)
	v.SetDefault("model.requests_per_second", 0)
	v.SetDefault("model.breaker_threshold", 5)
	v.SetDefault("model.breaker_reset_secs", 30)
	v.SetDefault("quota.enabled", true)
	v.SetDefault("quota.store", "memory")
	v.SetDefault("quota.database_url", "")
	v.SetDefault("quota.sqlite_path", "insight.db")
	v.SetDefault("quota.redis_url", "")
	v.SetDefault("quota.max_conns", 10)
	v.SetDefault("quota.limits", map[string]int{"free": 3, "plus": 10, "premium": 30})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate reports settings the given mode (serve, migrate or quota) cannot
// run without. A missing model key is not fatal for serve: requests then
// fail with stage config.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		switch c.Auth.Mode {
		case AuthJWT:
			if c.Auth.JWTSecret == "" {
				problems = append(problems, "auth.jwt_secret is required for auth.mode=jwt")
			}
		case AuthRemote:
			if c.Auth.URL == "" || c.Auth.APIKey == "" {
				problems = append(problems, "auth.url and auth.api_key are required for auth.mode=remote")
			}
		default:
			problems = append(problems, "auth.mode must be jwt or remote")
		}
		switch c.Model.Provider {
		case ProviderGemini, ProviderGenAI, ProviderAnthropic:
		default:
			problems = append(problems, "model.provider must be gemini, genai or anthropic")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		problems = append(problems, c.quotaProblems()...)
	case "migrate":
		switch c.Quota.Store {
		case "postgres", "sqlite":
		default:
			problems = append(problems, "quota.store must be postgres or sqlite to migrate")
		}
		problems = append(problems, c.storeProblems()...)
	case "quota":
		problems = append(problems, c.quotaProblems()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) quotaProblems() []string {
	if !c.Quota.Enabled {
		return nil
	}
	return c.storeProblems()
}

func (c *Config) storeProblems() []string {
	switch c.Quota.Store {
	case "memory":
	case "postgres":
		if c.Quota.DatabaseURL == "" {
			return []string{"quota.database_url is required for quota.store=postgres"}
		}
	case "sqlite":
		if c.Quota.SQLitePath == "" {
			return []string{"quota.sqlite_path is required for quota.store=sqlite"}
		}
	case "redis":
		if c.Quota.RedisURL == "" {
			return []string{"quota.redis_url is required for quota.store=redis"}
		}
	default:
		return []string{"quota.store must be memory, postgres, sqlite or redis"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
