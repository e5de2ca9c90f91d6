package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, AuthJWT, cfg.Auth.Mode)
	assert.Equal(t, "authenticated", cfg.Auth.Audience)
	assert.Equal(t, ProviderGemini, cfg.Model.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.GeminiModel)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta", cfg.Model.GeminiBaseURL)
	assert.Equal(t, 25, cfg.Model.TimeoutSecs)
	assert.InDelta(t, 1.0, cfg.Model.MaxTemperature, 0.001)
	assert.Equal(t, 512, cfg.Model.MaxOutputTokens)
	assert.Equal(t, 5, cfg.Model.BreakerThreshold)
	assert.Equal(t, 30, cfg.Model.BreakerResetSecs)
	assert.True(t, cfg.Quota.Enabled)
	assert.Equal(t, "memory", cfg.Quota.Store)
	assert.Equal(t, map[string]int{"free": 3, "plus": 10, "premium": 30}, cfg.Quota.Limits)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Pricing.Models)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
  allowed_origins: ["https://app.example.com"]
model:
  provider: anthropic
  anthropic_key: sk-ant
quota:
  store: sqlite
  sqlite_path: /tmp/q.db
  limits:
    plus: 12
pricing:
  models:
    - id: gemini-2.5-flash
      input: 0.3
      output: 2.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "sk-ant", cfg.Model.Key())
	assert.Equal(t, "sqlite", cfg.Quota.Store)
	assert.Equal(t, 12, cfg.Quota.Limits["plus"])
	require.Len(t, cfg.Pricing.Models, 1)
	assert.Equal(t, "gemini-2.5-flash", cfg.Pricing.Models[0].ID)
	// Defaults still apply for unset values
	assert.Equal(t, 25, cfg.Model.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
quota:
  store: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("INSIGHT_QUOTA_STORE", "postgres")
	t.Setenv("INSIGHT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Quota.Store)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("INSIGHT_SERVER_PORT", "3000")
	t.Setenv("INSIGHT_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("INSIGHT_MODEL_GEMINI_KEY", "g-key")
	t.Setenv("INSIGHT_QUOTA_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "g-key", cfg.Model.Key())
	assert.False(t, cfg.Quota.Enabled)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes serve validation.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Auth.Mode = AuthJWT
	cfg.Auth.JWTSecret = "secret"
	cfg.Model.Provider = ProviderGemini
	cfg.Quota.Enabled = true
	cfg.Quota.Store = "memory"
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_MissingModelKeyIsNotFatal(t *testing.T) {
	cfg := validDefaults()
	cfg.Model.GeminiKey = ""
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_MissingJWTSecret(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.JWTSecret = ""

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
}

func TestValidateServe_RemoteAuth(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.Mode = AuthRemote

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.url and auth.api_key")

	cfg.Auth.URL = "https://project.supabase.co"
	cfg.Auth.APIKey = "anon"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_CollectsProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.Mode = "basic"
	cfg.Model.Provider = "openai"
	cfg.Server.Port = 0
	cfg.Quota.Store = "postgres"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.mode must be jwt or remote")
	assert.Contains(t, err.Error(), "model.provider must be")
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "quota.database_url is required")
}

func TestValidateServe_QuotaDisabledSkipsStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Quota.Enabled = false
	cfg.Quota.Store = "postgres"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateMigrate(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres or sqlite")

	cfg.Quota.Store = "postgres"
	cfg.Quota.DatabaseURL = "postgres://localhost/insight"
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Quota.Store = "sqlite"
	cfg.Quota.SQLitePath = "insight.db"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateQuota(t *testing.T) {
	cfg := validDefaults()
	cfg.Quota.Store = "redis"

	err := cfg.Validate("quota")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota.redis_url is required")

	cfg.Quota.Store = "etcd"
	err = cfg.Validate("quota")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota.store must be")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestModelConfig_Key(t *testing.T) {
	m := ModelConfig{Provider: ProviderGenAI, GeminiKey: "g", AnthropicKey: "a"}
	assert.Equal(t, "g", m.Key())
	m.Provider = ProviderAnthropic
	assert.Equal(t, "a", m.Key())
}
