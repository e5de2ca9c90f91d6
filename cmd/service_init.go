package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/moodjournal/insight-api/internal/auth"
	"github.com/moodjournal/insight-api/internal/config"
	"github.com/moodjournal/insight-api/internal/db"
	"github.com/moodjournal/insight-api/internal/insight"
	"github.com/moodjournal/insight-api/internal/quota"
	"github.com/moodjournal/insight-api/internal/resilience"
	"github.com/moodjournal/insight-api/pkg/anthropic"
	"github.com/moodjournal/insight-api/pkg/gemini"
)

// serviceEnv holds the initialized store and pipeline used by serve.
type serviceEnv struct {
	Store   quota.Store // nil when quotas are disabled
	Service *insight.Service
}

// Close releases resources held by the environment.
func (se *serviceEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// initService builds the authenticator, quota ledger and model client from
// cfg. Callers should defer env.Close().
func initService(ctx context.Context, c *config.Config) (*serviceEnv, error) {
	if err := c.Validate("serve"); err != nil {
		return nil, err
	}

	authn := newAuthenticator(c.Auth)

	limits, err := quota.ParseLimits(c.Quota.Limits)
	if err != nil {
		return nil, err
	}

	var st quota.Store
	if c.Quota.Enabled {
		st, err = openStore(ctx, c.Quota)
		if err != nil {
			return nil, err
		}
		if m, ok := st.(migrator); ok {
			if err := m.Migrate(ctx); err != nil {
				_ = st.Close()
				return nil, eris.Wrap(err, "migrate quota store")
			}
		}
	} else {
		zap.L().Warn("quota enforcement disabled")
	}

	mc, err := newModelClient(ctx, c.Model)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	svc := insight.New(authn, quota.NewLedger(st, limits), mc, insight.Options{
		Timeout:         time.Duration(c.Model.TimeoutSecs) * time.Second,
		MaxTemperature:  c.Model.MaxTemperature,
		MaxOutputTokens: c.Model.MaxOutputTokens,
	}).
		WithBreaker(resilience.NewCircuitBreaker(resilience.FromConfig(c.Model.Provider, c.Model.BreakerThreshold, c.Model.BreakerResetSecs))).
		WithRates(c.Pricing)

	return &serviceEnv{Store: st, Service: svc}, nil
}

func newAuthenticator(c config.AuthConfig) auth.Authenticator {
	if c.Mode == config.AuthRemote {
		return auth.NewRemoteAuthenticator(c.URL, c.APIKey)
	}
	var opts []auth.JWTOption
	if c.Audience != "" {
		opts = append(opts, auth.WithAudience(c.Audience))
	}
	if c.Issuer != "" {
		opts = append(opts, auth.WithIssuer(c.Issuer))
	}
	return auth.NewJWTAuthenticator(c.JWTSecret, opts...)
}

// newModelClient returns nil when the provider key is missing, so that
// requests fail with stage config rather than the process refusing to start.
func newModelClient(ctx context.Context, c config.ModelConfig) (insight.ModelClient, error) {
	if c.Key() == "" {
		zap.L().Warn("model key not set, insight requests will fail", zap.String("provider", c.Provider))
		return nil, nil
	}

	switch c.Provider {
	case config.ProviderAnthropic:
		client := anthropic.NewClient(c.AnthropicKey, anthropic.WithMaxRetries(0))
		return insight.NewAnthropicModel(client, c.AnthropicModel), nil
	case config.ProviderGenAI:
		client, err := gemini.NewSDKClient(ctx, c.GeminiKey)
		if err != nil {
			return nil, err
		}
		return insight.NewGeminiModel(client, c.GeminiModel), nil
	default:
		client := gemini.NewClient(c.GeminiKey,
			gemini.WithBaseURL(c.GeminiBaseURL),
			gemini.WithRateLimit(c.RequestsPerSecond),
		)
		return insight.NewGeminiModel(client, c.GeminiModel), nil
	}
}

func openStore(ctx context.Context, c config.QuotaConfig) (quota.Store, error) {
	return quota.Open(ctx, quota.OpenConfig{
		Backend:     c.Store,
		DatabaseURL: c.DatabaseURL,
		SQLitePath:  c.SQLitePath,
		RedisURL:    c.RedisURL,
		Pool:        db.PoolConfig{MaxConns: c.MaxConns},
	})
}
