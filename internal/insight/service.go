// Package insight runs one insight request through every pipeline stage and
// reports failures as *model.StageError.
package insight

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moodjournal/insight-api/internal/auth"
	"github.com/moodjournal/insight-api/internal/chrono"
	"github.com/moodjournal/insight-api/internal/cost"
	"github.com/moodjournal/insight-api/internal/extract"
	"github.com/moodjournal/insight-api/internal/model"
	"github.com/moodjournal/insight-api/internal/prompt"
	"github.com/moodjournal/insight-api/internal/quota"
	"github.com/moodjournal/insight-api/internal/resilience"
	"github.com/moodjournal/insight-api/internal/sanitize"
	"github.com/moodjournal/insight-api/internal/tone"
)

// User-facing messages. Internal causes are logged, never returned.
const (
	msgNoModel       = "Insight generation is not configured"
	msgInvalidToken  = "Invalid or expired token"
	msgQuotaExceeded = "Daily insight limit reached"
	msgQuotaUnknown  = "Unable to check usage"
	msgModelFailed   = "Model request failed"
	msgModelDown     = "Model is temporarily unavailable"
	msgEmptyResult   = "Model returned an empty insight"
	msgUnknown       = "Internal error"
)

// commitTimeout bounds the quota increment after a successful generation.
const commitTimeout = 5 * time.Second

// Options tunes the service.
type Options struct {
	Timeout         time.Duration
	MaxTemperature  float64
	MaxOutputTokens int
}

// DefaultOptions returns the defaults used when a field is zero.
func DefaultOptions() Options {
	return Options{
		Timeout:         25 * time.Second,
		MaxTemperature:  1.0,
		MaxOutputTokens: 512,
	}
}

// Call is one authenticated-or-not request handed over by the gateway.
type Call struct {
	RequestID string
	Token     string
	Request   model.InsightRequest
}

// Service holds the collaborators of the pipeline. All fields are read-only
// after construction, so one Service serves concurrent requests.
type Service struct {
	auth    auth.Authenticator
	ledger  *quota.Ledger
	model   ModelClient
	breaker *resilience.CircuitBreaker
	costs   *cost.Calculator
	opts    Options
}

// New creates a Service. A nil model client makes every request fail with
// stage config. A nil ledger disables quota enforcement.
func New(authn auth.Authenticator, ledger *quota.Ledger, mc ModelClient, opts Options) *Service {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxTemperature <= 0 {
		opts.MaxTemperature = def.MaxTemperature
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = def.MaxOutputTokens
	}
	return &Service{
		auth:   authn,
		ledger: ledger,
		model:  mc,
		costs:  cost.NewCalculator(cost.DefaultRates()),
		opts:   opts,
	}
}

// WithBreaker wraps model calls in cb.
func (s *Service) WithBreaker(cb *resilience.CircuitBreaker) *Service {
	s.breaker = cb
	return s
}

// WithRates replaces the pricing used for cost attribution.
func (s *Service) WithRates(rates cost.Rates) *Service {
	if len(rates.Models) > 0 {
		s.costs = cost.NewCalculator(rates)
	}
	return s
}

// Handle runs c through authentication, quota admission, validation,
// composition, generation, extraction and sanitizing. The quota is charged
// only after a valid result. Every returned error is a *model.StageError.
func (s *Service) Handle(ctx context.Context, c Call) (string, error) {
	log := zap.L().With(zap.String("request_id", c.RequestID), zap.String("type", string(c.Request.Type)))

	if s.model == nil || s.auth == nil {
		return "", model.NewStageError(model.StageConfig, msgNoModel, nil)
	}

	ident, err := s.auth.Authenticate(ctx, c.Token)
	if err != nil {
		return "", model.NewStageError(model.StageAuth, msgInvalidToken, err)
	}
	log = log.With(zap.String("user_id", ident.UserID))

	adm, err := s.ledger.Check(ctx, ident.UserID)
	if err != nil {
		return "", quotaError(err)
	}

	payload, err := c.Request.DecodePayload()
	if err != nil {
		return "", model.NewStageError(model.StageValidation, validationMessage(err), err)
	}
	norm, err := chrono.Normalize(c.Request.Type, payload)
	if err != nil {
		return "", model.NewStageError(model.StageValidation, validationMessage(err), err)
	}

	td := tone.Resolve(c.Request.Tone, c.Request.CustomTonePrompt)
	p, err := prompt.Compose(norm, td, s.opts.MaxTemperature)
	if err != nil {
		return "", model.NewStageError(model.StageUnknown, msgUnknown, err)
	}

	raw, err := s.generate(ctx, p)
	if err != nil {
		msg := msgModelFailed
		if errors.Is(err, resilience.ErrCircuitOpen) {
			msg = msgModelDown
		}
		return "", model.NewStageError(model.StageModel, msg, err)
	}
	s.logCost(log, raw)

	res := extract.Extract(raw)
	text := sanitize.Sanitize(res.Text)
	if err := sanitize.Validate(text); err != nil {
		return "", model.NewStageError(model.StageResponseValidation, msgEmptyResult, err).
			WithExtra("source", string(res.Source))
	}
	if v := prompt.Violations(text); len(v) > 0 {
		log.Warn("insight: output breaks style contract", zap.Strings("violations", v))
	}

	count, err := s.commit(ctx, adm)
	if err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			return "", quotaError(err)
		}
		// The insight exists; losing one count is preferable to discarding it.
		log.Error("insight: quota commit failed", zap.Error(err))
	}

	log.Info("insight: generated",
		zap.String("tone", td.ID),
		zap.String("source", string(res.Source)),
		zap.Int("count_today", count),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// generate makes the model call detached from the caller's cancellation
// and bounded by the configured timeout.
func (s *Service) generate(ctx context.Context, p prompt.Prompt) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	return resilience.Execute(callCtx, s.breaker, func(ctx context.Context) ([]byte, error) {
		return s.model.Generate(ctx, Generation{
			Prompt:          p.Text,
			Temperature:     p.Temperature,
			MaxOutputTokens: s.opts.MaxOutputTokens,
		})
	})
}

// commit counts the generation even when the caller has gone away.
func (s *Service) commit(ctx context.Context, adm quota.Admission) (int, error) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	return s.ledger.Commit(commitCtx, adm)
}

func (s *Service) logCost(log *zap.Logger, raw []byte) {
	usage, ok := cost.UsageFromPayload(raw, s.model.Model())
	if !ok {
		return
	}
	log.Info("insight: cost attribution",
		zap.String("model", usage.Model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Int("cached_tokens", usage.CachedTokens),
		zap.Float64("estimated_cost_usd", s.costs.Cost(usage)),
	)
}

func quotaError(err error) *model.StageError {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		return model.NewStageError(model.StageRateLimit, msgQuotaExceeded, err).
			WithExtra("remaining", exceeded.Remaining()).
			WithExtra("limit", exceeded.Limit).
			WithExtra("tier", string(exceeded.Tier))
	}
	return model.NewStageError(model.StageUnknown, msgQuotaUnknown, err)
}

// validationMessage returns the caller-facing reason for a rejected
// payload. Decoder detail stays in the wrapped cause for the log.
func validationMessage(err error) string {
	var de *model.DecodeError
	if errors.As(err, &de) {
		return de.Public()
	}
	msg := err.Error()
	if i := strings.Index(msg, "\n"); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
