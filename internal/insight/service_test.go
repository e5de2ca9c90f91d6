package insight

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodjournal/insight-api/internal/auth"
	"github.com/moodjournal/insight-api/internal/model"
	"github.com/moodjournal/insight-api/internal/quota"
	"github.com/moodjournal/insight-api/internal/resilience"
)

type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	if token != "good" {
		return auth.Identity{}, eris.Wrap(auth.ErrUnauthorized, "bad token")
	}
	return auth.Identity{UserID: "user-1"}, nil
}

type stubModel struct {
	raw   []byte
	err   error
	calls atomic.Int32
	last  Generation
	block bool
	// during runs inside Generate, before the reply is returned.
	during func()
}

func (m *stubModel) Generate(ctx context.Context, g Generation) ([]byte, error) {
	m.calls.Add(1)
	m.last = g
	if m.during != nil {
		m.during()
	}
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.raw, m.err
}

func (m *stubModel) Model() string { return "gemini-2.5-flash" }

func captureRequest(t *testing.T) model.InsightRequest {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"captures": []map[string]any{{"mood": "calm", "capturedAt": "2024-01-01T09:00:00Z"}},
	})
	require.NoError(t, err)
	return model.InsightRequest{Type: model.InsightCapture, Data: data, Tone: "neutral"}
}

func newService(mc ModelClient) (*Service, *quota.MemoryStore, *quota.Ledger) {
	store := quota.NewMemoryStore()
	ledger := quota.NewLedger(store, quota.DefaultLimits())
	return New(stubAuth{}, ledger, mc, Options{}), store, ledger
}

func requireStage(t *testing.T, err error, stage model.Stage) *model.StageError {
	t.Helper()
	var se *model.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage, se.Stage)
	return se
}

func usage(t *testing.T, store *quota.MemoryStore, ledger *quota.Ledger) int {
	t.Helper()
	rec, err := store.Usage(context.Background(), "user-1", ledger.Day())
	require.NoError(t, err)
	return rec.CountToday
}

func TestHandle_PlainProseSucceeds(t *testing.T) {
	mc := &stubModel{raw: []byte("The morning held a quiet calm.")}
	svc, store, ledger := newService(mc)

	text, err := svc.Handle(context.Background(), Call{RequestID: "r1", Token: "good", Request: captureRequest(t)})
	require.NoError(t, err)
	assert.Equal(t, "The morning held a quiet calm.", text)
	assert.Equal(t, 1, usage(t, store, ledger))
	assert.Contains(t, mc.last.Prompt, "calm")
	assert.Equal(t, 512, mc.last.MaxOutputTokens)
}

func TestHandle_GeminiEnvelopeIsSanitized(t *testing.T) {
	raw := `{"candidates":[{"content":{"parts":[{"text":"The day moved slowly -- then settled."}]}}],"usageMetadata":{"promptTokenCount":100,"candidatesTokenCount":10}}`
	svc, _, _ := newService(&stubModel{raw: []byte(raw)})

	text, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	require.NoError(t, err)
	assert.Equal(t, "The day moved slowly, then settled.", text)
}

func TestHandle_AuthFailure(t *testing.T) {
	mc := &stubModel{raw: []byte("x")}
	svc, _, _ := newService(mc)

	_, err := svc.Handle(context.Background(), Call{Token: "bad", Request: captureRequest(t)})
	se := requireStage(t, err, model.StageAuth)
	assert.Equal(t, 401, se.Stage.Status())
	assert.Zero(t, mc.calls.Load())
}

func TestHandle_QuotaExceeded(t *testing.T) {
	mc := &stubModel{raw: []byte("The evening was calm.")}
	svc, store, ledger := newService(mc)
	for i := 0; i < 3; i++ {
		_, _, err := store.Increment(context.Background(), "user-1", ledger.Day(), 3)
		require.NoError(t, err)
	}

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	se := requireStage(t, err, model.StageRateLimit)
	assert.Equal(t, 0, se.Extra["remaining"])
	assert.Equal(t, 3, se.Extra["limit"])
	assert.Equal(t, "free", se.Extra["tier"])
	assert.Zero(t, mc.calls.Load())
	assert.Equal(t, 3, usage(t, store, ledger))
}

func TestHandle_LastAllowedRequest(t *testing.T) {
	svc, store, ledger := newService(&stubModel{raw: []byte("The evening was calm.")})
	for i := 0; i < 2; i++ {
		_, _, err := store.Increment(context.Background(), "user-1", ledger.Day(), 3)
		require.NoError(t, err)
	}

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	require.NoError(t, err)
	assert.Equal(t, 3, usage(t, store, ledger))
}

func TestHandle_ValidationFailureDoesNotCharge(t *testing.T) {
	mc := &stubModel{raw: []byte("x")}
	svc, store, ledger := newService(mc)
	req := model.InsightRequest{
		Type: model.InsightCapture,
		Data: json.RawMessage(`{"captures":[{"capturedAt":"2024-01-01T09:00:00Z"}]}`),
	}

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: req})
	se := requireStage(t, err, model.StageValidation)
	assert.Contains(t, se.Message, "mood")
	assert.Zero(t, mc.calls.Load())
	assert.Equal(t, 0, usage(t, store, ledger))
}

func TestHandle_TypeMismatchHidesDecoderDetail(t *testing.T) {
	svc, _, _ := newService(&stubModel{raw: []byte("x")})
	req := model.InsightRequest{
		Type: model.InsightCapture,
		Data: json.RawMessage(`{"captures":[{"mood":5,"capturedAt":"2024-01-01T09:00:00Z"}]}`),
	}

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: req})
	se := requireStage(t, err, model.StageValidation)
	assert.Contains(t, se.Message, "mood must be a string")
	assert.NotContains(t, se.Message, "json:")
	assert.NotContains(t, se.Message, "CaptureRecord")
	assert.Contains(t, se.Err.Error(), "cannot unmarshal")
}

func TestHandle_UnknownTagIsValidation(t *testing.T) {
	svc, _, _ := newService(&stubModel{raw: []byte("x")})
	req := model.InsightRequest{
		Type: model.InsightTag,
		Data: json.RawMessage(`{"tag":"work","captures":[{"mood":"calm","capturedAt":"2024-01-01T09:00:00Z","tags":["home"]}]}`),
	}

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: req})
	requireStage(t, err, model.StageValidation)
}

func TestHandle_ModelFailure(t *testing.T) {
	svc, store, ledger := newService(&stubModel{err: &resilience.UpstreamError{Provider: "gemini", StatusCode: 500}})

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	se := requireStage(t, err, model.StageModel)
	assert.Equal(t, 502, se.Stage.Status())
	assert.Equal(t, 0, usage(t, store, ledger))
}

func TestHandle_ModelTimeout(t *testing.T) {
	mc := &stubModel{block: true}
	store := quota.NewMemoryStore()
	svc := New(stubAuth{}, quota.NewLedger(store, quota.DefaultLimits()), mc, Options{Timeout: 20 * time.Millisecond})

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	se := requireStage(t, err, model.StageModel)
	assert.True(t, errors.Is(se, context.DeadlineExceeded))
}

func TestHandle_CallerCancelDoesNotAbortModel(t *testing.T) {
	store, err := quota.NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck
	ledger := quota.NewLedger(store, quota.DefaultLimits())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mc := &stubModel{raw: []byte("The night was still."), during: cancel}
	svc := New(stubAuth{}, ledger, mc, Options{})

	text, err := svc.Handle(ctx, Call{Token: "good", Request: captureRequest(t)})
	require.NoError(t, err)
	assert.Equal(t, "The night was still.", text)
	require.Error(t, ctx.Err())

	rec, err := store.Usage(context.Background(), "user-1", ledger.Day())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CountToday)
}

func TestHandle_EmptyModelOutput(t *testing.T) {
	svc, store, ledger := newService(&stubModel{raw: []byte("  \n -- \n")})

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	requireStage(t, err, model.StageResponseValidation)
	assert.Equal(t, 0, usage(t, store, ledger))
}

func TestHandle_NoModelConfigured(t *testing.T) {
	svc := New(stubAuth{}, nil, nil, Options{})

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	se := requireStage(t, err, model.StageConfig)
	assert.Equal(t, 500, se.Stage.Status())
}

func TestHandle_NilLedgerIsUnlimited(t *testing.T) {
	svc := New(stubAuth{}, nil, &stubModel{raw: []byte("The day was calm.")}, Options{})
	for i := 0; i < 5; i++ {
		_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
		require.NoError(t, err)
	}
}

func TestHandle_OpenBreakerFailsFast(t *testing.T) {
	mc := &stubModel{err: &resilience.UpstreamError{Provider: "gemini", StatusCode: 503}}
	svc, _, _ := newService(mc)
	svc.WithBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "model",
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	}))

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	requireStage(t, err, model.StageModel)

	_, err = svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	se := requireStage(t, err, model.StageModel)
	assert.Equal(t, msgModelDown, se.Message)
	assert.Equal(t, int32(1), mc.calls.Load())
}

type errStore struct{}

func (errStore) Usage(context.Context, string, string) (model.QuotaRecord, error) {
	return model.QuotaRecord{}, errors.New("connection refused")
}

func (errStore) Increment(context.Context, string, string, int) (int, bool, error) {
	return 0, false, errors.New("connection refused")
}

func (errStore) SetTier(context.Context, string, model.Tier) error { return nil }

func (errStore) Close() error { return nil }

func TestHandle_QuotaStoreErrorIsUnknown(t *testing.T) {
	svc := New(stubAuth{}, quota.NewLedger(errStore{}, quota.DefaultLimits()), &stubModel{raw: []byte("x")}, Options{})

	_, err := svc.Handle(context.Background(), Call{Token: "good", Request: captureRequest(t)})
	se := requireStage(t, err, model.StageUnknown)
	assert.Equal(t, msgQuotaUnknown, se.Message)
}

func TestNew_AppliesDefaults(t *testing.T) {
	svc := New(stubAuth{}, nil, nil, Options{})
	assert.Equal(t, DefaultOptions(), svc.opts)
}
