package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodjournal/insight-api/internal/auth"
	"github.com/moodjournal/insight-api/internal/insight"
	"github.com/moodjournal/insight-api/internal/model"
	"github.com/moodjournal/insight-api/internal/quota"
)

type pipelineFunc func(ctx context.Context, c insight.Call) (string, error)

func (f pipelineFunc) Handle(ctx context.Context, c insight.Call) (string, error) { return f(ctx, c) }

type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	if token != "good" {
		return auth.Identity{}, eris.Wrap(auth.ErrUnauthorized, "unknown token")
	}
	return auth.Identity{UserID: "user-1"}, nil
}

type recordingModel struct {
	prompts []string
	reply   string
}

func (m *recordingModel) Generate(_ context.Context, g insight.Generation) ([]byte, error) {
	m.prompts = append(m.prompts, g.Prompt)
	return []byte(m.reply), nil
}

func (m *recordingModel) Model() string { return "gemini-2.5-flash" }

const captureBody = `{"type":"capture","data":{"captures":[{"mood":"calm","capturedAt":"2024-01-01T09:00:00Z"}]},"tone":"neutral"}`

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, model.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env model.Envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func newServiceRouter(mc insight.ModelClient, store quota.Store) http.Handler {
	svc := insight.New(stubAuth{}, quota.NewLedger(store, quota.DefaultLimits()), mc, insight.Options{})
	return NewRouter(svc, Config{})
}

func TestCapturePlainProse(t *testing.T) {
	mc := &recordingModel{reply: "The morning settled into calm."}
	h := newServiceRouter(mc, quota.NewMemoryStore())

	rec, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, bearer("good"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.OK)
	assert.Equal(t, "The morning settled into calm.", env.Text)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, rec.Header().Get("X-Request-Id"))
	assert.Nil(t, env.Error)
}

func TestRootAlias(t *testing.T) {
	h := newServiceRouter(&recordingModel{reply: "The day was calm."}, quota.NewMemoryStore())
	rec, env := do(t, h, http.MethodPost, "/", captureBody, bearer("good"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.OK)
}

func TestMissingAuthorization(t *testing.T) {
	mc := &recordingModel{reply: "x"}
	h := newServiceRouter(mc, quota.NewMemoryStore())

	rec, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.OK)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.StageAuth, env.Error.Stage)
	assert.Equal(t, 401, env.Error.Status)
	assert.NotEmpty(t, env.RequestID)
	assert.Empty(t, mc.prompts)
}

func TestInvalidToken(t *testing.T) {
	h := newServiceRouter(&recordingModel{reply: "x"}, quota.NewMemoryStore())
	rec, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, bearer("expired"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.StageAuth, env.Error.Stage)
}

func TestFreeTierAtLimit(t *testing.T) {
	store := quota.NewMemoryStore()
	ledger := quota.NewLedger(store, quota.DefaultLimits())
	for i := 0; i < 3; i++ {
		_, _, err := store.Increment(context.Background(), "user-1", ledger.Day(), 3)
		require.NoError(t, err)
	}
	h := newServiceRouter(&recordingModel{reply: "x"}, store)

	rec, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, bearer("good"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.StageRateLimit, env.Error.Stage)
	assert.Equal(t, 429, env.Error.Status)
	assert.EqualValues(t, 0, env.Error.Extra["remaining"])

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.EqualValues(t, 0, raw["error"]["remaining"])
}

func TestMalformedJSON(t *testing.T) {
	h := newServiceRouter(&recordingModel{reply: "x"}, quota.NewMemoryStore())
	rec, env := do(t, h, http.MethodPost, "/v1/insights", `{"type":`, bearer("good"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.StageParse, env.Error.Stage)

	rec, env = do(t, h, http.MethodPost, "/v1/insights", ``, bearer("good"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.StageParse, env.Error.Stage)

	for _, trailing := range []string{" garbage", ` {"type":"daily"}`, "}"} {
		rec, env = do(t, h, http.MethodPost, "/v1/insights", captureBody+trailing, bearer("good"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, trailing)
		assert.Equal(t, model.StageParse, env.Error.Stage, trailing)
		assert.Equal(t, msgBadJSON, env.Error.Message, trailing)
	}

	rec, _ = do(t, h, http.MethodPost, "/v1/insights", captureBody+"\n  \n", bearer("good"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyTooLarge(t *testing.T) {
	h := NewRouter(pipelineFunc(func(context.Context, insight.Call) (string, error) { return "x", nil }), Config{MaxBodyBytes: 16})
	rec, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, bearer("good"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.StageParse, env.Error.Stage)
	assert.Equal(t, msgTooLarge, env.Error.Message)
}

func TestValidationFailure(t *testing.T) {
	h := newServiceRouter(&recordingModel{reply: "x"}, quota.NewMemoryStore())
	body := `{"type":"daily","data":{"captures":[]},"tone":"neutral"}`
	rec, env := do(t, h, http.MethodPost, "/v1/insights", body, bearer("good"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.StageValidation, env.Error.Stage)
}

func TestWeeklyDaysAscendInPrompt(t *testing.T) {
	mc := &recordingModel{reply: "The week began heavy and ended lighter."}
	h := newServiceRouter(mc, quota.NewMemoryStore())
	body := `{"type":"weekly","tone":"neutral","data":{"captures":[
		{"mood":"happy","capturedAt":"2024-01-03T18:00:00Z"},
		{"mood":"tired","capturedAt":"2024-01-02T08:00:00Z"}
	]}}`

	rec, _ := do(t, h, http.MethodPost, "/v1/insights", body, bearer("good"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, mc.prompts, 1)

	p := mc.prompts[0]
	day1 := strings.Index(p, "Day 1")
	day2 := strings.Index(p, "Day 2")
	require.True(t, day1 >= 0 && day2 > day1, p)
	assert.Less(t, strings.Index(p, "tired"), strings.Index(p, "happy"))
}

func TestNonStageErrorIsUnknown(t *testing.T) {
	h := NewRouter(pipelineFunc(func(context.Context, insight.Call) (string, error) {
		return "", eris.New("db password=hunter2 leaked")
	}), Config{})

	rec, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, bearer("good"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, model.StageUnknown, env.Error.Stage)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestPanicIsUnknown(t *testing.T) {
	h := NewRouter(pipelineFunc(func(context.Context, insight.Call) (string, error) {
		panic("boom")
	}), Config{})

	rec, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, bearer("good"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.OK)
	assert.Equal(t, model.StageUnknown, env.Error.Stage)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestPipelineReceivesCall(t *testing.T) {
	var got insight.Call
	h := NewRouter(pipelineFunc(func(_ context.Context, c insight.Call) (string, error) {
		got = c
		return "ok", nil
	}), Config{})

	_, env := do(t, h, http.MethodPost, "/v1/insights", captureBody, bearer("tok"))
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, model.InsightCapture, got.Request.Type)
	assert.Equal(t, env.RequestID, got.RequestID)
}

func TestOptionsShortCircuits(t *testing.T) {
	called := false
	h := NewRouter(pipelineFunc(func(context.Context, insight.Call) (string, error) {
		called = true
		return "", nil
	}), Config{})

	rec, _ := do(t, h, http.MethodOptions, "/v1/insights", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.False(t, called)
}

func TestCORSPreflight(t *testing.T) {
	h := NewRouter(pipelineFunc(func(context.Context, insight.Call) (string, error) { return "", nil }), Config{
		AllowedOrigins: []string{"https://app.example.com"},
	})

	rec, _ := do(t, h, http.MethodOptions, "/v1/insights", "", map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "authorization, content-type",
	})
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h := NewRouter(pipelineFunc(func(context.Context, insight.Call) (string, error) { return "", nil }), Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestIDsAreUnique(t *testing.T) {
	h := NewRouter(pipelineFunc(func(context.Context, insight.Call) (string, error) { return "x", nil }), Config{})
	_, a := do(t, h, http.MethodPost, "/", captureBody, bearer("t"))
	_, b := do(t, h, http.MethodPost, "/", captureBody, bearer("t"))
	assert.NotEqual(t, a.RequestID, b.RequestID)
}
