// Package gateway exposes the insight pipeline over HTTP and wraps every
// outcome in a model.Envelope.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/moodjournal/insight-api/internal/auth"
	"github.com/moodjournal/insight-api/internal/insight"
	"github.com/moodjournal/insight-api/internal/model"
)

// DefaultMaxBodyBytes bounds request bodies when Config leaves it unset.
const DefaultMaxBodyBytes int64 = 1 << 20

const (
	msgMissingAuth = "Missing or malformed authorization header"
	msgBadJSON     = "Request body must be valid JSON"
	msgTooLarge    = "Request body is too large"
	msgInternal    = "Internal error"
)

// Pipeline handles one decoded insight call.
type Pipeline interface {
	Handle(ctx context.Context, c insight.Call) (string, error)
}

// Config configures the router.
type Config struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Handler serves the insight endpoint.
type Handler struct {
	pipeline Pipeline
	maxBody  int64
}

// NewHandler creates a Handler around p.
func NewHandler(p Pipeline, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{pipeline: p, maxBody: maxBody}
}

// NewRouter builds the HTTP routes: POST /v1/insights and its alias POST /,
// OPTIONS on both, and GET /health.
func NewRouter(p Pipeline, cfg Config) http.Handler {
	h := NewHandler(p, cfg.MaxBodyBytes)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "apikey", "x-client-info"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	for _, path := range []string{"/", "/v1/insights"} {
		r.Options(path, preflight)
		r.Post(path, h.ServeInsight)
	}
	return r
}

// preflight answers OPTIONS requests the CORS handler let through, before
// any auth or quota work.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ServeInsight reads the bearer token and JSON body, runs the pipeline and
// writes the envelope.
func (h *Handler) ServeInsight(w http.ResponseWriter, r *http.Request) {
	reqID := RequestID(r.Context())

	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeFailure(w, reqID, model.NewStageError(model.StageAuth, msgMissingAuth, err))
		return
	}

	var req model.InsightRequest
	if err := decodeBody(http.MaxBytesReader(w, r.Body, h.maxBody), &req); err != nil {
		msg := msgBadJSON
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = msgTooLarge
		} else if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		writeFailure(w, reqID, model.NewStageError(model.StageParse, msg, err))
		return
	}

	text, err := h.pipeline.Handle(r.Context(), insight.Call{
		RequestID: reqID,
		Token:     token,
		Request:   req,
	})
	if err != nil {
		var se *model.StageError
		if !errors.As(err, &se) {
			se = model.NewStageError(model.StageUnknown, msgInternal, err)
		}
		writeFailure(w, reqID, se)
		return
	}

	writeEnvelope(w, http.StatusOK, model.Success(reqID, text))
}

// decodeBody decodes exactly one JSON value from body into v.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		return eris.Wrap(err, "gateway: trailing data after request body")
	}
	return nil
}

// writeFailure logs the failure and writes its envelope.
func writeFailure(w http.ResponseWriter, reqID string, se *model.StageError) {
	status := se.Stage.Status()
	fields := []zap.Field{
		zap.String("request_id", reqID),
		zap.String("stage", string(se.Stage)),
		zap.String("message", se.Message),
		zap.Int("status", status),
	}
	if se.Err != nil {
		fields = append(fields, zap.Error(se.Err))
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("gateway: request failed", fields...)
	} else {
		zap.L().Warn("gateway: request rejected", fields...)
	}
	writeEnvelope(w, status, model.Failure(reqID, se))
}

func writeEnvelope(w http.ResponseWriter, status int, env model.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		zap.L().Warn("gateway: write envelope", zap.String("request_id", env.RequestID), zap.Error(err))
	}
}

var errTrailingData = eris.New("unexpected data after JSON value")

type ctxKey struct{}

// RequestID returns the id assigned to the request, or "" outside the
// router.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// requestID assigns a fresh UUID to every request.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// recoverer turns a panic into an unknown-stage envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zap.L().Error("gateway: panic",
				zap.String("request_id", RequestID(r.Context())),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			writeFailure(w, RequestID(r.Context()), model.NewStageError(model.StageUnknown, msgInternal, nil))
		}()
		next.ServeHTTP(w, r)
	})
}
