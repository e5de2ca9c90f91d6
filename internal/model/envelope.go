package model

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Stage names the pipeline step that produced a failure.
type Stage string

const (
	StageConfig             Stage = "config"
	StageAuth               Stage = "auth"
	StageRateLimit          Stage = "rate_limit"
	StageParse              Stage = "parse"
	StageValidation         Stage = "validation"
	StageModel              Stage = "gemini_api"
	StageResponseValidation Stage = "response_validation"
	StageUnknown            Stage = "unknown"
)

var stageStatus = map[Stage]int{
	StageConfig:             http.StatusInternalServerError,
	StageAuth:               http.StatusUnauthorized,
	StageRateLimit:          http.StatusTooManyRequests,
	StageParse:              http.StatusBadRequest,
	StageValidation:         http.StatusBadRequest,
	StageModel:              http.StatusBadGateway,
	StageResponseValidation: http.StatusInternalServerError,
	StageUnknown:            http.StatusInternalServerError,
}

// Status returns the HTTP status for the stage. Unrecognized stages map to 500.
func (s Stage) Status() int {
	if code, ok := stageStatus[s]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// StageError is a terminal pipeline failure. Message is safe to show to
// callers; Err holds the internal cause and is only logged.
type StageError struct {
	Stage   Stage
	Message string
	Extra   map[string]any
	Err     error
}

// NewStageError builds a StageError with an optional cause.
func NewStageError(stage Stage, message string, cause error) *StageError {
	return &StageError{Stage: stage, Message: message, Err: cause}
}

// WithExtra attaches a field that is flattened into the envelope's error object.
func (e *StageError) WithExtra(key string, value any) *StageError {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
	return e
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

// Envelope is the uniform response wrapper for success and failure.
type Envelope struct {
	OK        bool       `json:"ok"`
	Text      string     `json:"text,omitempty"`
	RequestID string     `json:"requestId"`
	Error     *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error object of a failed Envelope.
type ErrorBody struct {
	Stage   Stage
	Message string
	Status  int
	Extra   map[string]any
}

// MarshalJSON flattens Extra next to stage, message and status. Extra keys
// never override the fixed fields.
func (b ErrorBody) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		out[k] = v
	}
	out["stage"] = b.Stage
	out["message"] = b.Message
	out["status"] = b.Status
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON; unknown keys land in Extra.
func (b *ErrorBody) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = ErrorBody{}
	for k, v := range raw {
		var err error
		switch k {
		case "stage":
			err = json.Unmarshal(v, &b.Stage)
		case "message":
			err = json.Unmarshal(v, &b.Message)
		case "status":
			err = json.Unmarshal(v, &b.Status)
		default:
			var val any
			err = json.Unmarshal(v, &val)
			if err == nil {
				if b.Extra == nil {
					b.Extra = make(map[string]any)
				}
				b.Extra[k] = val
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Success builds a success envelope.
func Success(requestID, text string) Envelope {
	return Envelope{OK: true, Text: text, RequestID: requestID}
}

// Failure builds a failure envelope from a StageError.
func Failure(requestID string, se *StageError) Envelope {
	return Envelope{
		OK:        false,
		RequestID: requestID,
		Error: &ErrorBody{
			Stage:   se.Stage,
			Message: se.Message,
			Status:  se.Stage.Status(),
			Extra:   se.Extra,
		},
	}
}
