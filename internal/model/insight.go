package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// InsightType selects the template and the shape of InsightRequest.Data.
type InsightType string

const (
	InsightCapture InsightType = "capture"
	InsightDaily   InsightType = "daily"
	InsightWeekly  InsightType = "weekly"
	InsightMonth   InsightType = "month"
	InsightAlbum   InsightType = "album"
	InsightTag     InsightType = "tag"
)

// InsightTypes lists every supported type in a stable order.
var InsightTypes = []InsightType{
	InsightCapture,
	InsightDaily,
	InsightWeekly,
	InsightMonth,
	InsightAlbum,
	InsightTag,
}

// Valid reports whether t is a known insight type.
func (t InsightType) Valid() bool {
	for _, known := range InsightTypes {
		if t == known {
			return true
		}
	}
	return false
}

// InsightRequest is the JSON body accepted by the insight endpoint.
// Data stays raw until the type is known; DecodePayload turns it into the
// matching payload struct.
type InsightRequest struct {
	Type             InsightType     `json:"type"`
	Data             json.RawMessage `json:"data"`
	Tone             string          `json:"tone"`
	CustomTonePrompt string          `json:"customTonePrompt,omitempty"`
}

// CaptureRecord is one user-logged mood event.
type CaptureRecord struct {
	Mood       string    `json:"mood"`
	Note       string    `json:"note,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
	Tags       []string  `json:"tags,omitempty"`
	TimeBucket string    `json:"timeBucket,omitempty"` // morning, afternoon, evening, night
	Date       string    `json:"date,omitempty"`       // YYYY-MM-DD; overrides the timestamp's day
}

// Validate checks the fields every template depends on.
func (c CaptureRecord) Validate() error {
	if strings.TrimSpace(c.Mood) == "" {
		return eris.New("capture is missing mood")
	}
	if c.CapturedAt.IsZero() {
		return eris.New("capture is missing capturedAt")
	}
	if c.Date != "" {
		if _, err := time.Parse(time.DateOnly, c.Date); err != nil {
			return eris.Errorf("capture date %q is not YYYY-MM-DD", c.Date)
		}
	}
	return nil
}

// HasTag reports whether the capture carries tag, ignoring case and a
// leading '#'.
func (c CaptureRecord) HasTag(tag string) bool {
	want := NormalizeTag(tag)
	if want == "" {
		return false
	}
	for _, t := range c.Tags {
		if NormalizeTag(t) == want {
			return true
		}
	}
	return false
}

// NormalizeTag lowercases a tag and strips surrounding space and '#'.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(tag), "#"))
}

// Payload is implemented by every per-type data struct.
type Payload interface {
	// Validate reports missing or malformed required fields.
	Validate() error
	// Location returns the timezone used for day bucketing.
	Location() (*time.Location, error)
}

// TimezoneField is embedded by payloads that accept an IANA timezone.
type TimezoneField struct {
	Timezone string `json:"timezone,omitempty"`
}

// Location resolves the timezone, defaulting to UTC.
func (f TimezoneField) Location() (*time.Location, error) {
	if f.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, eris.Errorf("unknown timezone %q", f.Timezone)
	}
	return loc, nil
}

func validateCaptures(captures []CaptureRecord) error {
	if len(captures) == 0 {
		return eris.New("captures must not be empty")
	}
	for i, c := range captures {
		if err := c.Validate(); err != nil {
			return eris.Wrapf(err, "captures[%d]", i)
		}
	}
	return nil
}

// CapturePayload holds a single moment; when several captures are sent the
// most recent one is the subject.
type CapturePayload struct {
	TimezoneField
	Captures []CaptureRecord `json:"captures"`
}

func (p *CapturePayload) Validate() error { return validateCaptures(p.Captures) }

// DailyPayload holds one day of captures.
type DailyPayload struct {
	TimezoneField
	Date     string          `json:"date,omitempty"`
	Captures []CaptureRecord `json:"captures"`
}

func (p *DailyPayload) Validate() error {
	if p.Date != "" {
		if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
			return eris.Errorf("date %q is not YYYY-MM-DD", p.Date)
		}
	}
	return validateCaptures(p.Captures)
}

// WeeklyPayload holds captures spanning several days.
type WeeklyPayload struct {
	TimezoneField
	StartDate string          `json:"startDate,omitempty"`
	EndDate   string          `json:"endDate,omitempty"`
	Captures  []CaptureRecord `json:"captures"`
}

func (p *WeeklyPayload) Validate() error { return validateCaptures(p.Captures) }

// MonthPayload holds a month of captures; aggregate signals are derived
// server side.
type MonthPayload struct {
	TimezoneField
	Month    string          `json:"month,omitempty"` // YYYY-MM
	Captures []CaptureRecord `json:"captures"`
}

func (p *MonthPayload) Validate() error {
	if p.Month != "" {
		if _, err := time.Parse("2006-01", p.Month); err != nil {
			return eris.Errorf("month %q is not YYYY-MM", p.Month)
		}
	}
	return validateCaptures(p.Captures)
}

// Participant is one named contributor to a shared album.
type Participant struct {
	Name     string          `json:"name"`
	Captures []CaptureRecord `json:"captures"`
}

// AlbumPayload holds entries from several named participants.
type AlbumPayload struct {
	TimezoneField
	Title        string        `json:"title,omitempty"`
	Participants []Participant `json:"participants"`
}

func (p *AlbumPayload) Validate() error {
	if len(p.Participants) == 0 {
		return eris.New("participants must not be empty")
	}
	for i, part := range p.Participants {
		if strings.TrimSpace(part.Name) == "" {
			return eris.Errorf("participants[%d] is missing name", i)
		}
		if err := validateCaptures(part.Captures); err != nil {
			return eris.Wrapf(err, "participants[%d]", i)
		}
	}
	return nil
}

// TagPayload holds captures to be filtered by one tag.
type TagPayload struct {
	TimezoneField
	Tag      string          `json:"tag"`
	Captures []CaptureRecord `json:"captures"`
}

func (p *TagPayload) Validate() error {
	if NormalizeTag(p.Tag) == "" {
		return eris.New("tag is required")
	}
	return validateCaptures(p.Captures)
}

// DecodePayload decodes Data into the payload struct for Type and validates
// it. Every error returned here is a validation failure.
func (r InsightRequest) DecodePayload() (Payload, error) {
	var p Payload
	switch r.Type {
	case InsightCapture:
		p = &CapturePayload{}
	case InsightDaily:
		p = &DailyPayload{}
	case InsightWeekly:
		p = &WeeklyPayload{}
	case InsightMonth:
		p = &MonthPayload{}
	case InsightAlbum:
		p = &AlbumPayload{}
	case InsightTag:
		p = &TagPayload{}
	case "":
		return nil, eris.New("type is required")
	default:
		return nil, eris.Errorf("unsupported insight type %q", r.Type)
	}

	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil, eris.Errorf("data is required for type %s", r.Type)
	}
	if err := json.Unmarshal(r.Data, p); err != nil {
		return nil, newDecodeError(r.Type, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.Location(); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeError is a payload that is valid JSON but does not fit the shape of
// its insight type. Error includes the decoder detail; Public does not.
type DecodeError struct {
	Type  InsightType
	Field string
	Want  string
	Err   error
}

func newDecodeError(typ InsightType, err error) *DecodeError {
	de := &DecodeError{Type: typ, Err: err}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		de.Field = te.Field
		de.Want = kindName(te.Type)
	}
	return de
}

// Public is the message safe to return to callers.
func (e *DecodeError) Public() string {
	if e.Want == "" {
		return "invalid data for type " + string(e.Type)
	}
	field := e.Field
	if field == "" {
		field = "data"
	}
	return "invalid data for type " + string(e.Type) + ": " + field + " must be " + e.Want
}

func (e *DecodeError) Error() string {
	return e.Public() + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func kindName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "true or false"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "a list"
	case reflect.Struct, reflect.Map:
		return "an object"
	default:
		return ""
	}
}
