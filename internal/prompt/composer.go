// Package prompt composes model prompts from normalized captures and a
// resolved tone. Composition is pure: the same input always yields the same
// prompt.
package prompt

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/moodjournal/insight-api/internal/chrono"
	"github.com/moodjournal/insight-api/internal/model"
)

// maxNoteRunes bounds each note quoted into a prompt.
const maxNoteRunes = 280

// Prompt is a composed prompt and its sampling temperature.
type Prompt struct {
	Type        model.InsightType
	Text        string
	Temperature float64
}

// temperatures per insight type. Short pieces get more room to vary.
var temperatures = map[model.InsightType]float64{
	model.InsightCapture: 0.9,
	model.InsightDaily:   0.8,
	model.InsightWeekly:  0.75,
	model.InsightMonth:   0.7,
	model.InsightAlbum:   0.8,
	model.InsightTag:     0.9,
}

// Temperature returns the sampling temperature for typ, clamped to
// [0, maxTemp].
func Temperature(typ model.InsightType, maxTemp float64) float64 {
	t, ok := temperatures[typ]
	if !ok {
		t = 0.7
	}
	if t > maxTemp {
		t = maxTemp
	}
	if t < 0 {
		t = 0
	}
	return t
}

const preamble = "You write short reflective narratives about a person's emotional days.\n\n"

// Compose builds the prompt for a normalized request.
func Compose(n *chrono.Normalized, tone model.ToneDefinition, maxTemp float64) (Prompt, error) {
	if n == nil {
		return Prompt{}, eris.New("prompt: nil input")
	}

	var task string
	switch n.Type {
	case model.InsightCapture:
		task = captureTask(n)
	case model.InsightDaily:
		task = dailyTask(n)
	case model.InsightWeekly:
		task = weeklyTask(n)
	case model.InsightMonth:
		task = monthTask(n)
	case model.InsightAlbum:
		task = albumTask(n)
	case model.InsightTag:
		task = tagTask(n)
	default:
		return Prompt{}, eris.Errorf("prompt: unsupported insight type %q", n.Type)
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("Style guide:\n")
	b.WriteString(tone.StyleGuide)
	b.WriteString("\n\n")
	b.WriteString(task)
	b.WriteString("\n")
	b.WriteString(GlobalConstraints())

	return Prompt{
		Type:        n.Type,
		Text:        b.String(),
		Temperature: Temperature(n.Type, maxTemp),
	}, nil
}

// writeMoment renders one capture as a single material line.
func writeMoment(b *strings.Builder, prefix string, c model.CaptureRecord, loc *time.Location) {
	local := c.CapturedAt.In(loc)
	fmt.Fprintf(b, "- %s%s, %s: feeling %s.", prefix, chrono.DayPart(c, loc), local.Format("15:04"), strings.ToLower(strings.TrimSpace(c.Mood)))
	if note := cleanNote(c.Note); note != "" {
		fmt.Fprintf(b, " Note: %q.", note)
	}
	if len(c.Tags) > 0 {
		tags := make([]string, 0, len(c.Tags))
		for _, t := range c.Tags {
			if nt := model.NormalizeTag(t); nt != "" {
				tags = append(tags, nt)
			}
		}
		if len(tags) > 0 {
			fmt.Fprintf(b, " Context: %s.", strings.Join(tags, ", "))
		}
	}
	b.WriteString("\n")
}

// cleanNote flattens whitespace and control characters and bounds length.
func cleanNote(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxNoteRunes {
		s = string([]rune(s)[:maxNoteRunes]) + "..."
	}
	return s
}

func longDate(date string) string {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return d.Format("Monday, January 2")
}
