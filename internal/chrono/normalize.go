// Package chrono orders and groups capture records deterministically.
//
// Every grouping function returns buckets in ascending key order; map
// iteration order never reaches a caller.
package chrono

import (
	"fmt"
	"sort"
	"time"

	"github.com/moodjournal/insight-api/internal/model"
)

// DayGroup is one calendar day of captures, oldest first.
type DayGroup struct {
	Date     string // YYYY-MM-DD
	Weekday  time.Weekday
	Captures []model.CaptureRecord
}

// WeekGroup is one ISO week of captures, oldest first.
type WeekGroup struct {
	Key      string // e.g. 2024-W01
	Start    string // Monday of the week, YYYY-MM-DD
	Days     []DayGroup
	Captures []model.CaptureRecord
}

// SortCaptures returns a copy of captures ordered ascending by CapturedAt.
// Captures with equal timestamps keep their input order.
func SortCaptures(captures []model.CaptureRecord) []model.CaptureRecord {
	out := make([]model.CaptureRecord, len(captures))
	copy(out, captures)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out
}

// DayKey returns the calendar date a capture belongs to: the explicit Date
// field when present, otherwise the timestamp truncated to the day in loc.
func DayKey(c model.CaptureRecord, loc *time.Location) string {
	if c.Date != "" {
		return c.Date
	}
	if loc == nil {
		loc = time.UTC
	}
	return c.CapturedAt.In(loc).Format(time.DateOnly)
}

// GroupByDay sorts captures and buckets them by DayKey. Buckets come back in
// ascending date order.
func GroupByDay(captures []model.CaptureRecord, loc *time.Location) []DayGroup {
	sorted := SortCaptures(captures)

	buckets := make(map[string][]model.CaptureRecord)
	for _, c := range sorted {
		key := DayKey(c, loc)
		buckets[key] = append(buckets[key], c)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]DayGroup, 0, len(keys))
	for _, k := range keys {
		g := DayGroup{Date: k, Captures: buckets[k]}
		if d, err := time.Parse(time.DateOnly, k); err == nil {
			g.Weekday = d.Weekday()
		}
		groups = append(groups, g)
	}
	return groups
}

// GroupByWeek buckets captures by ISO week of their day key. Weeks and the
// days inside them are in ascending order.
func GroupByWeek(captures []model.CaptureRecord, loc *time.Location) []WeekGroup {
	days := GroupByDay(captures, loc)

	var weeks []WeekGroup
	index := make(map[string]int)
	for _, day := range days {
		d, err := time.Parse(time.DateOnly, day.Date)
		if err != nil {
			continue
		}
		year, week := d.ISOWeek()
		key := isoWeekKey(year, week)

		i, ok := index[key]
		if !ok {
			offset := (int(d.Weekday()) + 6) % 7
			weeks = append(weeks, WeekGroup{
				Key:   key,
				Start: d.AddDate(0, 0, -offset).Format(time.DateOnly),
			})
			i = len(weeks) - 1
			index[key] = i
		}
		weeks[i].Days = append(weeks[i].Days, day)
		weeks[i].Captures = append(weeks[i].Captures, day.Captures...)
	}

	// Days are already ascending, so weeks are too; the sort guards against
	// explicit Date overrides that disagree with timestamps.
	sort.SliceStable(weeks, func(i, j int) bool { return weeks[i].Key < weeks[j].Key })
	return weeks
}

func isoWeekKey(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// FilterByTag keeps captures carrying tag, preserving order.
func FilterByTag(captures []model.CaptureRecord, tag string) []model.CaptureRecord {
	var out []model.CaptureRecord
	for _, c := range captures {
		if c.HasTag(tag) {
			out = append(out, c)
		}
	}
	return out
}

// Day parts used when a capture carries no TimeBucket label.
const (
	PartMorning   = "morning"
	PartAfternoon = "afternoon"
	PartEvening   = "evening"
	PartNight     = "night"
)

// DayPart returns the capture's TimeBucket label, or derives one from the
// local hour.
func DayPart(c model.CaptureRecord, loc *time.Location) string {
	if c.TimeBucket != "" {
		return c.TimeBucket
	}
	if loc == nil {
		loc = time.UTC
	}
	switch h := c.CapturedAt.In(loc).Hour(); {
	case h >= 5 && h < 12:
		return PartMorning
	case h >= 12 && h < 17:
		return PartAfternoon
	case h >= 17 && h < 21:
		return PartEvening
	default:
		return PartNight
	}
}
