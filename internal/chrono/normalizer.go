package chrono

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/moodjournal/insight-api/internal/model"
)

// Normalized is a payload after sorting and grouping. Only the fields
// relevant to Type are set.
type Normalized struct {
	Type     model.InsightType
	Location *time.Location

	// Captures is every capture in scope, ascending. For tag requests only
	// captures carrying the tag remain.
	Captures []model.CaptureRecord

	Subject *model.CaptureRecord // capture
	Date    string               // daily
	Start   string               // weekly
	End     string               // weekly
	Month   string               // month, YYYY-MM
	Tag     string               // tag
	Title   string               // album

	Days         []DayGroup
	Weeks        []WeekGroup
	Signals      *Signals
	Participants []Participant
	Timeline     []TimelineEntry
}

// Participant is an album participant with sorted captures.
type Participant struct {
	Name     string
	Captures []model.CaptureRecord
}

// TimelineEntry is one capture in the merged album timeline.
type TimelineEntry struct {
	Name    string
	Capture model.CaptureRecord
}

// Normalize sorts and groups a validated payload. The only error it returns
// is a validation failure, for a tag with no matching captures.
func Normalize(typ model.InsightType, p model.Payload) (*Normalized, error) {
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}
	n := &Normalized{Type: typ, Location: loc}

	switch v := p.(type) {
	case *model.CapturePayload:
		n.Captures = SortCaptures(v.Captures)
		subject := n.Captures[len(n.Captures)-1]
		n.Subject = &subject
		n.Days = GroupByDay(n.Captures, loc)

	case *model.DailyPayload:
		n.Captures = SortCaptures(v.Captures)
		n.Days = GroupByDay(n.Captures, loc)
		n.Date = v.Date
		if n.Date == "" {
			n.Date = n.Days[0].Date
		}

	case *model.WeeklyPayload:
		n.Captures = SortCaptures(v.Captures)
		n.Days = GroupByDay(n.Captures, loc)
		n.Start, n.End = v.StartDate, v.EndDate
		if n.Start == "" {
			n.Start = n.Days[0].Date
		}
		if n.End == "" {
			n.End = n.Days[len(n.Days)-1].Date
		}

	case *model.MonthPayload:
		n.Captures = SortCaptures(v.Captures)
		n.Days = GroupByDay(n.Captures, loc)
		n.Weeks = GroupByWeek(n.Captures, loc)
		signals := MonthSignals(n.Captures, loc)
		n.Signals = &signals
		n.Month = v.Month
		if n.Month == "" {
			n.Month = n.Days[0].Date[:7]
		}

	case *model.AlbumPayload:
		n.Title = v.Title
		for _, part := range v.Participants {
			sorted := SortCaptures(part.Captures)
			n.Participants = append(n.Participants, Participant{Name: part.Name, Captures: sorted})
			for _, c := range sorted {
				n.Timeline = append(n.Timeline, TimelineEntry{Name: part.Name, Capture: c})
				n.Captures = append(n.Captures, c)
			}
		}
		// Stable: ties keep participant order, then each participant's order.
		sort.SliceStable(n.Timeline, func(i, j int) bool {
			return n.Timeline[i].Capture.CapturedAt.Before(n.Timeline[j].Capture.CapturedAt)
		})
		n.Captures = SortCaptures(n.Captures)
		n.Days = GroupByDay(n.Captures, loc)

	case *model.TagPayload:
		n.Tag = model.NormalizeTag(v.Tag)
		n.Captures = FilterByTag(SortCaptures(v.Captures), n.Tag)
		if len(n.Captures) == 0 {
			return nil, eris.Errorf("no captures carry tag %q", n.Tag)
		}
		n.Days = GroupByDay(n.Captures, loc)

	default:
		return nil, eris.Errorf("unsupported payload %T", p)
	}

	return n, nil
}
