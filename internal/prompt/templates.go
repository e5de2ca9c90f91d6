package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moodjournal/insight-api/internal/chrono"
	"github.com/moodjournal/insight-api/internal/model"
)

func captureTask(n *chrono.Normalized) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString("Write a micro-reflection of one or two sentences about a single moment.\n")
	b.WriteString("Let the details of the note color the reflection without quoting it.\n\n")
	b.WriteString("The moment:\n")
	writeMoment(&b, "", *n.Subject, n.Location)
	return b.String()
}

func dailyTask(n *chrono.Normalized) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	fmt.Fprintf(&b, "Write a single paragraph of two to five sentences about %s.\n", longDate(n.Date))
	b.WriteString("Follow this arc in order: the baseline feeling the day started from, the moment it shifted, how the shift resolved, and one closing line of reflection.\n")
	b.WriteString("If the feeling never shifted, let the steadiness itself be the shift worth noticing.\n\n")
	b.WriteString("Moments of the day, in order:\n")
	for _, day := range n.Days {
		for _, c := range day.Captures {
			writeMoment(&b, "", c, n.Location)
		}
	}
	return b.String()
}

func weeklyTask(n *chrono.Normalized) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	fmt.Fprintf(&b, "Write a narrative of three to five sentences covering %d days as one continuous arc: the opening energy, the shift in the middle of the period, and the state it closed in.\n", len(n.Days))
	b.WriteString("Do not go day by day, do not itemize moments, and do not mention dates or weekday names.\n\n")
	b.WriteString("Material grouped by day, in order:\n")
	for i, day := range n.Days {
		fmt.Fprintf(&b, "Day %d:\n", i+1)
		for _, c := range day.Captures {
			writeMoment(&b, "", c, n.Location)
		}
	}
	return b.String()
}

func monthTask(n *chrono.Normalized) string {
	var b strings.Builder
	s := n.Signals

	b.WriteString("Task:\n")
	fmt.Fprintf(&b, "Write a narrative of three to five sentences about %s.\n", monthName(n.Month))
	b.WriteString("Use the background signals to shape the story, but never state numbers, counts, percentages or scores in the narrative.\n\n")

	b.WriteString("Background signals:\n")
	fmt.Fprintf(&b, "- most frequent feeling: %s\n", s.Dominant)
	if s.RunnerUp != "" {
		fmt.Fprintf(&b, "- second most frequent feeling: %s\n", s.RunnerUp)
	}
	fmt.Fprintf(&b, "- active days: %d (%s)\n", s.ActiveDays, presenceWord(s.ActiveDays))
	fmt.Fprintf(&b, "- volatility: %.2f on a scale from 0 (steady) to 1 (swinging), which reads as %s\n", s.Volatility, volatilityWord(s.Volatility))
	fmt.Fprintf(&b, "- recent direction: %s\n\n", s.Trend)

	b.WriteString("Weeks in order:\n")
	for i, w := range n.Weeks {
		fmt.Fprintf(&b, "Week %d: %s.", i+1, moodSummary(w.Captures))
		if notes := weekNotes(w.Captures, 3); len(notes) > 0 {
			fmt.Fprintf(&b, " Notes: %s.", strings.Join(notes, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func albumTask(n *chrono.Normalized) string {
	var b strings.Builder
	names := make([]string, len(n.Participants))
	for i, p := range n.Participants {
		names[i] = p.Name
	}

	b.WriteString("Task:\n")
	if n.Title != "" {
		fmt.Fprintf(&b, "Write a narrative of three to six sentences about a shared album titled %q.\n", cleanNote(n.Title))
	} else {
		b.WriteString("Write a narrative of three to six sentences about a shared album.\n")
	}
	fmt.Fprintf(&b, "Name every participant at least once: %s.\n", strings.Join(names, ", "))
	b.WriteString("Weave their moments into one story rather than separate portraits.\n\n")

	b.WriteString("Moments in order:\n")
	dayIndex := make(map[string]int)
	for _, d := range n.Days {
		dayIndex[d.Date] = len(dayIndex) + 1
	}
	for _, e := range n.Timeline {
		prefix := fmt.Sprintf("day %d, %s, ", dayIndex[chrono.DayKey(e.Capture, n.Location)], e.Name)
		writeMoment(&b, prefix, e.Capture, n.Location)
	}
	return b.String()
}

func tagTask(n *chrono.Normalized) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	fmt.Fprintf(&b, "Write a reflection of one or two sentences on what %q seems to mean in this person's life, based on the moments below.\n", n.Tag)
	b.WriteString("Never write the theme with a hash symbol.\n\n")
	b.WriteString("Moments carrying this theme, in order:\n")
	for _, c := range n.Captures {
		writeMoment(&b, "", c, n.Location)
	}
	return b.String()
}

func monthName(month string) string {
	d, err := time.Parse("2006-01", month)
	if err != nil {
		return "the month"
	}
	return d.Format("January 2006")
}

func presenceWord(days int) string {
	switch {
	case days >= 20:
		return "present almost every day"
	case days >= 10:
		return "present most weeks"
	case days >= 4:
		return "present now and then"
	default:
		return "present only a few times"
	}
}

func volatilityWord(v float64) string {
	switch {
	case v < 0.15:
		return "very steady"
	case v < 0.35:
		return "mostly steady"
	case v < 0.6:
		return "changeable"
	default:
		return "turbulent"
	}
}

// moodSummary lists moods by frequency, then name, without counts.
func moodSummary(captures []model.CaptureRecord) string {
	counts := make(map[string]int)
	for _, c := range captures {
		counts[strings.ToLower(strings.TrimSpace(c.Mood))]++
	}
	moods := make([]string, 0, len(counts))
	for m := range counts {
		moods = append(moods, m)
	}
	sort.Slice(moods, func(i, j int) bool {
		if counts[moods[i]] != counts[moods[j]] {
			return counts[moods[i]] > counts[moods[j]]
		}
		return moods[i] < moods[j]
	})
	return "mostly " + strings.Join(moods, ", then ")
}

func weekNotes(captures []model.CaptureRecord, limit int) []string {
	var notes []string
	for _, c := range captures {
		if note := cleanNote(c.Note); note != "" {
			notes = append(notes, fmt.Sprintf("%q", note))
			if len(notes) == limit {
				break
			}
		}
	}
	return notes
}
