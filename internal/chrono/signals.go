package chrono

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/moodjournal/insight-api/internal/model"
)

// Trend labels for Signals.Trend.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendSteady  = "steady"
)

// trendWindow is the span, ending on the last active day, treated as "recent".
const trendWindow = 7

// trendThreshold is the valence delta needed to call a trend.
const trendThreshold = 0.25

// moodValence places known mood ids on a -2..2 scale. Unknown moods count
// as 0 so they neither lift nor sink the trend.
var moodValence = map[string]float64{
	"ecstatic":    2,
	"joyful":      2,
	"happy":       2,
	"excited":     2,
	"grateful":    2,
	"loved":       2,
	"proud":       1.5,
	"content":     1,
	"calm":        1,
	"peaceful":    1,
	"relaxed":     1,
	"hopeful":     1,
	"focused":     0.5,
	"okay":        0,
	"neutral":     0,
	"meh":         0,
	"bored":       -0.5,
	"tired":       -1,
	"restless":    -1,
	"anxious":     -1.5,
	"stressed":    -1.5,
	"lonely":      -1.5,
	"frustrated":  -1.5,
	"sad":         -2,
	"angry":       -2,
	"overwhelmed": -2,
}

// Valence returns the -2..2 score for a mood id.
func Valence(mood string) float64 {
	return moodValence[strings.ToLower(strings.TrimSpace(mood))]
}

// Signals are the aggregate inputs for the month template. They are fed to
// the model as hints and must never appear as numbers in the narrative.
type Signals struct {
	Dominant   string
	RunnerUp   string
	ActiveDays int
	Volatility float64 // 0 = flat, 1 = swinging between extremes day to day
	Trend      string
}

// MonthSignals derives Signals from captures.
func MonthSignals(captures []model.CaptureRecord, loc *time.Location) Signals {
	days := GroupByDay(captures, loc)
	dominant, runnerUp := topMoods(SortCaptures(captures))

	return Signals{
		Dominant:   dominant,
		RunnerUp:   runnerUp,
		ActiveDays: len(days),
		Volatility: volatility(days),
		Trend:      trend(days),
	}
}

type moodTally struct {
	mood  string
	count int
	last  int // index of the most recent occurrence
}

// topMoods ranks moods by count, then most recent use, then name.
func topMoods(sorted []model.CaptureRecord) (string, string) {
	byMood := make(map[string]*moodTally)
	for i, c := range sorted {
		m := strings.ToLower(strings.TrimSpace(c.Mood))
		t, ok := byMood[m]
		if !ok {
			t = &moodTally{mood: m}
			byMood[m] = t
		}
		t.count++
		t.last = i
	}

	tallies := make([]*moodTally, 0, len(byMood))
	for _, t := range byMood {
		tallies = append(tallies, t)
	}
	sort.Slice(tallies, func(i, j int) bool {
		a, b := tallies[i], tallies[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.last != b.last {
			return a.last > b.last
		}
		return a.mood < b.mood
	})

	var dominant, runnerUp string
	if len(tallies) > 0 {
		dominant = tallies[0].mood
	}
	if len(tallies) > 1 {
		runnerUp = tallies[1].mood
	}
	return dominant, runnerUp
}

func dailyMeans(days []DayGroup) []float64 {
	means := make([]float64, len(days))
	for i, d := range days {
		var sum float64
		for _, c := range d.Captures {
			sum += Valence(c.Mood)
		}
		means[i] = sum / float64(len(d.Captures))
	}
	return means
}

// volatility is the mean absolute day-to-day change in valence, scaled to
// 0..1 by the width of the valence range and rounded to two places.
func volatility(days []DayGroup) float64 {
	means := dailyMeans(days)
	if len(means) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(means); i++ {
		total += math.Abs(means[i] - means[i-1])
	}
	v := total / float64(len(means)-1) / 4
	if v > 1 {
		v = 1
	}
	return math.Round(v*100) / 100
}

// trend compares the mean valence of the last trendWindow calendar days
// against everything before them.
func trend(days []DayGroup) string {
	if len(days) < 2 {
		return TrendSteady
	}
	last, err := time.Parse(time.DateOnly, days[len(days)-1].Date)
	if err != nil {
		return TrendSteady
	}
	cutoff := last.AddDate(0, 0, -(trendWindow - 1)).Format(time.DateOnly)

	means := dailyMeans(days)
	var recent, earlier []float64
	for i, d := range days {
		if d.Date >= cutoff {
			recent = append(recent, means[i])
		} else {
			earlier = append(earlier, means[i])
		}
	}
	if len(earlier) == 0 || len(recent) == 0 {
		return TrendSteady
	}

	delta := mean(recent) - mean(earlier)
	switch {
	case delta > trendThreshold:
		return TrendRising
	case delta < -trendThreshold:
		return TrendFalling
	default:
		return TrendSteady
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
