package insightclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Insight is the narrative shown to the user, plus the tags and colors a
// legacy capture response may carry.
type Insight struct {
	Narrative string
	Tags      []string
	Colors    []string
}

// narrativeKeys are tried in order on a legacy inline JSON object.
var narrativeKeys = []string{"narrative", "insight", "text"}

// ParseInsightText reads the text of a success envelope. Older capture
// responses encode a JSON object in text; when that object has a narrative
// it is used, otherwise the whole string is the narrative.
func ParseInsightText(text string) Insight {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return Insight{Narrative: text}
	}

	obj := gjson.Parse(trimmed)
	var narrative string
	for _, key := range narrativeKeys {
		if v := obj.Get(key); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			narrative = v.String()
			break
		}
	}
	if narrative == "" {
		return Insight{Narrative: text}
	}

	return Insight{
		Narrative: narrative,
		Tags:      stringArray(obj.Get("tags")),
		Colors:    stringArray(obj.Get("colors")),
	}
}

func stringArray(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		if item.Type == gjson.String {
			out = append(out, item.String())
		}
	}
	return out
}

// Messages shown to users. Only rate_limit is distinguished.
const (
	GenericFailure = "We couldn't generate your insight right now. Please try again."
	quotaFallback  = "You've reached today's insight limit. Try again tomorrow."
)

// UserMessage turns a Generate error into text for the user. Quota
// failures name the tier and allowance when the envelope carries them.
// Every other failure, including transport errors, gets GenericFailure.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var f *Failed
	if !errors.As(err, &f) || f.Stage != "rate_limit" {
		return GenericFailure
	}
	if f.Limit <= 0 || f.Tier == "" {
		return quotaFallback
	}

	plural := "insights"
	if f.Limit == 1 {
		plural = "insight"
	}
	msg := fmt.Sprintf("You've used all %d %s for today on the %s plan.", f.Limit, plural, f.Tier)
	if f.Tier != "premium" {
		msg += " Upgrade for more, or try again tomorrow."
	} else {
		msg += " Try again tomorrow."
	}
	return msg
}
