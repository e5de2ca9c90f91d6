package prompt

import (
	"regexp"
	"strings"
	"unicode"
)

// BannedWords is the app's own recording vocabulary. Narratives describe
// the person's days, not the act of using the journal.
var BannedWords = []string{
	"capture",
	"captured",
	"captures",
	"log",
	"logged",
	"logging",
	"entry",
	"entries",
	"record",
	"recorded",
	"recording",
	"tracked",
	"tracking",
	"check-in",
	"check-ins",
	"app",
	"journal",
	"data",
}

// Openers are the first words a narrative may start with: determiners and
// time references.
var Openers = []string{
	"the", "a", "an", "this", "that", "these", "those", "each", "every", "some",
	"morning", "mornings", "afternoon", "evening", "night", "tonight", "today",
	"yesterday", "earlier", "later", "dawn", "midday", "midweek",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
}

var (
	bannedPattern = buildBannedPattern(BannedWords)
	openerSet     = toSet(Openers)
)

func buildBannedPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// GlobalConstraints returns the rule block appended to every prompt.
func GlobalConstraints() string {
	var b strings.Builder
	b.WriteString("Rules that always apply:\n")
	b.WriteString("1. Write in the third person only. Never use \"you\", \"I\", \"we\" or address the reader.\n")
	b.WriteString("2. Plain prose only: no emojis, no markdown, no headings, no bullets, no numbered lists.\n")
	b.WriteString("3. Do not use question marks.\n")
	b.WriteString("4. Do not use exclamation marks.\n")
	b.WriteString("5. Never use these words: " + strings.Join(BannedWords, ", ") + ".\n")
	b.WriteString("6. Do not use dashes of any kind, including em dashes, en dashes or double hyphens. Use commas or separate sentences.\n")
	b.WriteString("7. Begin with a determiner such as The, A, This or Each, or with a time reference such as Morning, Today or Monday. Never open with an interjection such as Ah, Oh, Well or So.\n")
	b.WriteString("8. Never name or describe the writing style itself.\n")
	b.WriteString("9. Never state raw numbers, counts, percentages, scores, dates or clock times.\n")
	b.WriteString("10. Respond with the narrative text only.\n")
	return b.String()
}

// Violations lists contract breaches the model was asked to avoid but that
// no downstream step removes: banned words and a disallowed opening word.
// Results are lowercased and in order of appearance.
func Violations(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range bannedPattern.FindAllString(text, -1) {
		w := strings.ToLower(m)
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	if first := firstWord(text); first != "" && !openerSet[first] {
		out = append(out, "opening:"+first)
	}
	return out
}

func firstWord(text string) string {
	text = strings.TrimSpace(text)
	end := strings.IndexFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if end < 0 {
		end = len(text)
	}
	return strings.ToLower(text[:end])
}
