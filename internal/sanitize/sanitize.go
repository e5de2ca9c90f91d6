// Package sanitize enforces the output style contract on extracted model
// text and rejects results with no usable content.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// dashClass matches figure, en, em and horizontal-bar dashes plus the
// two- and three-em dashes.
const dashClass = `[\x{2012}-\x{2015}\x{2E3A}\x{2E3B}]`

var (
	// A run of dashes or double hyphens with the spaces around it. Only
	// spaces are consumed so line breaks survive.
	dashRun = regexp.MustCompile(` *(?:` + dashClass + `|-{2,})(?: *(?:` + dashClass + `|-{2,}))* *`)

	blankLines   = regexp.MustCompile(`\n{3,}`)
	spaceNewline = regexp.MustCompile(` +\n`)
	commaSpaces  = regexp.MustCompile(`, (?:, )+`)
)

// ErrEmpty is returned by Validate for text with no usable content.
var ErrEmpty = eris.New("sanitize: empty result")

// Sanitize rewrites text to satisfy the punctuation and whitespace rules.
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(s string) string {
	s = norm.NFC.String(s)
	s = stripControls(s)
	s = dashRun.ReplaceAllString(s, ", ")
	s = commaSpaces.ReplaceAllString(s, ", ")
	s = spaceNewline.ReplaceAllString(s, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	return norm.NFC.String(s)
}

// stripControls drops control and format characters except newlines and
// turns tabs into spaces.
func stripControls(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t' || r == '\r':
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// Validate rejects empty, whitespace-only or letter-free text.
func Validate(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmpty
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) < 0 {
		return eris.Wrap(ErrEmpty, "sanitize: no letters or digits")
	}
	return nil
}
