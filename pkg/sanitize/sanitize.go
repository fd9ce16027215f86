// Package sanitize filters text before it is rendered or stored.
//
// It is a defense-in-depth filter, not an HTML sanitizer: the output is meant
// to be displayed as plain text and never interpreted as markup.
package sanitize

import (
	"regexp"
	"strings"
)

// DefaultMaxLength is the maximum number of runes Sanitize returns.
const DefaultMaxLength = 1000

var (
	scriptBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
		regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`),
		regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`),
	}

	eventHandler = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	jsScheme     = regexp.MustCompile(`(?i)javascript\s*:`)

	// & is handled in the same pass as the others, so existing entities are
	// escaped once and never re-escaped.
	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#039;",
	)
)

// Sanitizer runs the filtering pipeline. The zero value uses DefaultMaxLength.
type Sanitizer struct {
	MaxLength int
}

// New returns a Sanitizer with the default limits.
func New() *Sanitizer {
	return &Sanitizer{MaxLength: DefaultMaxLength}
}

var defaultSanitizer = New()

// Sanitize runs the default pipeline over input.
func Sanitize(input string) string {
	return defaultSanitizer.Sanitize(input)
}

// SanitizeValue sanitizes v when it is a string and returns "" otherwise.
func SanitizeValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Sanitize(s)
}

// Sanitize applies, in order: script-like block removal, HTML escaping,
// control character removal, event handler and javascript: removal,
// truncation and whitespace trimming.
func (s *Sanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}

	out := StripScripts(input)
	out = EscapeHTML(out)
	out = StripControl(out)
	out = StripHandlers(out)
	out = Truncate(out, s.maxLength())
	return strings.TrimSpace(out)
}

func (s *Sanitizer) maxLength() int {
	if s == nil || s.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return s.MaxLength
}

// StripScripts removes <script>, <style> and <iframe> blocks including their
// contents.
func StripScripts(input string) string {
	for _, re := range scriptBlocks {
		input = re.ReplaceAllString(input, "")
	}
	return input
}

// EscapeHTML escapes the five HTML metacharacters.
func EscapeHTML(input string) string {
	return htmlEscaper.Replace(input)
}

// StripControl removes C0 and C1 control characters. Newlines and tabs are
// replaced by a single space, carriage returns are dropped.
func StripControl(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r == '\n' || r == '\t':
			b.WriteByte(' ')
		case r <= 0x1f, r >= 0x7f && r <= 0x9f:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripHandlers removes inline event handler attributes (onclick= etc.) and
// javascript: URI schemes. It repeats until nothing matches, so a removal
// cannot splice a new match together ("javajavascript:script:").
func StripHandlers(input string) string {
	for {
		out := eventHandler.ReplaceAllString(input, "")
		out = jsScheme.ReplaceAllString(out, "")
		if out == input {
			return out
		}
		input = out
	}
}

// Truncate cuts input to at most maxRunes runes. The cut is hard: an entity
// split in half is left as is.
func Truncate(input string, maxRunes int) string {
	if len(input) <= maxRunes {
		return input
	}

	n := 0
	for i := range input {
		if n == maxRunes {
			return input[:i]
		}
		n++
	}
	return input
}
