package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	thinkSpanRe  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	blankLinesRe = regexp.MustCompile(`\n\s*\n`)
)

// Replies shorter than this after stripping indicate the model wrapped
// its whole answer in a think span; keep the original text then.
const minSanitizedRunes = 10

// SanitizeReply removes <think>...</think> spans the upstream model
// leaks into its answers, case-insensitively and across lines, and
// collapses the blank lines left behind.
func SanitizeReply(content string) string {
	cleaned := thinkSpanRe.ReplaceAllString(content, "")
	cleaned = blankLinesRe.ReplaceAllString(cleaned, "\n")
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) < minSanitizedRunes {
		return content
	}
	return cleaned
}
