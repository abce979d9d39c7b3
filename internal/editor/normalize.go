package editor

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	betweenTagsRuns = regexp.MustCompile(`>\s+<`)
)

// normalize reduces HTML to a form where purely cosmetic whitespace
// differences compare equal.
func normalize(content string) string {
	out := whitespaceRun.ReplaceAllString(content, " ")
	out = betweenTagsRuns.ReplaceAllString(out, "><")
	return strings.TrimSpace(out)
}
