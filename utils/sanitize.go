package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy  = bluemonday.StrictPolicy()
	angleStripper = strings.NewReplacer("<", "", ">", "")
)

// SanitizeText strips all markup from free text (claim descriptions, addresses, chat messages)
// and trims it to max runes. max <= 0 disables truncation.
func SanitizeText(input string, max int) string {
	// StrictPolicy escapes entities; portal text is plain, so unescape once.
	out := html.UnescapeString(strictPolicy.Sanitize(input))
	// entity-encoded tags must not come back to life after unescaping
	out = strings.TrimSpace(angleStripper.Replace(out))
	if max > 0 {
		if rs := []rune(out); len(rs) > max {
			out = string(rs[:max])
		}
	}
	return out
}
