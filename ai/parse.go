package ai

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// stripFences removes a surrounding Markdown code fence such as ```json ... ```.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseJSON returns the model output as a gjson value when it is valid JSON after fence stripping.
func parseJSON(text string) (gjson.Result, bool) {
	cleaned := stripFences(text)
	if cleaned == "" || !gjson.Valid(cleaned) {
		return gjson.Result{}, false
	}
	return gjson.Parse(cleaned), true
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}

// firstLines returns up to n non-blank lines of s.
func firstLines(s string, n int) []string {
	out := make([]string, 0, n)
	for _, line := range strings.Split(s, "\n") {
		if len(out) == n {
			break
		}
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// stringList collects the string form of every element of an array result.
func stringList(r gjson.Result) []string {
	out := []string{}
	r.ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

// percent reads scores given as 85, 85.0 or "85%".
func percent(r gjson.Result) int {
	if r.Type == gjson.String {
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(r.Str), "%"), 64)
		if err != nil {
			return 0
		}
		return int(f)
	}
	return int(r.Float())
}

// boolOr reads a boolean field, returning def when absent.
func boolOr(r gjson.Result, def bool) bool {
	if !r.Exists() {
		return def
	}
	return r.Bool()
}
