package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// objectSpan returns the text between the first '{' and the last '}' of s.
func objectSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// parseObject decodes the object span of s. Every call parses from scratch;
// responses are a few kilobytes so no parser state is carried between tokens.
func parseObject(s string) (Record, error) {
	obj, ok := objectSpan(s)
	if !ok {
		return nil, errNoObject
	}
	var rec Record
	if err := json.Unmarshal([]byte(obj), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// segments splits buf into trimmed, non-empty lines.
func segments(buf string) []string {
	lines := strings.Split(buf, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// previewMatcher finds the (possibly unterminated) string value of one field.
type previewMatcher struct {
	re *regexp.Regexp
}

func newPreviewMatcher(field string) *previewMatcher {
	return &previewMatcher{
		re: regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:[^"\\]|\\.)*)`),
	}
}

// Match returns the decoded text currently inside the field's quotes.
func (m *previewMatcher) Match(buf string) (string, bool) {
	sub := m.re.FindStringSubmatch(buf)
	if sub == nil {
		return "", false
	}
	return decodePartial(sub[1]), true
}

// decodePartial unescapes a JSON string body that may end mid-escape. At most
// five trailing bytes are dropped, enough to cover an unfinished \uXXXX. A
// high surrogate still waiting for its low half is dropped as well, so the
// preview never shows a replacement character the final text will not have.
func decodePartial(raw string) string {
	for trim := 0; trim <= 5 && trim <= len(raw); trim++ {
		body := raw[:len(raw)-trim]
		if highSurrogateTail(body) {
			body = body[:len(body)-6]
		}
		var s string
		if err := json.Unmarshal([]byte(`"`+body+`"`), &s); err == nil {
			return s
		}
	}
	return raw
}

// highSurrogateTail reports whether body ends with an unescaped \uD800-\uDBFF.
func highSurrogateTail(body string) bool {
	n := len(body)
	if n < 6 || body[n-6] != '\\' || body[n-5] != 'u' {
		return false
	}
	v, err := strconv.ParseUint(body[n-4:], 16, 16)
	if err != nil || v < 0xD800 || v > 0xDBFF {
		return false
	}
	slashes := 0
	for i := n - 7; i >= 0 && body[i] == '\\'; i-- {
		slashes++
	}
	return slashes%2 == 0
}
