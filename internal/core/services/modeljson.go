package services

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

// flexList decodes a JSON value that models sometimes emit as a bare
// string instead of a list of strings.
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*l = nil
			return nil
		}
		*l = flexList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	out := make(flexList, 0, len(many))
	for _, v := range many {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	*l = out
	return nil
}

// extractJSONObject pulls the first top-level JSON object out of model
// output, tolerating markdown fences and surrounding prose.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return text, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", domain.ErrMalformedResponse
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", domain.ErrMalformedResponse
	}
	return candidate, nil
}

// extractJSONArray pulls the first top-level JSON array out of model
// output, tolerating markdown fences and surrounding prose.
func extractJSONArray(text string) (string, error) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "[") {
		return text, nil
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return "", domain.ErrMalformedResponse
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", domain.ErrMalformedResponse
	}
	return candidate, nil
}

// headChars returns at most n leading bytes of s, cut on a rune
// boundary so no multi-byte character is torn.
func headChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// tailChars returns at most n trailing bytes of s, cut on a rune
// boundary so no multi-byte character is torn.
func tailChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
