package services

import (
	"encoding/json"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

func TestExtractJSONObjectFromFencedReply(t *testing.T) {
	reply := "Here is the annotation:\n```json\n{\"summary\": \"heat flux\"}\n```\nDone."
	raw, err := extractJSONObject(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary": "heat flux"}`, raw)
}

func TestExtractJSONObjectPlain(t *testing.T) {
	raw, err := extractJSONObject(`{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, raw)
}

func TestExtractJSONObjectRejectsProse(t *testing.T) {
	_, err := extractJSONObject("I could not annotate this chunk.")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestExtractJSONObjectRejectsTruncated(t *testing.T) {
	_, err := extractJSONObject(`{"summary": "cut off`)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestExtractJSONArrayFromProse(t *testing.T) {
	reply := "Sure! [{\"question\": \"q\", \"answer\": \"a\"}] hope that helps"
	raw, err := extractJSONArray(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"question": "q", "answer": "a"}]`, raw)
}

func TestExtractJSONArrayEmptyIsValid(t *testing.T) {
	raw, err := extractJSONArray("[]")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestFlexListAcceptsStringAndList(t *testing.T) {
	var got struct {
		Single flexList `json:"single"`
		Many   flexList `json:"many"`
		Blank  flexList `json:"blank"`
	}
	data := `{"single": "thermodynamics", "many": ["hpc", "", "numerics"], "blank": ""}`
	require.NoError(t, json.Unmarshal([]byte(data), &got))

	assert.Equal(t, flexList{"thermodynamics"}, got.Single)
	assert.Equal(t, flexList{"hpc", "numerics"}, got.Many)
	assert.Empty(t, got.Blank)
}

func TestHeadAndTailChars(t *testing.T) {
	assert.Equal(t, "abc", headChars("abcdef", 3))
	assert.Equal(t, "def", tailChars("abcdef", 3))
	assert.Equal(t, "abcdef", headChars("abcdef", 0))
	assert.Equal(t, "abcdef", tailChars("abcdef", 100))
}

func TestHeadAndTailCharsKeepRunesIntact(t *testing.T) {
	// "Wärme" is W, ä (2 bytes), r, m, e. A cut inside the umlaut must
	// back off to the previous rune boundary.
	assert.Equal(t, "W", headChars("Wärme", 2))
	assert.Equal(t, "Wä", headChars("Wärme", 3))
	assert.Equal(t, "e", tailChars("Wärme", 1))
	assert.Equal(t, "bertragung", tailChars("Wärmeübertragung", 11))

	for _, s := range []string{"Wärmeübertragung", "für äöüß Größen"} {
		for n := 1; n < len(s); n++ {
			assert.True(t, utf8.ValidString(headChars(s, n)), "head %q n=%d", s, n)
			assert.True(t, utf8.ValidString(tailChars(s, n)), "tail %q n=%d", s, n)
		}
	}
}
