package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFirstJSONObject(t *testing.T) {
	t.Parallel()

	t.Run("Should extract a bare object", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, `{"a":1}`, ExtractFirstJSONObject(`{"a":1}`))
	})

	t.Run("Should strip surrounding prose and code fences", func(t *testing.T) {
		t.Parallel()
		in := "Here is the assessment:\n```json\n{\"urgency\": \"high\"}\n```\nLet me know."
		assert.Equal(t, `{"urgency": "high"}`, ExtractFirstJSONObject(in))
	})

	t.Run("Should balance nested objects", func(t *testing.T) {
		t.Parallel()
		in := `prefix {"a": {"b": {"c": 1}}, "d": 2} suffix {"e": 3}`
		assert.Equal(t, `{"a": {"b": {"c": 1}}, "d": 2}`, ExtractFirstJSONObject(in))
	})

	t.Run("Should ignore braces inside strings", func(t *testing.T) {
		t.Parallel()
		in := `{"note": "open { and close } in text", "n": 1}`
		assert.Equal(t, in, ExtractFirstJSONObject(in))
	})

	t.Run("Should honor escaped quotes inside strings", func(t *testing.T) {
		t.Parallel()
		in := `{"quote": "she said \"help {now}\"", "n": 1}`
		assert.Equal(t, in, ExtractFirstJSONObject(in))
	})

	t.Run("Should return empty for input without an object", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", ExtractFirstJSONObject("no json here"))
		assert.Equal(t, "", ExtractFirstJSONObject(""))
	})

	t.Run("Should return empty for an unterminated object", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", ExtractFirstJSONObject(`{"a": 1`))
	})
}
