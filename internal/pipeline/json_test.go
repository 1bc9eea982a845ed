package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", `Here you go: {"a":1}. Done.`, `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestParseJSONObject(t *testing.T) {
	obj, err := parseJSONObject("```json\n{\"vin\": \"WBA123\", \"year\": 2022}\n```")
	require.NoError(t, err)
	assert.Equal(t, "WBA123", obj["vin"])

	_, err = parseJSONObject("")
	assert.Error(t, err)

	_, err = parseJSONObject(`{"unterminated": `)
	assert.Error(t, err)

	_, err = parseJSONObject(`[1, 2, 3]`)
	assert.Error(t, err, "arrays are not extraction objects")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("  short  ", 800))

	long := strings.Repeat("x", 900)
	got := snippet(long, 800)
	assert.Len(t, got, 803)
	assert.True(t, strings.HasSuffix(got, "..."))

	// Zero limit falls back to the default bound.
	assert.Len(t, snippet(long, 0), 803)
}
