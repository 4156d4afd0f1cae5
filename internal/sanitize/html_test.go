package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "script tag", input: `Launch <script>alert('xss')</script>party`, expected: `Launch party`},
		{name: "event handler", input: `<div onclick="alert(1)">Meetup</div>`, expected: `Meetup`},
		{name: "formatting", input: `<b>Go</b> <i>Night</i>`, expected: `Go Night`},
		{name: "ampersand kept", input: `Food & Drinks`, expected: `Food & Drinks`},
		{name: "surrounding space", input: `  Demo Day  `, expected: `Demo Day`},
		{name: "plain", input: `America/New_York`, expected: `America/New_York`},
		{name: "escaped markup stays escaped", input: `&lt;script&gt;`, expected: `&lt;script&gt;`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Text(tt.input))
		})
	}
}

func TestTextPtr(t *testing.T) {
	assert.Nil(t, TextPtr(nil))

	in := "<em>Workshop</em>"
	out := TextPtr(&in)
	if assert.NotNil(t, out) {
		assert.Equal(t, "Workshop", *out)
	}
	assert.Equal(t, "<em>Workshop</em>", in)
}
