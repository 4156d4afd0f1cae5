package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// Text strips HTML from a plain-text field such as an event name or
// timezone. Entities the policy escapes are decoded again so "&" survives,
// unless decoding would bring markup back.
func Text(input string) string {
	stripped := StrictPolicy.Sanitize(input)
	decoded := html.UnescapeString(stripped)
	if strings.ContainsAny(decoded, "<>") {
		return stripped
	}
	return strings.TrimSpace(decoded)
}

// TextPtr applies Text to an optional field.
func TextPtr(input *string) *string {
	if input == nil {
		return nil
	}
	out := Text(*input)
	return &out
}
