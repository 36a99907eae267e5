package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// StripMarkup removes every HTML element from free text and trims the result. Entities escaped by
// the policy are decoded again so plain text such as "Tom & Jerry" survives unchanged.
func StripMarkup(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
}
