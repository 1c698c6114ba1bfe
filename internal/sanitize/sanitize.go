// Package sanitize cleans user-supplied text before it is stored. Uses
// bluemonday's strict policy so names and other plain-text fields can never
// carry markup into the rendered pages or CSV exports.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// policy strips every element and attribute. Initialized once via sync.Once.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text returns input with all HTML removed, control characters dropped and
// surrounding whitespace trimmed. Entities are decoded again after stripping
// so the stored value is plain text; templates escape it on output.
//
// This MUST be called on every display name before it is persisted.
func Text(input string) string {
	if input == "" {
		return ""
	}
	stripped := html.UnescapeString(getPolicy().Sanitize(input))
	stripped = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
	return strings.TrimSpace(stripped)
}

// CSVCell neutralizes spreadsheet formula injection in exported values.
// Cells that start with =, +, - or @ are prefixed with a single quote.
func CSVCell(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + value
	}
	return value
}
