// Package sanitize cleans user-provided text before it is stored. Book
// titles, authors, and notes are plain text in Geek Console, so the policy
// strips markup entirely rather than allowlisting tags.
package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

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

// Text strips all HTML from user input and trims surrounding whitespace.
// Call it on every free-text field before it reaches the database.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(getPolicy().Sanitize(input))
}
