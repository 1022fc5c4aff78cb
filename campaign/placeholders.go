package campaign

import (
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{([^}]+)\}`)
	emailRe       = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ReplacePlaceholders replaces every {name} token in template with data[name].
// Tokens without a value in data are left as they are. Braces do not nest.
func ReplacePlaceholders(template string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(template, "{") {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		if v, ok := data[token[1:len(token)-1]]; ok {
			return v
		}
		return token
	})
}

// ValidEmail reports whether addr looks like a deliverable mailbox address.
func ValidEmail(addr string) bool {
	return emailRe.MatchString(addr)
}
