// internal/app/system/normalize/normalize.go
package normalize

import (
	"regexp"
	"strings"
)

const (
	// SlugMaxLen caps slugs so URLs stay short.
	SlugMaxLen = 64

	// MinTitleLen is the minimum raw title length before slugging.
	MinTitleLen = 3
)

var (
	quoteRe    = regexp.MustCompile(`['"]`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRe    = regexp.MustCompile(`\s+`)
	aliasRe    = regexp.MustCompile(`^[A-Za-z0-9 _-]{3,24}$`)
)

// Slug derives the URL slug for a post title: lowercase, trim, strip
// quote characters, collapse runs of non-alphanumerics to a single
// hyphen, strip leading/trailing hyphens, truncate to SlugMaxLen.
// Returns "" when the title yields no usable slug.
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = quoteRe.ReplaceAllString(s, "")
	s = nonAlnumRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > SlugMaxLen {
		s = s[:SlugMaxLen]
	}
	return s
}

// Alias trims and collapses internal whitespace, then checks the alias
// grammar: 3-24 characters of letters, digits, space, underscore,
// hyphen. The cleaned form (not the key) is what gets displayed.
func Alias(raw string) (cleaned string, ok bool) {
	cleaned = spaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	return cleaned, aliasRe.MatchString(cleaned)
}

// AliasKey folds an alias to its uniqueness key.
func AliasKey(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
