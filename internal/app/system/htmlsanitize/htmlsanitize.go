// internal/app/system/htmlsanitize/htmlsanitize.go

// Package htmlsanitize owns the bluemonday policies applied to every
// piece of user-generated markup before it reaches a template.
package htmlsanitize

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the permissive policy for rendered rich-text documents: UGC
// defaults plus the formatting the editor vocabulary can produce.
var policy = newPolicy()

// strict strips all tags; used for plain-text comment bodies.
var strict = bluemonday.StrictPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("u", "s", "sub", "sup", "mark")
	p.AllowTables()
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("style").OnElements("table", "thead", "tbody", "tr", "td", "th")
	return p
}

// Sanitize returns s with everything outside the allowed vocabulary
// removed.
func Sanitize(s string) string {
	return policy.Sanitize(s)
}

// SanitizeToHTML sanitizes s and marks the result safe for templates.
func SanitizeToHTML(s string) template.HTML {
	return template.HTML(policy.Sanitize(s))
}

// StripTags removes all markup, leaving plain text.
func StripTags(s string) string {
	return strict.Sanitize(s)
}

// IsPlainText reports whether s contains no HTML tags. Lone < or >
// characters (e.g. "5 < 10") still count as plain text.
func IsPlainText(s string) bool {
	lt := strings.Index(s, "<")
	if lt == -1 {
		return true
	}
	return !strings.Contains(s[lt:], ">")
}

// PlainTextToHTML escapes s and wraps it in a paragraph, turning
// newlines into <br>. Empty input stays empty.
func PlainTextToHTML(s string) string {
	if s == "" {
		return ""
	}
	escaped := html.EscapeString(s)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}

// PrepareForDisplay renders stored content for a template: plain text is
// escaped and paragraph-wrapped, anything containing markup is
// sanitized.
func PrepareForDisplay(s string) template.HTML {
	if s == "" {
		return ""
	}
	if IsPlainText(s) {
		return template.HTML(PlainTextToHTML(s))
	}
	return SanitizeToHTML(s)
}
