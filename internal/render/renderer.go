// Package render implements placeholder substitution for campaign templates.
//
// The grammar is deliberately closed: a fixed set of named placeholders is
// replaced by literal string substitution. Anything else between doubled
// braces is left untouched. This is not a general templating engine.
package render

import (
	"strings"

	"mailmerge/internal/types"
)

// Placeholders is the closed set of supported placeholder names, in the
// order they are offered to template authors.
var Placeholders = []string{
	"First Name",
	"Last Name",
	"Position",
	"Company Name",
	"LinkedIn Profile Link",
	"Company Website Link",
	"Email Address",
}

// Tokens returns the placeholder names wrapped in their {{...}} token form.
func Tokens() []string {
	out := make([]string, len(Placeholders))
	for i, name := range Placeholders {
		out[i] = "{{" + name + "}}"
	}
	return out
}

// Render merges a template string with one row. Every literal occurrence of
// {{Name}} for each supported placeholder is replaced by the row's value for
// that column, or the empty string when the column is absent or blank.
//
// A nil row returns the template unchanged, placeholders left literal.
// Unknown {{...}} tokens are never touched, and no input (including
// unbalanced braces) can make Render fail.
func Render(template string, row types.Row) string {
	if row == nil {
		return template
	}
	result := template
	for _, name := range Placeholders {
		result = strings.ReplaceAll(result, "{{"+name+"}}", row.Get(name))
	}
	return result
}

// RenderTemplate renders both halves of an active template against one row.
func RenderTemplate(t types.ActiveTemplate, row types.Row) (subject, body string) {
	return Render(t.Subject, row), Render(t.Body, row)
}
