// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

import (
	"strings"
)

// Template is parsed template text. A Template never changes after Parse and
// is safe for concurrent use.
type Template struct {
	// Key identifies the template in its source.
	Key string
	// Text is the text the template was parsed from.
	Text string

	parts        []part
	placeholders []string
}

// Parse parses text into a template. Placeholders inside string literals,
// quoted identifiers, comments and "::" casts are not recognised.
//
// Only standard quoting is understood. Names inside PostgreSQL dollar-quoted
// strings such as $$ :x $$ are taken as placeholders, and in escape strings
// such as E'it\'s' the backslash-escaped quote ends the string.
func Parse(key, text string) (*Template, error) {
	parts, err := NewParser().Parse(text)
	if err != nil {
		return nil, err
	}
	t := &Template{Key: key, Text: text, parts: parts}
	for _, p := range parts {
		if ph, ok := p.(*placeholderPart); ok {
			t.placeholders = append(t.placeholders, ph.name)
		}
	}
	return t, nil
}

// Placeholders returns the placeholder names in order of appearance. A name
// is repeated for every occurrence.
func (t *Template) Placeholders() []string {
	names := make([]string, len(t.placeholders))
	copy(names, t.placeholders)
	return names
}

// Has reports whether the template contains the placeholder name.
func (t *Template) Has(name string) bool {
	for _, n := range t.placeholders {
		if n == name {
			return true
		}
	}
	return false
}

// Substitute returns a new template in which every occurrence of the
// placeholders named in values is replaced by the corresponding raw text.
// The replacement text is parsed, so it may contain placeholders of its own.
func (t *Template) Substitute(values map[string]string) (*Template, error) {
	var sb strings.Builder
	changed := false
	for _, p := range t.parts {
		switch p := p.(type) {
		case *bypassPart:
			sb.WriteString(p.chunk)
		case *placeholderPart:
			if v, ok := values[p.name]; ok {
				sb.WriteString(v)
				changed = true
				continue
			}
			sb.WriteString(":" + p.name)
		}
	}
	if !changed {
		return t, nil
	}
	return Parse(t.Key, sb.String())
}

// Query is template text rendered for execution: every placeholder is
// replaced by a positional marker, and Placeholders holds the name to bind
// at each position.
type Query struct {
	SQL          string
	Placeholders []string
}

// Render replaces the n-th placeholder, counting from 1, with marker(n).
func (t *Template) Render(marker func(n int) string) Query {
	var sb strings.Builder
	n := 0
	for _, p := range t.parts {
		switch p := p.(type) {
		case *bypassPart:
			sb.WriteString(p.chunk)
		case *placeholderPart:
			n++
			sb.WriteString(marker(n))
		}
	}
	return Query{SQL: sb.String(), Placeholders: t.Placeholders()}
}

// RenderLists is like Render except that the i-th placeholder, counting from
// 0, stands for sizes[i] values. Its markers are separated by ", ", and a
// size of 0 writes NULL so that "x IN (:ids)" matches nothing.
func (t *Template) RenderLists(sizes []int, marker func(n int) string) string {
	var sb strings.Builder
	i, n := 0, 0
	for _, p := range t.parts {
		switch p := p.(type) {
		case *bypassPart:
			sb.WriteString(p.chunk)
		case *placeholderPart:
			size := 1
			if i < len(sizes) {
				size = sizes[i]
			}
			i++
			if size == 0 {
				sb.WriteString("NULL")
				continue
			}
			for j := 0; j < size; j++ {
				if j > 0 {
					sb.WriteString(", ")
				}
				n++
				sb.WriteString(marker(n))
			}
		}
	}
	return sb.String()
}

// String returns the parsed form of the template for debugging and testing
// purposes.
func (t *Template) String() string {
	var sb strings.Builder
	sb.WriteString("Template[")
	for i, p := range t.parts {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString("]")
	return sb.String()
}
