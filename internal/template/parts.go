// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

// A part represents a section of parsed template text. The parsed template is
// represented as a list of parts.
type part interface {
	// String returns a string representation of the part for debugging and
	// testing purposes.
	String() string

	// part is a marker method.
	part()
}

// placeholderPart represents a ":name" token.
type placeholderPart struct {
	name string
}

func (p *placeholderPart) String() string {
	return "Placeholder[" + p.name + "]"
}

// Marker function for part.
func (p *placeholderPart) part() {}

// bypassPart represents a part of the template that is passed to the database
// verbatim.
type bypassPart struct {
	chunk string
}

func (p *bypassPart) String() string {
	return "Bypass[" + p.chunk + "]"
}

// Marker function for part.
func (p *bypassPart) part() {}
