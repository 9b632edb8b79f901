// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parser splits template text into verbatim chunks and named placeholders.
// A Parser is not safe for concurrent use, but it can be reused.
type Parser struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// prevPartEnd is the value of pos when we last finished parsing a
	// placeholder.
	prevPartEnd int
	// currentPartStart is the value of pos just before we started parsing
	// the placeholder under pos. We maintain currentPartStart >= prevPartEnd.
	currentPartStart int
	// parts are the output of the parser.
	parts []part
	// lineNum is the number of the current line of the input.
	lineNum int
	// lineStart is the position of the first char of the current line in the
	// input.
	lineStart int
}

// NewParser returns a Parser ready to parse template text.
func NewParser() *Parser {
	return &Parser{}
}

// Parse takes template text and returns its parts in order of appearance.
func (p *Parser) Parse(input string) (parts []part, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse template: %w", err)
		}
	}()

	p.init(input)

	for {
		if err := p.advanceToNextPlaceholder(); err != nil {
			return nil, err
		}

		p.currentPartStart = p.pos

		if p.pos >= len(p.input) {
			break
		}

		if ph, ok := p.parsePlaceholder(); ok {
			p.add(ph)
			continue
		}

		// Not a placeholder, step over the colon so it is not found again.
		p.advanceChar()
	}

	// Add any remaining text.
	p.add(nil)
	return p.parts, nil
}

// init resets the state of the parser and sets the input string.
func (p *Parser) init(input string) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.prevPartEnd = 0
	p.currentPartStart = 0
	p.parts = []part{}
	p.lineNum = 1
	p.lineStart = 0
	p.advanceChar()
}

// colNum calculates the current column number taking into account line breaks.
func (p *Parser) colNum() int {
	return p.pos - p.lineStart + 1
}

// advanceChar moves the parser to the next character in the input. It also
// takes care of updating the line and column numbers if it encounters line
// breaks.
func (p *Parser) advanceChar() bool {
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	if p.char == '\n' {
		p.lineStart = p.nextPos
		p.lineNum++
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// errorAt wraps an error with line and column information.
func errorAt(err error, line int, column int, input string) error {
	if strings.ContainsRune(input, '\n') {
		return fmt.Errorf("line %d, column %d: %w", line, column, err)
	}
	return fmt.Errorf("column %d: %w", column, err)
}

// A checkpoint struct for saving parser state to restore later.
type checkpoint struct {
	parser    *Parser
	pos       int
	nextPos   int
	char      rune
	lineNum   int
	lineStart int
}

// save takes a snapshot of the position of the parser.
func (p *Parser) save() *checkpoint {
	return &checkpoint{
		parser:    p,
		pos:       p.pos,
		nextPos:   p.nextPos,
		char:      p.char,
		lineNum:   p.lineNum,
		lineStart: p.lineStart,
	}
}

// restore sets the position of the parser to the values stored in the
// checkpoint.
func (cp *checkpoint) restore() {
	cp.parser.pos = cp.pos
	cp.parser.nextPos = cp.nextPos
	cp.parser.char = cp.char
	cp.parser.lineNum = cp.lineNum
	cp.parser.lineStart = cp.lineStart
}

// add pushes the placeholder to the list of parts along with the bypass chunk
// that stretches from the end of the previous placeholder to the beginning of
// this one.
func (p *Parser) add(ph *placeholderPart) {
	if p.prevPartEnd != p.currentPartStart {
		p.parts = append(p.parts, &bypassPart{p.input[p.prevPartEnd:p.currentPartStart]})
	}

	if ph != nil {
		p.parts = append(p.parts, ph)
	}

	p.prevPartEnd = p.pos
	p.currentPartStart = p.pos
}

// advanceToNextPlaceholder advances the parser to the next colon that is
// not inside a string literal, quoted identifier or comment.
func (p *Parser) advanceToNextPlaceholder() error {
	for p.pos < len(p.input) {
		if ok, err := p.skipStringLiteral(); err != nil {
			return err
		} else if ok {
			continue
		}
		if ok, err := p.skipComment(); err != nil {
			return err
		} else if ok {
			continue
		}
		// A double colon is a type cast.
		if p.skipString("::") {
			continue
		}
		if p.char == ':' {
			return nil
		}
		p.advanceChar()
	}
	return nil
}

// parsePlaceholder parses a ":name" token. The colon must not directly
// follow a name char, so "a:b" is left alone.
func (p *Parser) parsePlaceholder() (*placeholderPart, bool) {
	if p.char != ':' || p.prevIsNameChar() {
		return nil, false
	}
	cp := p.save()
	p.advanceChar()
	mark := p.pos
	if !p.skipName() {
		cp.restore()
		return nil, false
	}
	return &placeholderPart{name: p.input[mark:p.pos]}, true
}

// prevIsNameChar reports whether the char before pos is a name char.
func (p *Parser) prevIsNameChar() bool {
	if p.pos == 0 {
		return false
	}
	c, _ := utf8.DecodeLastRuneInString(p.input[:p.pos])
	return isNameChar(c)
}

// skipComment jumps over "--" line comments and "/* */" block comments. If no
// comment is found the parser state is left unchanged.
func (p *Parser) skipComment() (bool, error) {
	if p.skipString("--") {
		// Don't consume the newline.
		for p.pos < len(p.input) && p.char != '\n' {
			p.advanceChar()
		}
		return true, nil
	}
	cp := p.save()
	if p.skipString("/*") {
		for p.pos < len(p.input) {
			if p.skipString("*/") {
				return true, nil
			}
			p.advanceChar()
		}
		cp.restore()
		return false, errorAt(fmt.Errorf("missing end of block comment"), p.lineNum, p.colNum(), p.input)
	}
	return false, nil
}

// skipStringLiteral jumps over single quoted strings and double or back
// quoted identifiers. Doubled up quotes are escaped.
func (p *Parser) skipStringLiteral() (bool, error) {
	cp := p.save()

	c := p.char
	if p.skipChar('"') || p.skipChar('\'') || p.skipChar('`') {

		// We keep track of whether the next quote has been previously
		// escaped. If not, it might be a closing quote.
		maybeCloser := true
		for p.skipCharFind(c) {
			// If this looks like a closing quote, check if it might be an
			// escape for a following quote. If not, we're done.
			if maybeCloser && !p.peekChar(c) {
				return true, nil
			}
			maybeCloser = !maybeCloser
		}

		// Reached end of string and didn't find the closing quote
		cp.restore()
		return false, errorAt(fmt.Errorf("missing closing quote in string literal"), p.lineNum, p.colNum(), p.input)
	}
	return false, nil
}

// peekChar returns true if the current char equals the one passed as parameter.
func (p *Parser) peekChar(c rune) bool {
	return p.pos < len(p.input) && p.char == c
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. Returns true in that case, false otherwise.
func (p *Parser) skipChar(c rune) bool {
	if p.pos < len(p.input) && p.char == c {
		p.advanceChar()
		return true
	}
	return false
}

// skipCharFind looks for a char that matches the one passed as parameter and
// then advances the parser to jump over it. In that case returns true. If the
// end of the string is reached and no matching char was found, it returns
// false and it does not change the parser.
func (p *Parser) skipCharFind(c rune) bool {
	cp := p.save()
	for p.pos < len(p.input) {
		if p.char == c {
			p.advanceChar()
			return true
		}
		p.advanceChar()
	}
	cp.restore()
	return false
}

// skipString jumps over s if the input continues with it.
func (p *Parser) skipString(s string) bool {
	if !strings.HasPrefix(p.input[p.pos:], s) {
		return false
	}
	for range s {
		p.advanceChar()
	}
	return true
}

// isNameChar returns true if the given char can be part of a name. It returns
// false otherwise.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// isInitialNameChar returns true if the given char can appear at the start of a
// name. It returns false otherwise.
func isInitialNameChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

// skipName advances the parser until it is on the first non name char and
// returns true. If the p.pos does not start on a name char it returns false.
func (p *Parser) skipName() bool {
	if p.pos >= len(p.input) {
		return false
	}
	mark := p.pos
	if isInitialNameChar(p.char) {
		p.advanceChar()
		for p.pos < len(p.input) && isNameChar(p.char) {
			p.advanceChar()
		}
	}
	return p.pos > mark
}
