// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// scanner walks SQL text one char at a time, keeping track of string
// literals so that their contents are never taken for placeholders or names.
type scanner struct {
	input string
	pos   int
	// char is the rune starting at pos.
	char rune
	// width is the width in bytes of char.
	width int
}

func newScanner(input string) *scanner {
	s := &scanner{input: input}
	s.setChar()
	return s
}

func (s *scanner) done() bool {
	return s.pos >= len(s.input)
}

// setChar decodes the char at the current position.
func (s *scanner) setChar() {
	if s.pos >= len(s.input) {
		s.char, s.width = 0, 0
		return
	}
	s.char, s.width = utf8.DecodeRuneInString(s.input[s.pos:])
}

// advanceChar moves the scanner to the next char.
func (s *scanner) advanceChar() {
	s.pos += s.width
	s.setChar()
}

// peekChar returns true if the current char equals the one passed as parameter.
func (s *scanner) peekChar(c rune) bool {
	return s.pos < len(s.input) && s.char == c
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. It returns true in that case, false otherwise.
func (s *scanner) skipChar(c rune) bool {
	if s.peekChar(c) {
		s.advanceChar()
		return true
	}
	return false
}

// skipCharFind advances the scanner past the next occurrence of c. It returns
// false if c is not found before the end of the input.
func (s *scanner) skipCharFind(c rune) bool {
	for !s.done() {
		if s.skipChar(c) {
			return true
		}
		s.advanceChar()
	}
	return false
}

// skipStringLiteral jumps over a single or double quoted literal starting at
// the current position and returns true. A doubled quote inside the literal
// is an escaped quote. An unterminated literal extends to the end of the
// input.
func (s *scanner) skipStringLiteral() bool {
	c := s.char
	if !s.skipChar('"') && !s.skipChar('\'') {
		return false
	}
	// We keep track of whether the next quote has been previously escaped.
	// If not, it might be a closing quote.
	maybeCloser := true
	for s.skipCharFind(c) {
		// If this looks like a closing quote, check if it might be an escape
		// for a following quote. If not, we're done.
		if maybeCloser && !s.peekChar(c) {
			return true
		}
		maybeCloser = !maybeCloser
	}
	return true
}

// countPlaceholders returns the number of "?" in sql that are not inside a
// string literal.
func countPlaceholders(sql string) int {
	n := 0
	s := newScanner(sql)
	for !s.done() {
		if s.skipStringLiteral() {
			continue
		}
		if s.char == '?' {
			n++
		}
		s.advanceChar()
	}
	return n
}

// isNameChar returns true if the given char can be part of a name. It returns
// false otherwise.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// replaceName replaces every occurrence of name in template that is not part
// of a longer name and not inside a string literal. It returns the new text
// and the number of replacements.
func replaceName(template, name, with string) (string, int) {
	if name == "" {
		return template, 0
	}
	var b strings.Builder
	n := 0
	s := newScanner(template)
	last := 0
	for !s.done() {
		start := s.pos
		if s.skipStringLiteral() {
			continue
		}
		if strings.HasPrefix(template[start:], name) && boundaryBefore(template, start) && boundaryAfter(template, start+len(name)) {
			b.WriteString(template[last:start])
			b.WriteString(with)
			n++
			last = start + len(name)
			s.pos = last
			s.setChar()
			continue
		}
		s.advanceChar()
	}
	b.WriteString(template[last:])
	return b.String(), n
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isNameChar(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isNameChar(r)
}
