// Package sqlutil contains dialect-agnostic helpers for handling raw SQL
// scripts: removing comments and splitting a script into statements.
//
// Both helpers understand single-quoted, double-quoted and backtick-quoted
// text as well as PostgreSQL dollar-quoted bodies, so delimiters that appear
// inside literals or function bodies are never treated as syntax.
package sqlutil

import (
	"strings"
)

// StripComments removes "--" line comments and "/* */" block comments that
// appear outside of quoted text. Line breaks terminating line comments are kept.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	s := scanner{src: sql}
	for s.pos < len(sql) {
		switch {
		case s.startsWith("--"):
			for s.pos < len(sql) && sql[s.pos] != '\n' {
				s.pos++
			}
		case s.startsWith("/*"):
			end := strings.Index(sql[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(sql)
			} else {
				s.pos += end + 4
			}
			b.WriteByte(' ')
		default:
			start := s.pos
			s.skipToken()
			b.WriteString(sql[start:s.pos])
		}
	}
	return b.String()
}

// SplitSQLStatements splits a script on top-level semicolons. The returned
// statements are trimmed and never empty; the terminating semicolons are dropped.
func SplitSQLStatements(sql string) []string {
	statements := make([]string, 0)

	s := scanner{src: sql}
	start := 0
	for s.pos < len(sql) {
		if sql[s.pos] == ';' {
			statements = appendStatement(statements, sql[start:s.pos])
			s.pos++
			start = s.pos
			continue
		}
		s.skipToken()
	}
	return appendStatement(statements, sql[start:])
}

func appendStatement(statements []string, stmt string) []string {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return statements
	}
	return append(statements, stmt)
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) startsWith(prefix string) bool {
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

// skipToken advances over one unit: a quoted literal, a dollar-quoted body,
// or a single byte.
func (s *scanner) skipToken() {
	switch ch := s.src[s.pos]; ch {
	case '\'', '"', '`':
		s.skipQuoted(ch)
	case '$':
		if tag, ok := s.dollarTag(); ok {
			end := strings.Index(s.src[s.pos+len(tag):], tag)
			if end < 0 {
				s.pos = len(s.src)
				return
			}
			s.pos += len(tag) + end + len(tag)
			return
		}
		s.pos++
	default:
		s.pos++
	}
}

// skipQuoted advances past a literal opened by quote. A doubled quote is an
// escaped quote; a backslash escapes the next byte inside single quotes.
func (s *scanner) skipQuoted(quote byte) {
	s.pos++
	for s.pos < len(s.src) {
		ch := s.src[s.pos]
		switch {
		case ch == '\\' && quote == '\'':
			s.pos += 2
		case ch == quote:
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == quote {
				s.pos += 2
				continue
			}
			s.pos++
			return
		default:
			s.pos++
		}
	}
	if s.pos > len(s.src) {
		s.pos = len(s.src)
	}
}

// dollarTag recognizes $$ or $identifier$ at the current position.
func (s *scanner) dollarTag() (string, bool) {
	rest := s.src[s.pos+1:]
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if ch == '$' {
			return s.src[s.pos : s.pos+i+2], true
		}
		isIdent := ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (i > 0 && ch >= '0' && ch <= '9')
		if !isIdent {
			return "", false
		}
	}
	return "", false
}
