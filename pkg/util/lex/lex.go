// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package lex

import (
	"github.com/pingcap/stmtkit/lib/util/errors"
)

var (
	ErrUnterminatedString     = errors.New("unterminated quoted string")
	ErrUnterminatedIdentifier = errors.New("unterminated quoted identifier")
	ErrUnterminatedComment    = errors.New("unterminated block comment")
)

const DefaultIdentQuote = '`'

// Options decide how quotes are recognized.
type Options struct {
	// IdentQuote delimits quoted identifiers. 0 means '`'. With ANSI_QUOTES it is '"',
	// and '"' then no longer opens a string.
	IdentQuote byte
	// BackslashEscapes makes '\' escape the next byte inside strings.
	BackslashEscapes bool
}

func (o Options) identQuote() byte {
	if o.IdentQuote == 0 {
		return DefaultIdentQuote
	}
	return o.IdentQuote
}

// Scanner walks a statement and stops only at bytes outside quoted strings,
// quoted identifiers and comments.
type Scanner struct {
	sql  string
	opts Options
	pos  int
}

func NewScanner(sql string, opts Options) *Scanner {
	return &Scanner{sql: sql, opts: opts}
}

// Next returns the offset of the next significant byte, or -1 at the end.
// Leaving a string, identifier or block comment open is an error.
func (s *Scanner) Next() (int, error) {
	sql, quote := s.sql, s.opts.identQuote()
	for s.pos < len(sql) {
		i := s.pos
		c := sql[i]
		switch {
		case c == quote:
			end, ok := skipQuoted(sql, i, c, false)
			if !ok {
				s.pos = len(sql)
				return -1, errors.Wrapf(ErrUnterminatedIdentifier, "at offset %d", i)
			}
			s.pos = end
		case c == '\'' || c == '"':
			end, ok := skipQuoted(sql, i, c, s.opts.BackslashEscapes)
			if !ok {
				s.pos = len(sql)
				return -1, errors.Wrapf(ErrUnterminatedString, "at offset %d", i)
			}
			s.pos = end
		case c == '#':
			s.pos = skipLine(sql, i)
		case c == '-' && isLineCommentStart(sql, i):
			s.pos = skipLine(sql, i)
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := indexFrom(sql, i+2, "*/")
			if end < 0 {
				s.pos = len(sql)
				return -1, errors.Wrapf(ErrUnterminatedComment, "at offset %d", i)
			}
			s.pos = end + 2
		default:
			s.pos = i + 1
			return i, nil
		}
	}
	return -1, nil
}

// skipQuoted returns the offset right after the closing quote. A doubled quote
// stands for itself.
func skipQuoted(sql string, start int, quote byte, backslash bool) (int, bool) {
	for i := start + 1; i < len(sql); i++ {
		switch sql[i] {
		case '\\':
			if backslash {
				i++
			}
		case quote:
			if i+1 < len(sql) && sql[i+1] == quote {
				i++
				continue
			}
			return i + 1, true
		}
	}
	return len(sql), false
}

// "--" starts a comment only when followed by a whitespace or control byte.
func isLineCommentStart(sql string, i int) bool {
	if i+1 >= len(sql) || sql[i+1] != '-' {
		return false
	}
	return i+2 >= len(sql) || sql[i+2] <= ' '
}

func skipLine(sql string, i int) int {
	for ; i < len(sql); i++ {
		if sql[i] == '\n' {
			return i + 1
		}
	}
	return len(sql)
}

func indexFrom(sql string, from int, sub string) int {
	for i := from; i+len(sub) <= len(sql); i++ {
		if sql[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

type Kind uint8

const (
	// Word is a keyword, identifier or number.
	Word Kind = iota
	// Symbol is any other single byte outside quotes and comments.
	Symbol
)

// Token is a significant part of a statement.
type Token struct {
	Kind Kind
	// Text is upper-cased for words.
	Text string
	// Start and End are byte offsets in the statement.
	Start int
	End   int
	// Depth is the number of enclosing parentheses. A parenthesis itself has
	// the depth of its outside.
	Depth int
}

func (t Token) Is(kind Kind, text string) bool {
	return t.Kind == kind && t.Text == text
}

// Lexer splits a statement into tokens, skipping everything the Scanner skips.
type Lexer struct {
	sc       *Scanner
	curToken []byte
	depth    int
	err      error
}

func NewLexer(sql string, opts Options) *Lexer {
	return &Lexer{
		sc:       NewScanner(sql, opts),
		curToken: make([]byte, 0, 32),
	}
}

// Next returns the next word or symbol. Whitespace is skipped. ok is false at the end of the
// statement or on a scan error, which Err reports.
func (l *Lexer) Next() (tok Token, ok bool) {
	l.curToken = l.curToken[:0]
	sql := l.sc.sql
	start, last := -1, -1
	for {
		i, err := l.sc.Next()
		if err != nil {
			l.err = err
			return Token{}, false
		}
		if i < 0 {
			break
		}
		c := sql[i]
		if start >= 0 && (i != last+1 || !isWordByte(c)) {
			// Whitespace, a skipped quote or a comment ends the word, too.
			l.sc.pos = i
			break
		}
		if isSpaceByte(c) {
			continue
		}
		if isWordByte(c) {
			if start < 0 {
				start = i
			}
			l.curToken = append(l.curToken, upper(c))
			last = i
			continue
		}
		tok = Token{Kind: Symbol, Text: sql[i : i+1], Start: i, End: i + 1}
		switch c {
		case '(':
			tok.Depth = l.depth
			l.depth++
		case ')':
			if l.depth > 0 {
				l.depth--
			}
			tok.Depth = l.depth
		default:
			tok.Depth = l.depth
		}
		return tok, true
	}
	if start < 0 {
		return Token{}, false
	}
	return Token{Kind: Word, Text: string(l.curToken), Start: start, End: last + 1, Depth: l.depth}, true
}

// NextToken returns the next word, skipping symbols.
func (l *Lexer) NextToken() (tok Token, ok bool) {
	for {
		tok, ok = l.Next()
		if !ok || tok.Kind == Word {
			return tok, ok
		}
	}
}

// Err returns the scan error that stopped the lexer, if any.
func (l *Lexer) Err() error {
	return l.err
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '$' || c >= 0x80
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// Words returns all words of the statement.
func Words(sql string, opts Options) ([]Token, error) {
	l := NewLexer(sql, opts)
	tokens := make([]Token, 0, 8)
	for {
		tok, ok := l.NextToken()
		if !ok {
			break
		}
		tokens = append(tokens, tok)
	}
	return tokens, l.Err()
}
