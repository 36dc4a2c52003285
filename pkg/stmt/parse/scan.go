// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package parse

import (
	"github.com/pingcap/stmtkit/pkg/util/lex"
)

// scanned is what one pass over the statement collects.
type scanned struct {
	sql          string
	tokens       []lex.Token
	words        []int
	placeholders []int
	firstChar    byte
	err          error
}

func scanStatement(sql string, opts lex.Options) *scanned {
	s := &scanned{sql: sql, tokens: make([]lex.Token, 0, 16)}
	l := lex.NewLexer(sql, opts)
	for {
		tok, ok := l.Next()
		if !ok {
			break
		}
		switch tok.Kind {
		case lex.Word:
			s.words = append(s.words, len(s.tokens))
			if c := tok.Text[0]; s.firstChar == 0 && c >= 'A' && c <= 'Z' {
				s.firstChar = c
			}
		case lex.Symbol:
			if tok.Text == "?" {
				s.placeholders = append(s.placeholders, tok.Start)
			}
		}
		s.tokens = append(s.tokens, tok)
	}
	s.err = l.Err()
	return s
}

func (s *scanned) word(i int) lex.Token {
	return s.tokens[s.words[i]]
}

func (s *scanned) startsWith(keywords ...string) bool {
	if len(s.words) < len(keywords) {
		return false
	}
	for i, kw := range keywords {
		if s.word(i).Text != kw {
			return false
		}
	}
	return true
}

// hasWord reports whether the keyword appears at or after offset from.
func (s *scanned) hasWord(keyword string, from int) bool {
	for i := range s.words {
		if w := s.word(i); w.Start >= from && w.Text == keyword {
			return true
		}
	}
	return false
}

var odkuKeywords = []string{"ON", "DUPLICATE", "KEY", "UPDATE"}

func (s *scanned) odkuOffset() int {
	for i := 0; i+len(odkuKeywords) <= len(s.words); i++ {
		match := true
		for j, kw := range odkuKeywords {
			if s.word(i+j).Text != kw {
				match = false
				break
			}
		}
		if match {
			return s.word(i).Start
		}
	}
	return -1
}

// valuesTuple locates the tuple after a top-level VALUES keyword: from the
// first '(' after it to the last ')' before limit. A negative limit means the
// end of the statement.
func (s *scanned) valuesTuple(limit int) (start, end int, ok bool) {
	if limit < 0 {
		limit = len(s.sql)
	}
	kw := -1
	for i, tok := range s.tokens {
		if tok.Start >= limit {
			break
		}
		if tok.Kind == lex.Word && tok.Depth == 0 && (tok.Text == "VALUES" || tok.Text == "VALUE") &&
			s.valuesBoundary(tok) {
			kw = i
			break
		}
	}
	if kw < 0 {
		return 0, 0, false
	}
	start, end = -1, -1
	for _, tok := range s.tokens[kw+1:] {
		if tok.Start >= limit {
			break
		}
		if tok.Kind != lex.Symbol {
			continue
		}
		switch tok.Text {
		case "(":
			if start < 0 {
				start = tok.Start
			}
		case ")":
			if start >= 0 {
				end = tok.Start
			}
		}
	}
	if start < 0 || end < 0 {
		return 0, 0, false
	}
	return start, end, true
}

// valuesBoundary rejects VALUES glued to other text, e.g. a column t.values.
func (s *scanned) valuesBoundary(tok lex.Token) bool {
	if tok.Start > 0 {
		switch c := s.sql[tok.Start-1]; {
		case isSpace(c), c == ')', c == '`':
		default:
			return false
		}
	}
	if tok.End < len(s.sql) {
		if c := s.sql[tok.End]; !isSpace(c) && c != '(' {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
