// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package parse splits a SQL statement into static fragments around its '?'
// placeholders and derives the statement shape used by batch rewriting.
package parse

import (
	"strings"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/charset"
	"github.com/pingcap/stmtkit/pkg/util/lex"
	"golang.org/x/text/encoding"
)

var (
	ErrMalformedStatement = errors.New("malformed statement")
	ErrNotRepeatable      = errors.New("statement can not be rewritten as a multi-row insert")
)

// Options are the session properties that change how a statement is scanned.
type Options struct {
	// IdentQuote is '`' by default and '"' under ANSI_QUOTES.
	IdentQuote       byte
	BackslashEscapes bool
	// Encoding is the connection encoding fragments are converted to. nil
	// keeps UTF-8.
	Encoding encoding.Encoding
}

func (o Options) lexOptions() lex.Options {
	return lex.Options{IdentQuote: o.IdentQuote, BackslashEscapes: o.BackslashEscapes}
}

// Template is a tokenized statement. It is immutable and may be shared.
type Template struct {
	// SQL is the original text. Templates derived by Repeat and Join leave it empty.
	SQL string
	// Fragments has one more element than there are placeholders. Fragment i
	// is the text before placeholder i. Callers must not modify it.
	Fragments [][]byte
	// FirstChar is the upper-cased first letter of the statement, e.g. 'S'
	// for SELECT and 'I' for INSERT.
	FirstChar byte
	BulkLoad  bool
	// ODKUOffset is the offset of ON DUPLICATE KEY UPDATE, or -1.
	ODKUOffset   int
	ParamsInODKU bool
	// RewriteEligible marks an INSERT or REPLACE that may become a multi-row
	// insert.
	RewriteEligible bool
	// ValuesClause is the row tuple after VALUES, "" if not found.
	ValuesClause string

	// The statement split around ValuesClause: head ends right before the
	// tuple and tail starts right after it.
	head   [][]byte
	values [][]byte
	tail   [][]byte
}

// Tokenize scans sql once and builds its template.
func Tokenize(sql string, opts Options) (*Template, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, errors.Wrapf(ErrMalformedStatement, "empty statement")
	}
	s := scanStatement(sql, opts.lexOptions())
	if s.err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, s.err)
	}

	tpl := &Template{
		SQL:        sql,
		FirstChar:  s.firstChar,
		BulkLoad:   s.startsWith("LOAD", "DATA"),
		ODKUOffset: -1,
	}
	if tpl.FirstChar == 'I' {
		tpl.ODKUOffset = s.odkuOffset()
	}
	if tpl.ODKUOffset >= 0 {
		for _, p := range s.placeholders {
			if p > tpl.ODKUOffset {
				tpl.ParamsInODKU = true
				break
			}
		}
	}
	tpl.RewriteEligible = (s.startsWith("INSERT") || s.startsWith("REPLACE")) &&
		!s.hasWord("SELECT", 0) &&
		(tpl.ODKUOffset < 0 || !s.hasWord("LAST_INSERT_ID", tpl.ODKUOffset)) &&
		!tpl.ParamsInODKU

	enc := opts.Encoding
	if tpl.BulkLoad {
		enc = nil
	}
	var err error
	if tpl.Fragments, err = splitFragments(sql, 0, len(sql), s.placeholders, enc); err != nil {
		return nil, err
	}
	if !tpl.RewriteEligible {
		return tpl, nil
	}
	start, end, ok := s.valuesTuple(tpl.ODKUOffset)
	if !ok {
		return tpl, nil
	}
	tpl.ValuesClause = sql[start : end+1]
	if tpl.head, err = splitFragments(sql, 0, start, s.placeholders, enc); err != nil {
		return nil, err
	}
	if tpl.values, err = splitFragments(sql, start, end+1, s.placeholders, enc); err != nil {
		return nil, err
	}
	if tpl.tail, err = splitFragments(sql, end+1, len(sql), s.placeholders, enc); err != nil {
		return nil, err
	}
	return tpl, nil
}

// NumParams returns the number of placeholders.
func (t *Template) NumParams() int {
	return len(t.Fragments) - 1
}

func (t *Template) HasODKU() bool {
	return t.ODKUOffset >= 0
}

// CanRepeat reports whether Repeat works: the statement is rewrite eligible,
// has a VALUES tuple, and every placeholder is inside that tuple.
func (t *Template) CanRepeat() bool {
	return t.RewriteEligible && t.ValuesClause != "" && len(t.head) == 1 && len(t.tail) == 1
}

// RowParams returns the number of placeholders in the VALUES tuple.
func (t *Template) RowParams() int {
	return len(t.values) - 1
}

// StaticSize returns the number of bytes of all fragments.
func (t *Template) StaticSize() int {
	return fragmentsSize(t.Fragments)
}

func fragmentsSize(frags [][]byte) int {
	n := 0
	for _, f := range frags {
		n += len(f)
	}
	return n
}

// splitFragments cuts sql[from:to] at the placeholders inside the range.
func splitFragments(sql string, from, to int, placeholders []int, enc encoding.Encoding) ([][]byte, error) {
	frags := make([][]byte, 0, 4)
	prev := from
	for _, p := range placeholders {
		if p < from || p >= to {
			continue
		}
		frags = append(frags, []byte(sql[prev:p]))
		prev = p + 1
	}
	frags = append(frags, []byte(sql[prev:to]))
	if enc == nil {
		return frags, nil
	}
	for i, f := range frags {
		b, err := charset.Encode(enc, f)
		if err != nil {
			return nil, err
		}
		frags[i] = b
	}
	return frags, nil
}
