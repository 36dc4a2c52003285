// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package parse

import (
	"github.com/pingcap/stmtkit/lib/util/errors"
)

var rowSeparator = []byte(",")

// Repeat returns the multi-row insert for n rows: the head once, the VALUES
// tuple n times joined by ',', then the tail (including any ON DUPLICATE KEY
// UPDATE clause) once. The result has n*RowParams() placeholders.
func (t *Template) Repeat(n int) (*Template, error) {
	if !t.CanRepeat() {
		return nil, errors.Wrapf(ErrNotRepeatable, "%s", t.SQL)
	}
	if n < 1 {
		return nil, errors.Wrapf(ErrNotRepeatable, "row count %d", n)
	}
	b := NewBuilder(len(t.head) + n*(len(t.values)-1) + len(t.tail))
	b.AppendAll(t.head)
	b.MergeAll(t.values)
	for i := 1; i < n; i++ {
		b.Merge(rowSeparator)
		b.MergeAll(t.values)
	}
	b.MergeAll(t.tail)
	return t.derive(b.Fragments()), nil
}

// Join returns n copies of the statement separated by sep, for servers that
// accept multiple statements in one query.
func (t *Template) Join(n int, sep string) *Template {
	if n < 1 {
		n = 1
	}
	b := NewBuilder(n*t.NumParams() + 1)
	b.AppendAll(t.Fragments)
	for i := 1; i < n; i++ {
		b.Merge([]byte(sep))
		b.MergeAll(t.Fragments)
	}
	return t.derive(b.Fragments())
}

// RepeatSize returns the static size of Repeat(n) without building it.
func (t *Template) RepeatSize(n int) int {
	if !t.CanRepeat() || n < 1 {
		return 0
	}
	return fragmentsSize(t.head) + fragmentsSize(t.tail) + n*fragmentsSize(t.values) + (n-1)*len(rowSeparator)
}

func (t *Template) derive(frags [][]byte) *Template {
	return &Template{
		Fragments:  frags,
		FirstChar:  t.FirstChar,
		ODKUOffset: -1,
	}
}
