// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package batch plans and executes a batch of parameter sets for one
// statement, rewriting it into multi-row inserts or multi-statement queries
// when the statement shape allows.
package batch

import (
	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/stmt/bind"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
)

// Strategy is how the entries of a batch are sent.
type Strategy uint8

const (
	// Serial sends one statement per entry.
	Serial Strategy = iota
	// MultiValueInsert sends one INSERT with a VALUES tuple per entry.
	MultiValueInsert
	// MultiStatement sends the statements joined by ';' in one query.
	MultiStatement
)

func (s Strategy) String() string {
	switch s {
	case Serial:
		return "serial"
	case MultiValueInsert:
		return "multi_value_insert"
	case MultiStatement:
		return "multi_statement"
	}
	return "unknown"
}

// minMultiStatementRows is the batch size above which multi-statement
// rewriting is used.
const minMultiStatementRows = 3

const statementSeparator = ";"

// Entry is one element of a batch: a parameter snapshot of the prepared
// statement, or a free-text statement.
type Entry struct {
	Params bind.Snapshot
	Text   string
}

func ParamsEntry(snap bind.Snapshot) Entry {
	return Entry{Params: snap}
}

func TextEntry(sql string) Entry {
	return Entry{Text: sql}
}

func (e Entry) IsText() bool {
	return e.Text != ""
}

// Options are the session properties a plan depends on.
type Options struct {
	// MaxPacket is the server max_allowed_packet.
	MaxPacket int
	// Rewrite enables multi-value insert and multi-statement rewriting.
	Rewrite bool
	// ContinueOnError keeps executing chunks after one fails.
	ContinueOnError bool
	// MultiStatements allows the multi-statement strategy. The executor turns
	// the capability on for the batch when the transport has it off.
	MultiStatements bool
	Bind            bind.Options
}

// Chunk is the entry range [Start, End) sent in one round trip.
type Chunk struct {
	Start int
	End   int
}

func (c Chunk) Rows() int {
	return c.End - c.Start
}

// Plan is the strategy and chunking of a batch.
type Plan struct {
	Strategy Strategy
	Chunks   []Chunk
	// ChunkSize is the number of rows in every chunk except the last.
	ChunkSize int

	tpl  *parse.Template
	opts Options
	// rewritten templates by row count
	derived map[int]*parse.Template
}

// NewPlan chooses the strategy for entries, preferring multi-value insert,
// then multi-statement, then serial execution.
func NewPlan(tpl *parse.Template, entries []Entry, opts Options) (*Plan, error) {
	p := &Plan{
		tpl:     tpl,
		opts:    opts,
		derived: make(map[int]*parse.Template, 2),
	}
	hasText := false
	for i, e := range entries {
		switch {
		case e.IsText():
			hasText = true
		case e.Params.Len() != tpl.NumParams():
			return nil, errors.Wrapf(bind.ErrParameterCountMismatch, "batch entry %d has %d values for %d placeholders", i, e.Params.Len(), tpl.NumParams())
		}
	}

	n := len(entries)
	switch {
	case !opts.Rewrite || hasText || tpl.BulkLoad || n == 0:
		p.Strategy = Serial
	case tpl.CanRepeat() && n > 1:
		p.Strategy = MultiValueInsert
	case n > minMultiStatementRows && opts.MultiStatements:
		p.Strategy = MultiStatement
	default:
		p.Strategy = Serial
	}

	switch p.Strategy {
	case MultiValueInsert:
		perRow := tpl.RepeatSize(2) - tpl.RepeatSize(1)
		overhead := tpl.RepeatSize(1) - perRow
		p.ChunkSize = ChunkSize(opts.MaxPacket, overhead+p.commentSize(), perRow, entries)
	case MultiStatement:
		p.ChunkSize = ChunkSize(opts.MaxPacket, p.commentSize(), tpl.StaticSize()+len(statementSeparator), entries)
	default:
		p.ChunkSize = 1
	}
	for start := 0; start < n; start += p.ChunkSize {
		p.Chunks = append(p.Chunks, Chunk{Start: start, End: min(start+p.ChunkSize, n)})
	}
	return p, nil
}

func (p *Plan) commentSize() int {
	if p.opts.Bind.Comment == "" {
		return 0
	}
	return len("/*  */ ") + len(p.opts.Bind.Comment)
}

// ChunkSize returns the number of rows per round trip: the largest k with
// overhead + k*(perRow + largest parameter set) <= maxPacket, at least 1 and
// at most len(entries).
func ChunkSize(maxPacket, overhead, perRow int, entries []Entry) int {
	if len(entries) == 0 {
		return 1
	}
	var maxSet int64
	for _, e := range entries {
		maxSet = max(maxSet, e.Params.EstimatedSize())
	}
	rowSize := int64(perRow) + maxSet
	budget := int64(maxPacket) - int64(overhead)
	if rowSize <= 0 || budget < rowSize {
		return 1
	}
	return int(min(budget/rowSize, int64(len(entries))))
}

// Template returns the statement template of chunk c.
func (p *Plan) Template(c Chunk) (*parse.Template, error) {
	rows := c.Rows()
	switch p.Strategy {
	case MultiValueInsert:
		if rows == 1 {
			return p.tpl, nil
		}
		if tpl, ok := p.derived[rows]; ok {
			return tpl, nil
		}
		tpl, err := p.tpl.Repeat(rows)
		if err != nil {
			return nil, err
		}
		p.derived[rows] = tpl
		return tpl, nil
	case MultiStatement:
		if tpl, ok := p.derived[rows]; ok {
			return tpl, nil
		}
		tpl := p.tpl.Join(rows, statementSeparator)
		p.derived[rows] = tpl
		return tpl, nil
	}
	return p.tpl, nil
}

// Statement binds the entries of chunk c into one query.
func (p *Plan) Statement(c Chunk, entries []Entry) ([]byte, error) {
	if c.Rows() == 1 && entries[c.Start].IsText() {
		text := entries[c.Start].Text
		sql, err := bind.AppendComment(make([]byte, 0, p.commentSize()+len(text)), p.opts.Bind)
		if err != nil {
			return nil, err
		}
		return append(sql, text...), nil
	}
	tpl, err := p.Template(c)
	if err != nil {
		return nil, err
	}
	slots := make([]bind.Slot, 0, tpl.NumParams())
	for _, e := range entries[c.Start:c.End] {
		if e.IsText() {
			return nil, errors.Errorf("text entry %d in a %s chunk", c.Start, p.Strategy)
		}
		slots = append(slots, e.Params.Slots()...)
	}
	return bind.Bind(tpl, slots, p.opts.Bind)
}
