// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"io"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/stmt/encode"
	"github.com/pingcap/tidb/pkg/parser/mysql"
)

// Params are the live parameter slots of a prepared statement. Indexes are
// 0-based. Params is not safe for concurrent use.
type Params struct {
	enc   *encode.Encoder
	slots []Slot
}

func NewParams(n int, enc *encode.Encoder) *Params {
	return &Params{
		enc:   enc,
		slots: make([]Slot, n),
	}
}

func (p *Params) Len() int {
	return len(p.slots)
}

func (p *Params) check(i int) error {
	if i < 0 || i >= len(p.slots) {
		return errors.Wrapf(ErrInvalidIndex, "index %d out of [0, %d)", i, len(p.slots))
	}
	return nil
}

// Set encodes v as type tp into slot i. A nil value, a valuer returning nil
// or the NULL type marks the slot null.
func (p *Params) Set(i int, v any, tp byte) error {
	if err := p.check(i); err != nil {
		return err
	}
	if tp == mysql.TypeNull || encode.IsNull(v) {
		p.slots[i] = Slot{State: Null, Type: tp}
		return nil
	}
	b, err := p.enc.Encode(v, tp)
	if err != nil {
		return errors.Wrapf(err, "parameter %d", i)
	}
	p.slots[i] = Slot{State: Value, Type: tp, Value: b}
	return nil
}

func (p *Params) SetNull(i int, tp byte) error {
	if err := p.check(i); err != nil {
		return err
	}
	p.slots[i] = Slot{State: Null, Type: tp}
	return nil
}

// SetStream binds r, read when the statement is bound. length < 0 reads to EOF.
func (p *Params) SetStream(i int, r io.Reader, length int64, binary bool) error {
	if err := p.check(i); err != nil {
		return err
	}
	if r == nil {
		p.slots[i] = Slot{State: Null, Type: streamType(binary)}
		return nil
	}
	p.slots[i] = Slot{State: Stream, Type: streamType(binary), Stream: NewStream(r, length, binary)}
	return nil
}

func streamType(binary bool) byte {
	if binary {
		return mysql.TypeLongBlob
	}
	return mysql.TypeVarString
}

// SetRaw binds text that is written unescaped, e.g. a session variable
// reference such as @out1. raw is in the connection encoding.
func (p *Params) SetRaw(i int, raw []byte, tp byte) error {
	if err := p.check(i); err != nil {
		return err
	}
	p.slots[i] = Slot{State: Value, Type: tp, Value: raw}
	return nil
}

// Slot returns slot i.
func (p *Params) Slot(i int) (Slot, error) {
	if err := p.check(i); err != nil {
		return Slot{}, err
	}
	return p.slots[i], nil
}

// Slots returns the live slots. Callers must not modify them.
func (p *Params) Slots() []Slot {
	return p.slots
}

// Clear unsets every slot.
func (p *Params) Clear() {
	for i := range p.slots {
		p.slots[i] = Slot{}
	}
}

// Snapshot copies the slots. Later changes to p do not affect it.
func (p *Params) Snapshot() Snapshot {
	slots := make([]Slot, len(p.slots))
	copy(slots, p.slots)
	return Snapshot{slots: slots}
}

// Snapshot is an immutable copy of all slots, taken when a batch entry is
// added. Encoded values are never modified after Set, so they are shared.
type Snapshot struct {
	slots []Slot
}

func (s Snapshot) Len() int {
	return len(s.slots)
}

// Slots returns the slots. Callers must not modify them.
func (s Snapshot) Slots() []Slot {
	return s.slots
}

// EstimatedSize returns an upper bound of the bytes the values add to a
// statement.
func (s Snapshot) EstimatedSize() int64 {
	var n int64
	for _, slot := range s.slots {
		n += slot.estimatedSize()
	}
	return n
}
