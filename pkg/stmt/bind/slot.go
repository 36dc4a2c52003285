// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"io"
	"math"

	"github.com/pingcap/stmtkit/lib/util/errors"
)

// State is the binding state of a parameter slot.
type State uint8

const (
	Unset State = iota
	Null
	Value
	Stream
)

func (s State) String() string {
	switch s {
	case Unset:
		return "unset"
	case Null:
		return "null"
	case Value:
		return "value"
	case Stream:
		return "stream"
	}
	return "unknown"
}

// Slot is one bound parameter. A Value slot holds the encoded literal.
type Slot struct {
	State State
	// Type is the declared MySQL type tag.
	Type   byte
	Value  []byte
	Stream *StreamValue
}

// IsNull reports whether the slot binds SQL NULL.
func (s Slot) IsNull() bool {
	return s.State == Null
}

// StreamValue is a reader bound to a parameter. It is read once per bind; a
// reader that is also an io.Seeker is rewound after each complete pass.
type StreamValue struct {
	r io.Reader
	// length bounds the bytes read. -1 means read to EOF.
	length int64
	binary bool
	// start is the offset to rewind seekable readers to.
	start    int64
	seekable bool
	consumed bool
}

// NewStream wraps r. Binary streams are raw bytes, text streams are UTF-8.
func NewStream(r io.Reader, length int64, binary bool) *StreamValue {
	sv := &StreamValue{r: r, length: length, binary: binary}
	if length < 0 {
		sv.length = -1
	}
	if seeker, ok := r.(io.Seeker); ok {
		pos, err := seeker.Seek(0, io.SeekCurrent)
		if err == nil {
			sv.start = pos
			sv.seekable = true
		}
	}
	return sv
}

func (sv *StreamValue) Binary() bool {
	return sv.binary
}

// Len returns the declared length, or -1.
func (sv *StreamValue) Len() int64 {
	return sv.length
}

// size returns the number of bytes the next pass reads. Seekable streams of
// unknown length are measured.
func (sv *StreamValue) size() (int64, bool) {
	if sv.length >= 0 {
		return sv.length, true
	}
	if !sv.seekable {
		return 0, false
	}
	seeker := sv.r.(io.Seeker)
	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false
	}
	if _, err := seeker.Seek(sv.start, io.SeekStart); err != nil {
		return 0, false
	}
	return end - sv.start, true
}

// reader returns the reader for one pass.
func (sv *StreamValue) reader() (io.Reader, error) {
	if sv.consumed {
		return nil, errors.WithStack(ErrStreamAlreadyConsumed)
	}
	if sv.length >= 0 {
		return io.LimitReader(sv.r, sv.length), nil
	}
	return sv.r, nil
}

// done is called after a complete pass.
func (sv *StreamValue) done(autoClose bool) error {
	if sv.seekable {
		if _, err := sv.r.(io.Seeker).Seek(sv.start, io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
	} else {
		sv.consumed = true
	}
	if autoClose {
		if closer, ok := sv.r.(io.Closer); ok {
			sv.consumed = true
			return errors.WithStack(closer.Close())
		}
	}
	return nil
}

// unknownStreamSize is the estimate for streams that can not be measured. It
// keeps such rows in chunks of their own.
const unknownStreamSize = math.MaxInt32

// estimatedSize is the worst case of the bytes the slot adds to a statement.
func (s Slot) estimatedSize() int64 {
	switch s.State {
	case Null:
		return int64(len(nullLiteral))
	case Value:
		return int64(len(s.Value))
	case Stream:
		n, ok := s.Stream.size()
		if !ok {
			return unknownStreamSize
		}
		// every byte may double when escaped or hex encoded
		return 2*n + int64(len(binaryIntroducer)) + 3
	}
	return 0
}
