// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bind substitutes bound parameter values into statement templates.
package bind

import (
	"encoding/hex"
	"io"
	"unicode/utf8"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/pingcap/stmtkit/pkg/stmt/encode"
	"github.com/pingcap/stmtkit/pkg/stmt/parse"
)

var (
	ErrMissingParameter       = errors.New("parameter is not bound")
	ErrParameterCountMismatch = errors.New("parameter count mismatch")
	ErrStreamAlreadyConsumed  = errors.New("stream already consumed")
	ErrInvalidIndex           = errors.New("invalid parameter index")
)

const streamBufferSize = 8 * 1024

var (
	nullLiteral      = []byte("NULL")
	binaryIntroducer = []byte("_binary")
)

// Options control how a statement is assembled.
type Options struct {
	// Encoder escapes stream values. It must match the encoder the slots were
	// set with.
	Encoder *encode.Encoder
	// Comment is prepended as /* Comment */.
	Comment string
	// AutoCloseStreams closes io.Closer streams after they are read.
	AutoCloseStreams bool
}

// AppendComment appends the statement comment prefix, if any, in the
// connection charset.
func AppendComment(dst []byte, opts Options) ([]byte, error) {
	if opts.Comment == "" {
		return dst, nil
	}
	comment := []byte("/* " + opts.Comment + " */ ")
	if opts.Encoder != nil {
		var err error
		if comment, err = opts.Encoder.Transcode(comment); err != nil {
			return nil, err
		}
	}
	return append(dst, comment...), nil
}

// Bind interleaves the fragments of tpl with the slot values.
func Bind(tpl *parse.Template, slots []Slot, opts Options) ([]byte, error) {
	if len(slots) != tpl.NumParams() {
		return nil, errors.Wrapf(ErrParameterCountMismatch, "statement has %d placeholders but %d values are bound", tpl.NumParams(), len(slots))
	}
	size := tpl.StaticSize()
	for _, slot := range slots {
		if slot.State != Stream {
			size += int(slot.estimatedSize())
		}
	}
	buf, err := AppendComment(make([]byte, 0, size+len(opts.Comment)+8), opts)
	if err != nil {
		return nil, err
	}
	for i, slot := range slots {
		buf = append(buf, tpl.Fragments[i]...)
		switch slot.State {
		case Null:
			buf = append(buf, nullLiteral...)
		case Value:
			buf = append(buf, slot.Value...)
		case Stream:
			if opts.Encoder == nil {
				return nil, errors.Errorf("parameter %d: binding a stream requires an encoder", i)
			}
			if buf, err = appendStream(buf, slot.Stream, opts.Encoder, opts.AutoCloseStreams); err != nil {
				return nil, errors.Wrapf(err, "parameter %d", i)
			}
		default:
			return nil, errors.Wrapf(ErrMissingParameter, "parameter %d", i)
		}
	}
	return append(buf, tpl.Fragments[len(slots)]...), nil
}

// Bind binds the live slots.
func (p *Params) Bind(tpl *parse.Template, opts Options) ([]byte, error) {
	if opts.Encoder == nil {
		opts.Encoder = p.enc
	}
	return Bind(tpl, p.slots, opts)
}

// appendStream reads the stream with a fixed buffer and escapes each chunk.
func appendStream(dst []byte, sv *StreamValue, enc *encode.Encoder, autoClose bool) ([]byte, error) {
	r, err := sv.reader()
	if err != nil {
		return nil, err
	}
	hexMode := sv.binary && enc.HexBinary()
	switch {
	case hexMode:
		dst = append(dst, "x'"...)
	case sv.binary && enc.Config().BinaryIntroducer:
		dst = append(dst, binaryIntroducer...)
		dst = append(dst, '\'')
	default:
		dst = append(dst, '\'')
	}

	buf := make([]byte, streamBufferSize)
	// carry holds the bytes of a rune split across two reads.
	var carry []byte
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			switch {
			case hexMode:
				dst = hex.AppendEncode(dst, chunk)
			case sv.binary:
				dst = enc.EscapeTo(dst, chunk, true)
			default:
				if len(carry) > 0 {
					chunk = append(carry, chunk...)
					carry = nil
				}
				cut := runeBoundary(chunk)
				if cut < len(chunk) {
					carry = append([]byte(nil), chunk[cut:]...)
					chunk = chunk[:cut]
				}
				if dst, err = appendText(dst, chunk, enc); err != nil {
					return nil, err
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			sv.consumed = !sv.seekable
			return nil, errors.WithStack(rerr)
		}
	}
	if len(carry) > 0 {
		if dst, err = appendText(dst, carry, enc); err != nil {
			return nil, err
		}
	}
	dst = append(dst, '\'')
	if err := sv.done(autoClose); err != nil {
		return nil, err
	}
	return dst, nil
}

func appendText(dst, chunk []byte, enc *encode.Encoder) ([]byte, error) {
	escaped := enc.EscapeTo(make([]byte, 0, len(chunk)+16), chunk, false)
	b, err := enc.Transcode(escaped)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// runeBoundary returns the length of the longest prefix of b that does not
// end inside a UTF-8 sequence.
func runeBoundary(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
