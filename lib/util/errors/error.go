// Copyright 2022 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"runtime"
)

const defaultStackDepth = 48

var (
	_ error         = &Error{}
	_ fmt.Formatter = &Error{}
)

// Error attaches a stacktrace to an error. %+v/%v print the trace, %s does not.
type Error struct {
	err   error
	isFmt bool
	trace stacktrace
}

// Formatted reports whether the error was built by Errorf.
func (e *Error) Formatted() bool {
	return e.isFmt
}

// WithStack wraps an error with the current stacktrace. Nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	e := &Error{err: err}
	e.withStackDepth(1, defaultStackDepth)
	return e
}

// WithStackDepth is like WithStack, but can specify stack depth.
func WithStackDepth(err error, depth int) error {
	if err == nil {
		return nil
	}
	e := &Error{err: err}
	e.withStackDepth(1, depth)
	return e
}

func (e *Error) withStackDepth(skip, depth int) {
	e.trace = make(stacktrace, depth)
	n := runtime.Callers(2+skip, e.trace)
	e.trace = e.trace[:n]
}

func (e *Error) Format(st fmt.State, verb rune) {
	switch verb {
	case 'v':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+v", e.err)
		} else {
			fmt.Fprintf(st, "%v", e.err)
		}
		e.trace.Format(st, 'v')
	case 's':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+s", e.err)
			e.trace.Format(st, 's')
		} else {
			fmt.Fprintf(st, "%s", e.err)
		}
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *Error) As(target any) bool {
	return errors.As(e.err, target)
}

// Unwrap skips the stacktrace layer. For Errorf errors it also skips the
// fmt layer and returns the %w operand, if any.
func (e *Error) Unwrap() error {
	return errors.Unwrap(e.err)
}
