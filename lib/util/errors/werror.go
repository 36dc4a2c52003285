// Copyright 2022 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = &WError{}
)

// WError pairs a class error (usually a package sentinel) with its cause.
// errors.Is matches both, Unwrap returns the cause.
type WError struct {
	uerr error
	cerr error
}

func (e *WError) Format(st fmt.State, verb rune) {
	switch verb {
	case 'v':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+v: %+v", e.cerr, e.uerr)
		} else {
			fmt.Fprintf(st, "%v: %v", e.cerr, e.uerr)
		}
	case 's':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+s: %+s", e.cerr, e.uerr)
		} else {
			fmt.Fprintf(st, "%s: %s", e.cerr, e.uerr)
		}
	}
}

func (e *WError) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *WError) Is(s error) bool {
	return errors.Is(e.cerr, s)
}

func (e *WError) As(target any) bool {
	return errors.As(e.cerr, target)
}

func (e *WError) Unwrap() error {
	return e.uerr
}

// Wrap returns cerr annotated with uerr. A nil cause returns cerr itself, a nil
// cerr returns nil.
func Wrap(cerr error, uerr error) error {
	if cerr == nil {
		return nil
	}
	if uerr == nil {
		return cerr
	}
	return &WError{
		uerr: uerr,
		cerr: cerr,
	}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(cerr error, msg string, args ...any) error {
	if cerr == nil {
		return nil
	}
	return &WError{
		uerr: fmt.Errorf(msg, args...),
		cerr: cerr,
	}
}
