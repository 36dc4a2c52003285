// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = &MError{}
)

// MError is a class error with several underlying errors, e.g. every failed
// chunk of a batch.
type MError struct {
	cerr error
	uerr []error
}

func (e *MError) Format(st fmt.State, verb rune) {
	switch verb {
	case 'v':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+v:", e.cerr)
			for _, ue := range e.uerr {
				fmt.Fprintf(st, "\n\t%+v", ue)
			}
		} else {
			fmt.Fprintf(st, "%v:", e.cerr)
			for _, ue := range e.uerr {
				fmt.Fprintf(st, "\n\t%v", ue)
			}
		}
	case 's':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+s:", e.cerr)
			for _, ue := range e.uerr {
				fmt.Fprintf(st, "\n\t%+s", ue)
			}
		} else {
			fmt.Fprintf(st, "%s:", e.cerr)
			for _, ue := range e.uerr {
				fmt.Fprintf(st, "\n\t%s", ue)
			}
		}
	}
}

func (e *MError) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *MError) Is(s error) bool {
	if errors.Is(e.cerr, s) {
		return true
	}
	for _, ue := range e.uerr {
		if errors.Is(ue, s) {
			return true
		}
	}
	return false
}

// Unwrap lets errors.As reach into every underlying error.
func (e *MError) Unwrap() []error {
	return e.uerr
}

// Cause returns the underlying errors.
func (e *MError) Cause() []error {
	return e.uerr
}

// Collect returns nil if all of uerr are nil. Otherwise it returns an MError
// holding the non-nil ones.
func Collect(cerr error, uerr ...error) error {
	n := 0
	for _, e := range uerr {
		if e != nil {
			uerr[n] = e
			n++
		}
	}
	uerr = uerr[:n]
	if len(uerr) == 0 {
		return nil
	}
	return &MError{
		uerr: uerr,
		cerr: cerr,
	}
}
