// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
)

// New returns a plain error without a stacktrace. Sentinel errors of every
// package are declared with it.
func New(text string) error {
	return errors.New(text)
}

// Errorf is like fmt.Errorf, but the result carries the caller's stacktrace.
func Errorf(format string, args ...any) error {
	e := &Error{err: fmt.Errorf(format, args...), isFmt: true}
	e.withStackDepth(1, defaultStackDepth)
	return e
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}
