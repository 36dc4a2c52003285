// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package callable maps the placeholders of a stored routine call to the
// routine's parameters and retrieves output parameters through session
// variables.
package callable

import (
	"strings"

	"github.com/pingcap/stmtkit/lib/util/errors"
)

// Direction is the mode of a routine parameter.
type Direction uint8

const (
	In Direction = iota
	Out
	InOut
	// Return is the return value of a function, always at index 0.
	Return
)

func (d Direction) String() string {
	switch d {
	case In:
		return "IN"
	case Out:
		return "OUT"
	case InOut:
		return "INOUT"
	case Return:
		return "RETURN"
	}
	return "UNKNOWN"
}

// IsInput reports whether the caller supplies a value.
func (d Direction) IsInput() bool {
	return d == In || d == InOut
}

// IsOutput reports whether the server returns a value through a session
// variable.
func (d Direction) IsOutput() bool {
	return d == Out || d == InOut
}

// ParseDirection parses PARAMETER_MODE of INFORMATION_SCHEMA.PARAMETERS. An
// empty mode is the return value of a function.
func ParseDirection(mode string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(mode)) {
	case "IN":
		return In, nil
	case "OUT":
		return Out, nil
	case "INOUT":
		return InOut, nil
	case "":
		return Return, nil
	}
	return In, errors.Errorf("unknown parameter mode %q", mode)
}

// Param is one parameter of a stored routine.
type Param struct {
	// Index is the 0-based logical index. A function's return value is 0.
	Index     int
	Name      string
	Direction Direction
	// Type is a mysql.TypeXxx tag.
	Type      byte
	Precision int
	Scale     int
	Nullable  bool
}
