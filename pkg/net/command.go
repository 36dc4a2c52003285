// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser/mysql"
)

// Command is the first byte of a client command packet.
type Command byte

const (
	ComQuit            = Command(mysql.ComQuit)
	ComInitDB          = Command(mysql.ComInitDB)
	ComQuery           = Command(mysql.ComQuery)
	ComPing            = Command(mysql.ComPing)
	ComSetOption       = Command(mysql.ComSetOption)
	ComResetConnection = Command(mysql.ComResetConnection)
)

var commandStrs = map[Command]string{
	ComQuit:            "Quit",
	ComInitDB:          "InitDB",
	ComQuery:           "Query",
	ComPing:            "Ping",
	ComSetOption:       "SetOption",
	ComResetConnection: "ResetConnect",
}

// Options carried by COM_SET_OPTION.
const (
	OptionMultiStatementsOn  uint16 = 0
	OptionMultiStatementsOff uint16 = 1
)

func (f Command) Byte() byte {
	return byte(f)
}

func (f Command) String() string {
	if s, ok := commandStrs[f]; ok {
		return s
	}
	return fmt.Sprintf("Not a command: %x", byte(f))
}

func (f *Command) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Command) UnmarshalText(o []byte) error {
	for c, s := range commandStrs {
		if s == string(o) {
			*f = c
			break
		}
	}
	return nil
}
