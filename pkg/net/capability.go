// Copyright 2022 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser/mysql"
)

// Capability is the negotiated client capability set.
type Capability uint32

const (
	ClientFoundRows       = Capability(mysql.ClientFoundRows)
	ClientConnectWithDB   = Capability(mysql.ClientConnectWithDB)
	ClientLocalFiles      = Capability(mysql.ClientLocalFiles)
	ClientProtocol41      = Capability(mysql.ClientProtocol41)
	ClientTransactions    = Capability(mysql.ClientTransactions)
	ClientMultiStatements = Capability(mysql.ClientMultiStatements)
	ClientMultiResults    = Capability(mysql.ClientMultiResults)
	ClientPSMultiResults  = Capability(mysql.ClientPSMultiResults)
	ClientPluginAuth      = Capability(mysql.ClientPluginAuth)
	ClientDeprecateEOF    = Capability(mysql.ClientDeprecateEOF)
)

var capabilityStrings = []struct {
	Cap Capability
	Str string
}{
	{ClientFoundRows, "CLIENT_FOUND_ROWS"},
	{ClientConnectWithDB, "CLIENT_CONNECT_WITH_DB"},
	{ClientLocalFiles, "CLIENT_LOCAL_FILES"},
	{ClientProtocol41, "CLIENT_PROTOCOL_41"},
	{ClientTransactions, "CLIENT_TRANSACTIONS"},
	{ClientMultiStatements, "CLIENT_MULTI_STATEMENTS"},
	{ClientMultiResults, "CLIENT_MULTI_RESULTS"},
	{ClientPSMultiResults, "CLIENT_PS_MULTI_RESULTS"},
	{ClientPluginAuth, "CLIENT_PLUGIN_AUTH"},
	{ClientDeprecateEOF, "CLIENT_DEPRECATE_EOF"},
}

func (f Capability) Uint32() uint32 {
	return uint32(f)
}

func (f Capability) String() string {
	str := &strings.Builder{}
	for _, c := range capabilityStrings {
		if f&c.Cap != 0 {
			if str.Len() > 0 {
				str.WriteByte('|')
			}
			str.WriteString(c.Str)
		}
	}
	return str.String()
}

func (f *Capability) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Capability) UnmarshalText(o []byte) error {
	var caps Capability
	for _, flag := range strings.Split(string(o), "|") {
		for _, c := range capabilityStrings {
			if flag == c.Str {
				caps |= c.Cap
			}
		}
	}
	*f = caps
	return nil
}
