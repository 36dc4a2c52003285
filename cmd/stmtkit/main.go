// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/pingcap/stmtkit/lib/util/cmd"
	"github.com/pingcap/stmtkit/pkg/util/versioninfo"
)

func main() {
	rootCmd := newRootCmd()
	rootCmd.Version = fmt.Sprintf("%s, commit %s", versioninfo.StmtkitVersion, versioninfo.StmtkitGitHash)
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	cmd.RunRootCommand(rootCmd)
}
