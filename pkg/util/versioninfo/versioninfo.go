// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package versioninfo

import (
	"fmt"
	"strings"

	semver "github.com/Masterminds/semver"
)

// These variables will be overwritten by Makefile.
var (
	StmtkitVersion   = "None"
	StmtkitGitBranch = "None"
	StmtkitGitHash   = "None"
	StmtkitBuildTS   = "None"
)

// MinParametersVersion is the first server release with
// INFORMATION_SCHEMA.PARAMETERS.
const MinParametersVersion = "5.5.3"

// ServerRelease returns the numeric release of a server version string,
// dropping suffixes such as -log, -TiDB-v7.5.0 or -MariaDB-1.
func ServerRelease(version string) string {
	release, _, _ := strings.Cut(strings.TrimSpace(version), "-")
	return release
}

// HasParameterMetadata reports whether a server with the version can describe
// routine parameters. Unknown versions are assumed to.
func HasParameterMetadata(serverVersion string) bool {
	return serverVersion == "" || GtEqToVersion(ServerRelease(serverVersion), MinParametersVersion)
}

// GtEqToVersion returns whether v1 >= v2. If any error happens, return true.
func GtEqToVersion(v1, v2 string) bool {
	constraint, err := semver.NewConstraint(fmt.Sprintf(">=%s", v2))
	if err != nil {
		return true
	}
	ver, err := semver.NewVersion(v1)
	if err != nil {
		return true
	}
	// 8.0.11-rc1 is treated as 8.0.11
	if ver.Prerelease() != "" {
		ckVer, err := ver.SetPrerelease("")
		if err != nil {
			return true
		}
		ver = &ckVer
	}
	return constraint.Check(ver)
}
