// Copyright 2021-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

// ProgramName is the name of the binary
const ProgramName = "pvholdings"

// set by the mage build through -ldflags
var (
	commitHash string
	buildDate  string
)

// Version is a SemVer 2.0.0 build version. Suffix marks a pre-release and is
// blank for releases.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string
}

// String renders the version; pre-releases carry the commit as build metadata
func (v Version) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Suffix != "" {
		sb.WriteString("-" + v.Suffix)
		if commitHash != "" {
			sb.WriteString("+" + strings.ToLower(commitHash))
		}
	}
	return sb.String()
}

// GetDependencyList returns the sorted module dependencies as path="version"
func GetDependencyList() []string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	deps := make([]string, 0, len(bi.Deps))
	for _, dep := range bi.Deps {
		deps = append(deps, fmt.Sprintf("%s=%q", dep.Path, dep.Version))
	}
	sort.Strings(deps)
	return deps
}

// BuildVersionString creates the text printed by "pvholdings version"
func BuildVersionString() string {
	date := buildDate
	if date == "" {
		date = "unknown"
	}

	return fmt.Sprintf("%s v%s %s/%s\n\nBuild Date: %s\nCommit: %s\nBuilt with: %s",
		ProgramName, CurrentVersion, runtime.GOOS, runtime.GOARCH, date, commitHash, runtime.Version())
}
