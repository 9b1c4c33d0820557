// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
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

var (
	// commitHash contains the current Git revision, set with -ldflags
	commitHash string

	// buildDate contains the date of the current build.
	buildDate string
)

// Version represents a SemVer 2.0.0 compatible build version
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string
}

// dependencyList returns the module's dependencies formatted as path="version"
func dependencyList() []string {
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

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Suffix != "" {
		s += "-" + v.Suffix
		if commitHash != "" {
			s += "+" + strings.ToLower(commitHash)
		}
	}
	return s
}

// BuildVersionString is printed by the version command. Artifacts written by
// a build are stamped with ArtifactFormat so the server can reject stale
// directories.
func BuildVersionString(verbose bool) string {
	date := buildDate
	if date == "" {
		date = "unknown"
	}

	s := fmt.Sprintf("portfolio-rl v%s %s/%s\n\nBuild Date: %s\nCommit: %s\nBuilt with: %s\nArtifact format: %d",
		CurrentVersion, runtime.GOOS, runtime.GOARCH, date, commitHash, runtime.Version(), ArtifactFormat)

	if verbose {
		s += "\n\nDependencies:\n\n" + strings.Join(dependencyList(), "\n")
	}
	return s
}
