// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

func VersionCmd(info Info, isReleaseBuild bool) *cobra.Command {
	return &cobra.Command{
		Use:          "version",
		Short:        "Print the version of boardctl",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			version := info.Version
			if !isReleaseBuild {
				// Development build: ask git for something useful.
				version = getGitVersion()
			}

			fmt.Printf("boardctl version:\t%s\n", version)
			fmt.Printf("Build date:\t%s\n", info.Date)
			if !isReleaseBuild {
				fmt.Println("Build type:\tdevelopment")
			}
		},
	}
}

// getGitVersion tries to determine a useful version string from git
func getGitVersion() string {
	// First, try to get the exact tag (e.g., v2.1.0)
	if tag, err := exec.Command("git", "describe", "--tags", "--exact-match").Output(); err == nil {
		return strings.TrimSpace(string(tag))
	}

	// Then, try describe with --tags (e.g., v2.1.0-5-gabc123)
	if desc, err := exec.Command("git", "describe", "--tags", "--dirty").Output(); err == nil {
		return strings.TrimSpace(string(desc))
	}

	// Fallback: short commit hash
	if rev, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		commit := strings.TrimSpace(string(rev))
		return "dev-" + commit
	}

	return "dev-unknown"
}
