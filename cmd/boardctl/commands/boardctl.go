// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"github.com/spf13/cobra"
)

// Info is the build information of this boardctl binary.
type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
}

func BoardctlCmd(info Info, isReleaseBuild bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boardctl",
		Short: "Run test images on hardware targets",
		Long: "Boardctl drives automated test runs on remote or emulated hardware targets.\n\n" +
			"It pushes a bootable test image to a target over HTTP or serial, starts the\n" +
			"run, waits for it to finish, and decodes the structured test report the\n" +
			"image emits over its UART. CI gets machine-readable pass/fail results\n" +
			"instead of free-form console text.",
	}

	cmd.AddCommand(
		ConfigCmd(),
		DecodeCmd(),
		DoctorCmd(),
		EmulateCmd(),
		LogCmd(),
		MonitorCmd(),
		PingCmd(),
		PortCmd(),
		ResetCmd(),
		RunCmd(),
		StatusCmd(),
		UploadCmd(),
		VersionCmd(info, isReleaseBuild),
		WatchCmd(),
	)
	return cmd
}
