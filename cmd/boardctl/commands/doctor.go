// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
	"github.com/spf13/cobra"
)

func DoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the emulation toolchain is usable",
		Long: "Check that qemu-system-aarch64 is installed and recent enough, and look\n" +
			"for an AArch64 UEFI firmware image to boot test images with.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, err := cmd.Flags().GetString("qemu")
			if err != nil {
				return err
			}

			path, err := findQEMU(binary)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", binary, path)

			version, err := qemuVersion(path)
			if err != nil {
				fmt.Println("Could not determine the QEMU version:", err)
			} else {
				fmt.Printf("QEMU version: %s\n", version)
				if version.LessThan(*semver.New(minQEMUVersion)) {
					fmt.Printf("Warning: QEMU %s or newer is recommended\n", minQEMUVersion)
				}
			}

			if firmware := findUEFI(); firmware != "" {
				fmt.Printf("UEFI firmware: %s\n", firmware)
			} else {
				fmt.Println("UEFI firmware: none found, 'emulate' will boot without -bios")
			}
			return nil
		},
	}

	cmd.Flags().String("qemu", defaultQEMUBinary, "QEMU binary to check")
	return cmd
}
