// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func EmulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emulate <image>",
		Short: "Boot a test image under QEMU and collect the results",
		Long: "Boot a test image under qemu-system-aarch64 and capture its serial console\n" +
			"until the end-of-report sentinel appears or the timeout expires. The capture\n" +
			"is decoded exactly like a UART log fetched from real hardware, so the same\n" +
			"image can be validated without a board on the desk.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := runTimeout(cmd)
			if err != nil {
				return err
			}
			qemu, err := cmd.Flags().GetString("qemu")
			if err != nil {
				return err
			}
			bios, err := cmd.Flags().GetString("bios")
			if err != nil {
				return err
			}
			memory, err := cmd.Flags().GetString("memory")
			if err != nil {
				return err
			}
			logPath, err := cmd.Flags().GetString("log")
			if err != nil {
				return err
			}
			reportPath, err := cmd.Flags().GetString("report")
			if err != nil {
				return err
			}

			image := args[0]
			if _, err := os.Stat(image); os.IsNotExist(err) {
				return sessionError(KindNotFound, "no such image: '%s'", image)
			}

			binary, err := findQEMU(qemu)
			if err != nil {
				return err
			}
			if bios == "" {
				bios = findUEFI()
			}
			if bios != "" {
				fmt.Printf("Using UEFI firmware '%s'\n", bios)
			}

			emulator := newEmulator(emulatorOptions{
				Binary: binary,
				BIOS:   bios,
				Memory: memory,
				Image:  image,
			})

			fmt.Printf("Booting '%s' under %s ...\n", filepath.Base(image), qemu)
			if err := emulator.Start(); err != nil {
				return err
			}
			defer emulator.Stop()

			session := NewSession(timeout)
			defer func() {
				if err := session.WriteArtifacts(logPath, reportPath); err != nil {
					fmt.Println("Failed to write the artifacts:", err)
				} else {
					fmt.Printf("Wrote '%s' and '%s'\n", logPath, reportPath)
				}
			}()

			err = session.ExecuteStream(cmd.Context(), emulator.Stdout())
			emulator.Stop()
			if err == nil || len(session.Log()) > 0 {
				if printErr := printReportTo(cmd, session.Report()); err == nil {
					err = printErr
				}
			}
			if err != nil {
				return err
			}
			if !session.Success() {
				return sessionError(KindTargetFailure, "%d tests failed", session.Report().Failed)
			}
			fmt.Println("All tests passed")
			return nil
		},
	}

	addOutputFlag(cmd)
	cmd.Flags().DurationP("timeout", "t", 5*time.Minute, "how long to wait for the run to finish")
	cmd.Flags().String("qemu", defaultQEMUBinary, "QEMU binary to boot the image with")
	cmd.Flags().String("bios", "", "UEFI firmware image, autodetected when empty")
	cmd.Flags().String("memory", defaultQEMUMemory, "memory for the emulated machine")
	cmd.Flags().String("log", "uart.log", "path for the captured serial log")
	cmd.Flags().String("report", "report.json", "path for the JSON result")
	return cmd
}
