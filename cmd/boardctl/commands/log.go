// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func LogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Fetch the UART log the target captured",
		Long: "Fetch the UART log the target captured from the last run. The log is the\n" +
			"raw byte stream of the image's serial console, telemetry frames included.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}

			board, err := GetBoard(cmd)
			if err != nil {
				return err
			}
			defer board.Close()

			data, err := board.FetchLog(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return err
			}
			fmt.Printf("Wrote %d bytes to '%s'\n", len(data), out)
			return nil
		},
	}

	addTargetFlags(cmd)
	cmd.Flags().String("out", "", "write the log to a file instead of stdout")
	return cmd
}
