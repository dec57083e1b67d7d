// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Run a test image on the target and collect the results",
		Long: "Run a test image on the target: upload it, start it, wait for the run to\n" +
			"finish, then fetch the UART log and decode the test report embedded in it.\n" +
			"The raw log and a JSON result are written on every exit path, so a failed\n" +
			"or timed out run still leaves its partial capture behind.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := runTimeout(cmd)
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

			board, err := GetBoard(cmd)
			if err != nil {
				return err
			}
			defer board.Close()

			session := NewSession(timeout)
			defer func() {
				if err := session.WriteArtifacts(logPath, reportPath); err != nil {
					fmt.Println("Failed to write the artifacts:", err)
				} else {
					fmt.Printf("Wrote '%s' and '%s'\n", logPath, reportPath)
				}
			}()

			err = session.Execute(cmd.Context(), board, args[0])
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

	addTargetFlags(cmd)
	addOutputFlag(cmd)
	cmd.Flags().DurationP("timeout", "t", 5*time.Minute, "how long to wait for the run to finish")
	cmd.Flags().String("log", "uart.log", "path for the captured UART log")
	cmd.Flags().String("report", "report.json", "path for the JSON result")
	return cmd
}
