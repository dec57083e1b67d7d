// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"os"

	"github.com/spf13/cobra"
)

func DecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <logfile>",
		Short: "Decode the test report embedded in a saved UART log",
		Long: "Decode the test report embedded in a saved UART log. The telemetry frames\n" +
			"are picked out from around boot banners and other console noise, so a log\n" +
			"captured by any means works. Decoding succeeds even when the report shows\n" +
			"failing tests, the outcome of the tests is the report's business.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				if os.IsNotExist(err) {
					return sessionError(KindNotFound, "no such log: '%s'", args[0])
				}
				return err
			}

			outputter, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			return outputter.Encode(decodeReport(data))
		},
	}

	addOutputFlag(cmd)
	return cmd
}
