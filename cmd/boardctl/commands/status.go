// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"github.com/spf13/cobra"
)

func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "status",
		Short:        "Show the current state of the target",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := GetBoard(cmd)
			if err != nil {
				return err
			}
			defer board.Close()

			status, err := board.QueryStatus(cmd.Context())
			if err != nil {
				return err
			}

			outputter, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			return outputter.Encode(status)
		},
	}

	addTargetFlags(cmd)
	addOutputFlag(cmd)
	return cmd
}
