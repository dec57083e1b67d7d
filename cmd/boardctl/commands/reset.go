// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func ResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "reset",
		Short:        "Return the target to its idle state",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := GetBoard(cmd)
			if err != nil {
				return err
			}
			defer board.Close()

			if err := board.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Target reset")
			return nil
		},
	}

	addTargetFlags(cmd)
	return cmd
}
