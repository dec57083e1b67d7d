// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func PingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ping",
		Short:        "Check that the target responds on its control channel",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := GetBoard(cmd)
			if err != nil {
				return err
			}
			defer board.Close()

			if err := board.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Got ping from the target")
			return nil
		},
	}

	addTargetFlags(cmd)
	return cmd
}
