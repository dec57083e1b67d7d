// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func UploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload a test image to the target without running it",
		Long: "Upload a test image to the target without running it. Over serial the\n" +
			"image goes out in acknowledged chunks, over HTTP as a single multipart\n" +
			"request.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			image, size, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer image.Close()

			board, err := GetBoard(cmd)
			if err != nil {
				return err
			}
			defer board.Close()

			fmt.Printf("Uploading '%s' (%d bytes) ...\n", filepath.Base(args[0]), size)
			if err := board.UploadImage(cmd.Context(), image, size); err != nil {
				return err
			}
			fmt.Println("Upload complete")
			return nil
		},
	}

	addTargetFlags(cmd)
	return cmd
}
