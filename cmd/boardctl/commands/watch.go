// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchSettleDelay collapses the burst of writes an image rebuild produces
// into a single run, started once the file has gone quiet.
const watchSettleDelay = 500 * time.Millisecond

func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <image>",
		Short: "Re-run a test image on the target whenever it changes",
		Long: "Run a test image on the target, then watch the file and re-run it on every\n" +
			"rebuild. Handy next to a code-build loop: leave the watcher running and the\n" +
			"target picks up each fresh image by itself.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]
			stat, err := os.Stat(image)
			if err != nil {
				if os.IsNotExist(err) {
					return sessionError(KindNotFound, "no such image: '%s'", image)
				}
				return err
			}
			if stat.IsDir() {
				return fmt.Errorf("can't watch a directory: '%s'", image)
			}

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

			// Rebuilds usually replace the file, so watch the directory
			// and filter, a watch on the file itself dies on the rename.
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Add(filepath.Dir(image)); err != nil {
				return err
			}

			ctx := cmd.Context()
			runImage := func() {
				board, err := GetBoard(cmd)
				if err != nil {
					fmt.Println("Error:", err)
					return
				}
				defer board.Close()

				session := NewSession(timeout)
				err = session.Execute(ctx, board, image)
				if err == nil || len(session.Log()) > 0 {
					printReport(session.Report())
				}
				if err != nil {
					fmt.Println("Error:", err)
				}
				if err := session.WriteArtifacts(logPath, reportPath); err != nil {
					fmt.Println("Failed to write the artifacts:", err)
				}
			}

			runImage()
			fmt.Printf("Watching '%s' for changes ...\n", image)

			fired := false
			ticker := time.NewTicker(watchSettleDelay)
			defer ticker.Stop()
			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != filepath.Clean(image) {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					if !fired {
						fmt.Printf("Image modified '%s'\n", event.Name)
					}
					fired = true
					ticker.Reset(watchSettleDelay)
				case <-ticker.C:
					if fired {
						fired = false
						runImage()
						fmt.Printf("Watching '%s' for changes ...\n", image)
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					fmt.Println("Watch error:", err)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	addTargetFlags(cmd)
	cmd.Flags().DurationP("timeout", "t", 5*time.Minute, "how long to wait for each run to finish")
	cmd.Flags().String("log", "uart.log", "path for the captured UART log")
	cmd.Flags().String("report", "report.json", "path for the JSON result")
	return cmd
}
