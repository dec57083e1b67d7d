// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valentinbreiz/boardctl/cmd/boardctl/directory"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure the default target",
		Long: "Configure the default target used when no --endpoint or --port flag is\n" +
			"given. The config lives in a per-user YAML file.",
	}

	cmd.AddCommand(
		ConfigShowCmd(),
		ConfigSetCmd(),
		ConfigClearCmd(),
	)
	return cmd
}

func ConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "show",
		Short:        "Show the persisted target",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := storedTarget()
			if err != nil {
				return err
			}
			outputter, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			return outputter.Encode(target)
		},
	}

	addOutputFlag(cmd)
	return cmd
}

func ConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set",
		Short:        "Persist default target settings",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}

			changed := false
			if cmd.Flags().Changed("endpoint") {
				endpoint, err := cmd.Flags().GetString("endpoint")
				if err != nil {
					return err
				}
				cfg.Set(targetCfgKey+".endpoint", endpoint)
				changed = true
			}
			if cmd.Flags().Changed("port") {
				port, err := cmd.Flags().GetString("port")
				if err != nil {
					return err
				}
				cfg.Set(targetCfgKey+".port", port)
				changed = true
			}
			if cmd.Flags().Changed("baud") {
				baud, err := cmd.Flags().GetInt("baud")
				if err != nil {
					return err
				}
				cfg.Set(targetCfgKey+".baud", baud)
				changed = true
			}
			if cmd.Flags().Changed("timeout") {
				timeout, err := cmd.Flags().GetDuration("timeout")
				if err != nil {
					return err
				}
				cfg.Set(targetCfgKey+".timeout", timeout.String())
				changed = true
			}
			if !changed {
				return fmt.Errorf("nothing to set, pass --endpoint, --port, --baud or --timeout")
			}
			return directory.WriteConfig(cfg)
		},
	}

	cmd.Flags().String("endpoint", "", "default HTTP endpoint of the target")
	cmd.Flags().String("port", "", "default serial port of the target")
	cmd.Flags().Int("baud", defaultBaudRate, "default baud rate for the serial port")
	cmd.Flags().Duration("timeout", 5*time.Minute, "default timeout for runs")
	return cmd
}

func ConfigClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "clear",
		Short:        "Forget the persisted target",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			cfg.Set(targetCfgKey, nil)
			return directory.WriteConfig(cfg)
		},
	}
}
