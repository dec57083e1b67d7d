// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/valentinbreiz/boardctl/cmd/boardctl/directory"
)

// States a target reports, shared by both transports.
const (
	stateIdle      = "idle"
	stateUploading = "uploading"
	stateFlashing  = "flashing"
	stateBooting   = "booting"
	stateRunning   = "running"
	stateCompleted = "completed"
	stateError     = "error"
	stateUnknown   = "unknown"
)

// BoardStatus is one observation of the target's state. Progress is -1
// when the transport does not report one.
type BoardStatus struct {
	State    string `json:"state" yaml:"state"`
	Progress int    `json:"progress" yaml:"progress"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Terminal reports whether the target will make no further progress.
func (s BoardStatus) Terminal() bool {
	return s.State == stateCompleted || s.State == stateError
}

func (s BoardStatus) Elements() []Short {
	return []Short{s}
}

func (s BoardStatus) Short() string {
	res := s.State
	if s.Progress >= 0 {
		res = fmt.Sprintf("%s (%d%%)", res, s.Progress)
	}
	if s.Message != "" {
		res += ": " + s.Message
	}
	return res
}

// Board is one test target reachable over a control channel. The HTTP and
// serial transports implement the same operations, so the session logic
// never cares which one it drives.
type Board interface {
	// Ping checks that the target responds on its control channel.
	Ping(ctx context.Context) error
	// UploadImage transfers a bootable test image of the given size.
	UploadImage(ctx context.Context, image io.Reader, size int64) error
	// StartRun asks the target to boot the uploaded image.
	StartRun(ctx context.Context) error
	// QueryStatus fetches the target's current state.
	QueryStatus(ctx context.Context) (BoardStatus, error)
	// FetchLog retrieves the UART log the target captured from the image.
	FetchLog(ctx context.Context) ([]byte, error)
	// Reset returns the target to its idle state.
	Reset(ctx context.Context) error
	// Close releases the control channel.
	Close() error
}

const defaultBaudRate = 115200

const targetCfgKey = "target"

// TargetConfig is the persisted default target. Timeout is stored as a
// duration string so the YAML stays readable.
type TargetConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Port     string `mapstructure:"port" yaml:"port" json:"port"`
	Baud     int    `mapstructure:"baud,omitempty" yaml:"baud,omitempty" json:"baud,omitempty"`
	Timeout  string `mapstructure:"timeout,omitempty" yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (t TargetConfig) Elements() []Short {
	return []Short{t}
}

func (t TargetConfig) Short() string {
	res := ""
	switch {
	case t.Endpoint != "":
		res = "endpoint: " + t.Endpoint
	case t.Port != "":
		baud := t.Baud
		if baud == 0 {
			baud = defaultBaudRate
		}
		res = fmt.Sprintf("port: %s at %d baud", t.Port, baud)
	default:
		return "no target configured"
	}
	if t.Timeout != "" {
		res += ", timeout " + t.Timeout
	}
	return res
}

func storedTarget() (TargetConfig, error) {
	cfg, err := directory.GetUserConfig()
	if err != nil {
		return TargetConfig{}, err
	}
	var target TargetConfig
	if cfg.IsSet(targetCfgKey) {
		if err := mapstructure.Decode(cfg.Get(targetCfgKey), &target); err != nil {
			return TargetConfig{}, fmt.Errorf("failed to parse the target config: %w", err)
		}
	}
	return target, nil
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("endpoint", "e", "", "HTTP endpoint of the target, e.g. http://192.168.1.50")
	cmd.Flags().StringP("port", "p", "", "serial port of the target")
	cmd.Flags().Int("baud", defaultBaudRate, "baud rate for the serial port")
}

// runTimeout resolves the --timeout flag, falling back to a persisted
// default when the flag was not given explicitly.
func runTimeout(cmd *cobra.Command) (time.Duration, error) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || cmd.Flags().Changed("timeout") {
		return timeout, err
	}
	if target, err := storedTarget(); err == nil && target.Timeout != "" {
		if stored, err := time.ParseDuration(target.Timeout); err == nil {
			return stored, nil
		}
	}
	return timeout, nil
}

// GetBoard resolves the target from the --endpoint/--port/--baud flags,
// falling back to the persisted config. An explicit flag always wins over
// the config; when both an endpoint and a port are persisted, the endpoint
// wins.
func GetBoard(cmd *cobra.Command) (Board, error) {
	endpoint, err := cmd.Flags().GetString("endpoint")
	if err != nil {
		return nil, err
	}
	port, err := cmd.Flags().GetString("port")
	if err != nil {
		return nil, err
	}
	baud, err := cmd.Flags().GetInt("baud")
	if err != nil {
		return nil, err
	}

	if endpoint != "" && port != "" {
		return nil, fmt.Errorf("specify either --endpoint or --port, not both")
	}

	if endpoint == "" && port == "" {
		target, err := storedTarget()
		if err != nil {
			return nil, err
		}
		endpoint = target.Endpoint
		if endpoint == "" {
			port = target.Port
		}
		if !cmd.Flags().Changed("baud") && target.Baud != 0 {
			baud = target.Baud
		}
	}

	switch {
	case endpoint != "":
		return newBoardNetwork(endpoint), nil
	case port != "":
		return openBoardSerial(port, baud)
	default:
		return nil, fmt.Errorf("no target configured, use --endpoint or --port, or persist one with 'boardctl config set'")
	}
}
