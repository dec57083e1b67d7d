// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/valentinbreiz/boardctl/cmd/boardctl/commands"
)

// Set at build time through -X flags.
var (
	date      = "2025-01-01"
	version   = "v0.0.0"
	buildMode = "development"
)

func main() {
	// An interrupt cancels the context, so a running session stops its
	// emulator, releases the control channel, and still writes its
	// artifacts on the way out.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	info := commands.Info{
		Date:    date,
		Version: version,
	}
	isReleaseBuild := buildMode == "release"

	cmd := commands.BoardctlCmd(info, isReleaseBuild)
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
