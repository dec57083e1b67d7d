// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-semver/semver"
)

const (
	defaultQEMUBinary = "qemu-system-aarch64"
	defaultQEMUMemory = "512M"

	// Oldest QEMU release the virt machine setup is known to work with.
	minQEMUVersion = "6.0.0"

	qemuStopGrace = 5 * time.Second
)

// uefiCandidatePaths are the usual locations of an AArch64 UEFI firmware
// image, distro by distro. The first one that exists is used.
var uefiCandidatePaths = []string{
	"/usr/share/qemu-efi-aarch64/QEMU_EFI.fd",
	"/usr/share/AAVMF/AAVMF_CODE.fd",
	"/usr/share/edk2/aarch64/QEMU_EFI.fd",
}

type emulatorOptions struct {
	Binary string
	BIOS   string
	Memory string
	Image  string
}

// emulator supervises one QEMU child whose serial console is wired to its
// stdout, standing in for a target's UART.
type emulator struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stop   sync.Once
}

func newEmulator(options emulatorOptions) *emulator {
	args := []string{
		"-M", "virt",
		"-cpu", "cortex-a72",
		"-m", options.Memory,
		"-nographic",
		"-cdrom", options.Image,
		"-serial", "stdio",
	}
	if options.BIOS != "" {
		args = append(args, "-bios", options.BIOS)
	}
	cmd := exec.Command(options.Binary, args...)
	cmd.Stderr = os.Stderr
	return &emulator{cmd: cmd}
}

func (e *emulator) Start() error {
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	e.stdout = stdout
	if err := e.cmd.Start(); err != nil {
		return sessionError(KindConnection, "failed to start '%s': %w", e.cmd.Path, err)
	}
	return nil
}

// Stdout is the emulated serial console.
func (e *emulator) Stdout() io.Reader {
	return e.stdout
}

// Stop terminates the child, escalating to SIGKILL when it ignores the
// termination request for too long.
func (e *emulator) Stop() {
	e.stop.Do(func() {
		if e.cmd.Process == nil {
			return
		}
		if err := e.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			e.cmd.Process.Kill()
		}

		done := make(chan struct{})
		go func() {
			e.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(qemuStopGrace):
			e.cmd.Process.Kill()
			<-done
		}
	})
}

func findQEMU(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", sessionError(KindNotFound, "'%s' was not found in the PATH", binary)
	}
	return path, nil
}

// findUEFI returns the UEFI firmware image to boot with, or an empty
// string to boot without one.
func findUEFI() string {
	return firstExisting(uefiCandidatePaths)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if stat, err := os.Stat(path); err == nil && !stat.IsDir() {
			return path
		}
	}
	return ""
}

var qemuVersionPattern = regexp.MustCompile(`version (\d+\.\d+\.\d+)`)

// qemuVersion runs --version and parses the release number out of it.
func qemuVersion(binary string) (*semver.Version, error) {
	out, err := exec.Command(binary, "--version").Output()
	if err != nil {
		return nil, err
	}
	return parseQEMUVersion(string(out))
}

func parseQEMUVersion(out string) (*semver.Version, error) {
	match := qemuVersionPattern.FindStringSubmatch(out)
	if match == nil {
		return nil, fmt.Errorf("unrecognized version output: %s", strings.TrimSpace(out))
	}
	return semver.NewVersion(match[1])
}
