// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

func MonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor the serial output of the target",
		Long: "Monitor the serial output of the target and print decoded telemetry events\n" +
			"as they arrive. With --raw the bytes are streamed verbatim instead.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := cmd.Flags().GetString("port")
			if err != nil {
				return err
			}
			baud, err := cmd.Flags().GetInt("baud")
			if err != nil {
				return err
			}
			raw, err := cmd.Flags().GetBool("raw")
			if err != nil {
				return err
			}

			if port == "" {
				port = ConfiguredPort()
			}
			if port == "" {
				return fmt.Errorf("no serial port given, use --port or pick one with 'boardctl port'")
			}

			fmt.Printf("Starting serial monitor of port '%s' ...\n", port)
			dev, err := serialOpen(port, &serial.Mode{BaudRate: baud})
			if err != nil {
				return err
			}
			defer dev.Close()

			if raw {
				_, err := io.Copy(os.Stdout, dev)
				return err
			}

			decoder := newTelemetryDecoder()
			decoder.onFrame = func(code byte, payload []byte) {
				fmt.Println(formatTelemetry(code, payload))
			}

			reader := bufio.NewReader(dev)
			window := make([]byte, 0, len(reportSentinel))
			seen := false
			for {
				b, err := reader.ReadByte()
				if err != nil {
					return fmt.Errorf("lost connection to '%s': %w", port, err)
				}
				decoder.Feed([]byte{b})
				if len(window) == len(reportSentinel) {
					copy(window, window[1:])
					window[len(window)-1] = b
				} else {
					window = append(window, b)
				}
				if !seen && bytes.Equal(window, reportSentinel) {
					seen = true
					fmt.Println("End of report")
				}
			}
		},
	}

	cmd.Flags().StringP("port", "p", "", "serial port of the target")
	cmd.Flags().Int("baud", defaultBaudRate, "baud rate for the serial port")
	cmd.Flags().Bool("raw", false, "stream the bytes without decoding them")
	return cmd
}

// serialPort wraps a serial connection and converts empty reads into
// errors, so io helpers stop instead of spinning on a dead port.
type serialPort struct {
	serial.Port
}

func (s serialPort) Read(buf []byte) (n int, err error) {
	n, err = s.Port.Read(buf)
	if err == nil && n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return n, err
}

func serialOpen(port string, mode *serial.Mode) (*serialPort, error) {
	dev, err := serial.Open(port, mode)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("the port '%s' was not found", port)
		}
		return nil, err
	}
	return &serialPort{dev}, nil
}
