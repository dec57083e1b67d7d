// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"
)

type encoder interface {
	Encode(interface{}) error
}

func parseOutputFlag(cmd *cobra.Command) (encoder, error) {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(output) {
	case "json":
		res := json.NewEncoder(os.Stdout)
		res.SetIndent("", "  ")
		return res, nil
	case "yaml":
		return yaml.NewEncoder(os.Stdout), nil
	case "short":
		return newShortEncoder(os.Stdout), nil
	default:
		return nil, fmt.Errorf("--output flag '%s' was not recognized. Must be either json, yaml or short.", output)
	}
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "short", "output format, either json, yaml or short")
}

type Elements interface {
	Elements() []Short
}

type Short interface {
	Short() string
}

type shortEncoder struct {
	w io.Writer
}

func newShortEncoder(w io.Writer) *shortEncoder {
	return &shortEncoder{w: w}
}

func (s *shortEncoder) Encode(e interface{}) error {
	elements, ok := e.(Elements)
	if !ok {
		return fmt.Errorf("value type %T was not compatible with the Elements interface", e)
	}
	for _, element := range elements.Elements() {
		if _, err := fmt.Fprintln(s.w, element.Short()); err != nil {
			return err
		}
	}
	return nil
}

// printReportTo renders a report in the format the --output flag asks
// for. The short format keeps the human-facing warning lines, json and
// yaml emit the bare report for machine consumers.
func printReportTo(cmd *cobra.Command, report *TestReport) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if strings.ToLower(output) == "short" {
		printReport(report)
		return nil
	}
	outputter, err := parseOutputFlag(cmd)
	if err != nil {
		return err
	}
	return outputter.Encode(report)
}

// progressReader wraps r in a byte progress bar when stdout is a
// terminal. The returned function finishes the bar.
func progressReader(size int64, r io.Reader) (io.Reader, func()) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return r, func() {}
	}
	progress := pb.New64(size)
	progress.Set(pb.Bytes, true)
	return progress.Start().NewProxyReader(r), func() { progress.Finish() }
}

// openImage opens a test image and reports its size.
func openImage(path string) (*os.File, int64, error) {
	image, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, sessionError(KindNotFound, "no such image: '%s'", path)
		}
		return nil, 0, err
	}
	stat, err := image.Stat()
	if err != nil {
		image.Close()
		return nil, 0, err
	}
	if stat.IsDir() {
		image.Close()
		return nil, 0, sessionError(KindNotFound, "'%s' is a directory, not an image", path)
	}
	return image, stat.Size(), nil
}
