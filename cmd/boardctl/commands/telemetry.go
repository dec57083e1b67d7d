// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Telemetry frames emitted by the test image over its UART. Each frame is
// a code, a 16-bit big-endian payload length, and the payload, embedded in
// whatever else the image prints while booting.
const (
	telemetrySuiteStart byte = 100
	telemetryTestStart  byte = 101
	telemetryTestPass   byte = 102
	telemetryTestFail   byte = 103
	telemetryTestSkip   byte = 104
	telemetrySuiteEnd   byte = 105
)

// reportSentinel marks the end of the test report in the UART stream. It
// is matched against the trailing bytes of the capture, independent of
// telemetry framing.
var reportSentinel = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE}

const (
	testStatusPass = "pass"
	testStatusFail = "fail"
	testStatusSkip = "skip"
)

// TestRecord is the outcome of a single test.
type TestRecord struct {
	Number     uint16 `json:"number" yaml:"number"`
	Status     string `json:"status" yaml:"status"`
	DurationMS uint32 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (r TestRecord) Short() string {
	switch r.Status {
	case testStatusPass:
		return fmt.Sprintf("test %d: pass (%d ms)", r.Number, r.DurationMS)
	case testStatusFail:
		return fmt.Sprintf("test %d: fail - %s", r.Number, r.Message)
	default:
		return fmt.Sprintf("test %d: skip - %s", r.Number, r.Message)
	}
}

// TestReport is the decoded result of one run.
type TestReport struct {
	SuiteName     string       `json:"suite_name" yaml:"suite_name"`
	ExpectedTotal uint16       `json:"expected_total" yaml:"expected_total"`
	Records       []TestRecord `json:"tests" yaml:"tests"`
	Passed        int          `json:"passed" yaml:"passed"`
	Failed        int          `json:"failed" yaml:"failed"`
	Skipped       int          `json:"skipped" yaml:"skipped"`
	// Complete is set once the suite-end frame has been decoded. A report
	// without it came from a run that was cut short.
	Complete bool `json:"complete" yaml:"complete"`
	// TallyMismatch is set when the suite-end totals disagree with the
	// individually observed records. The totals win, since a record frame
	// may have been lost in transit, but the disagreement is worth
	// surfacing.
	TallyMismatch bool `json:"tally_mismatch,omitempty" yaml:"tally_mismatch,omitempty"`
}

func (r *TestReport) Elements() []Short {
	res := make([]Short, 0, len(r.Records)+1)
	for _, record := range r.Records {
		res = append(res, record)
	}
	return append(res, reportSummary{r})
}

type reportSummary struct {
	report *TestReport
}

func (s reportSummary) Short() string {
	name := s.report.SuiteName
	if name == "" {
		name = "unnamed"
	}
	return fmt.Sprintf("suite '%s': %d passed, %d failed, %d skipped (%d expected)",
		name, s.report.Passed, s.report.Failed, s.report.Skipped, s.report.ExpectedTotal)
}

// printReport writes the decoded report to the console.
func printReport(report *TestReport) {
	if report == nil {
		return
	}
	fmt.Println()
	for _, element := range report.Elements() {
		fmt.Println(element.Short())
	}
	if !report.Complete {
		fmt.Println("Warning: the report is incomplete, the run did not finish cleanly")
	}
	if report.TallyMismatch {
		fmt.Println("Warning: the final tallies disagree with the observed test records")
	}
}

// telemetryDecoder extracts telemetry frames from an append-only byte
// stream. A byte that does not start a valid frame is skipped, one byte at
// a time, so the decoder locks back onto the stream after boot banners and
// console noise. A frame that extends past the available bytes stays
// pending until more data arrives.
type telemetryDecoder struct {
	report TestReport
	buf    []byte
	pos    int

	// onFrame, when set, observes every decoded frame in order.
	onFrame func(code byte, payload []byte)
}

func newTelemetryDecoder() *telemetryDecoder {
	return &telemetryDecoder{
		report: TestReport{Records: []TestRecord{}},
	}
}

// Feed appends data and decodes as many complete frames as possible.
func (d *telemetryDecoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
	for d.pos < len(d.buf) {
		code := d.buf[d.pos]
		if code < telemetrySuiteStart || code > telemetrySuiteEnd {
			d.pos++
			continue
		}
		if d.pos+3 > len(d.buf) {
			return
		}
		length := int(binary.BigEndian.Uint16(d.buf[d.pos+1 : d.pos+3]))
		if d.pos+3+length > len(d.buf) {
			return
		}
		payload := d.buf[d.pos+3 : d.pos+3+length]
		d.pos += 3 + length
		d.apply(code, payload)
		if d.onFrame != nil {
			d.onFrame(code, payload)
		}
	}
}

// Report returns the report decoded so far.
func (d *telemetryDecoder) Report() *TestReport {
	return &d.report
}

func (d *telemetryDecoder) apply(code byte, payload []byte) {
	switch code {
	case telemetrySuiteStart:
		d.report.ExpectedTotal = beUint16(payload, 0)
		d.report.SuiteName = tailString(payload, 2)
	case telemetryTestStart:
		// Progress only. The counts change when a result frame arrives.
	case telemetryTestPass:
		d.report.Records = append(d.report.Records, TestRecord{
			Number:     beUint16(payload, 0),
			Status:     testStatusPass,
			DurationMS: beUint32(payload, 2),
		})
		d.report.Passed++
	case telemetryTestFail:
		d.report.Records = append(d.report.Records, TestRecord{
			Number:  beUint16(payload, 0),
			Status:  testStatusFail,
			Message: tailString(payload, 2),
		})
		d.report.Failed++
	case telemetryTestSkip:
		d.report.Records = append(d.report.Records, TestRecord{
			Number:  beUint16(payload, 0),
			Status:  testStatusSkip,
			Message: tailString(payload, 2),
		})
		d.report.Skipped++
	case telemetrySuiteEnd:
		if len(payload) >= 6 {
			passed := int(beUint16(payload, 2))
			failed := int(beUint16(payload, 4))
			if passed != d.report.Passed || failed != d.report.Failed {
				d.report.TallyMismatch = true
			}
			d.report.ExpectedTotal = beUint16(payload, 0)
			d.report.Passed = passed
			d.report.Failed = failed
		}
		d.report.Complete = true
	}
}

// decodeReport runs the telemetry decoder over a complete capture.
func decodeReport(buf []byte) *TestReport {
	decoder := newTelemetryDecoder()
	decoder.Feed(buf)
	return decoder.Report()
}

// endsWithSentinel reports whether the trailing bytes of buf are the
// end-of-report sentinel.
func endsWithSentinel(buf []byte) bool {
	if len(buf) < len(reportSentinel) {
		return false
	}
	return bytes.Equal(buf[len(buf)-len(reportSentinel):], reportSentinel)
}

// formatTelemetry renders one telemetry frame as a console line.
func formatTelemetry(code byte, payload []byte) string {
	switch code {
	case telemetrySuiteStart:
		return fmt.Sprintf("suite '%s' started, %d tests expected", tailString(payload, 2), beUint16(payload, 0))
	case telemetryTestStart:
		return fmt.Sprintf("test %d started: %s", beUint16(payload, 0), tailString(payload, 2))
	case telemetryTestPass:
		return fmt.Sprintf("test %d passed (%d ms)", beUint16(payload, 0), beUint32(payload, 2))
	case telemetryTestFail:
		return fmt.Sprintf("test %d failed: %s", beUint16(payload, 0), tailString(payload, 2))
	case telemetryTestSkip:
		return fmt.Sprintf("test %d skipped: %s", beUint16(payload, 0), tailString(payload, 2))
	case telemetrySuiteEnd:
		return fmt.Sprintf("suite ended: %d total, %d passed, %d failed",
			beUint16(payload, 0), beUint16(payload, 2), beUint16(payload, 4))
	}
	return ""
}

// beUint16 reads a big-endian uint16 at off. Missing bytes read as zero,
// short telemetry payloads are tolerated rather than fatal.
func beUint16(payload []byte, off int) uint16 {
	if off+2 > len(payload) {
		return 0
	}
	return binary.BigEndian.Uint16(payload[off : off+2])
}

func beUint32(payload []byte, off int) uint32 {
	if off+4 > len(payload) {
		return 0
	}
	return binary.BigEndian.Uint32(payload[off : off+4])
}

func tailString(payload []byte, off int) string {
	if off >= len(payload) {
		return ""
	}
	return string(payload[off:])
}
