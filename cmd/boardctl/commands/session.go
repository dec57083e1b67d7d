// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SessionState tracks the lifecycle of one run.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateUploading
	StateRunning
	StateWaitingCompletion
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateUploading:
		return "uploading"
	case StateRunning:
		return "running"
	case StateWaitingCompletion:
		return "waiting-completion"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

const statusPollInterval = time.Second

// Session drives one end-to-end run and owns everything observed along
// the way: the raw UART capture, the decoded report, and the terminal
// state. A session is not safe for concurrent use.
type Session struct {
	ID           string
	Timeout      time.Duration
	PollInterval time.Duration

	state   SessionState
	started time.Time
	log     []byte
	report  *TestReport
}

func NewSession(timeout time.Duration) *Session {
	return &Session{
		ID:           uuid.New().String(),
		Timeout:      timeout,
		PollInterval: statusPollInterval,
		state:        StateIdle,
		report:       &TestReport{Records: []TestRecord{}},
	}
}

// Execute runs the full lifecycle against a board: ping, upload, run, then
// poll until the target reports a terminal status or the deadline passes.
// The UART log is fetched and decoded on every terminal path, so a timed
// out or failed run still yields whatever results made it out.
func (s *Session) Execute(ctx context.Context, board Board, imagePath string) error {
	image, size, err := openImage(imagePath)
	if err != nil {
		return s.fail(err)
	}
	defer image.Close()

	s.started = time.Now()

	s.state = StateConnecting
	fmt.Println("Pinging the target ...")
	if err := board.Ping(ctx); err != nil {
		return s.fail(err)
	}

	s.state = StateUploading
	fmt.Printf("Uploading '%s' (%d bytes) ...\n", filepath.Base(imagePath), size)
	if err := board.UploadImage(ctx, image, size); err != nil {
		return s.fail(err)
	}

	s.state = StateRunning
	fmt.Println("Starting the run ...")
	if err := board.StartRun(ctx); err != nil {
		return s.fail(err)
	}

	s.state = StateWaitingCompletion
	final, err := s.pollStatus(ctx, board)
	if err != nil {
		return s.fail(err)
	}

	if log, err := board.FetchLog(ctx); err != nil {
		fmt.Println("Failed to fetch the UART log:", err)
	} else {
		s.log = log
	}
	s.report = decodeReport(s.log)

	switch {
	case final == nil:
		s.state = StateTimedOut
		return sessionError(KindTimeout, "no terminal status within %s", s.Timeout)
	case final.State == stateError:
		s.state = StateFailed
		return sessionError(KindTargetFailure, "target reported an error: %s", final.Message)
	default:
		s.state = StateCompleted
		return nil
	}
}

// pollStatus queries the target until it reports a terminal state. A nil
// status means the deadline passed, which is an outcome, not an error.
// Individual failed polls are tolerated, the target drops off the network
// while it reboots into the test image.
func (s *Session) pollStatus(ctx context.Context, board Board) (*BoardStatus, error) {
	deadline := time.Now().Add(s.Timeout)
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	last := ""
	for {
		if status, err := board.QueryStatus(ctx); err == nil {
			if status.State != last {
				last = status.State
				if status.Message != "" {
					fmt.Printf("Target is %s: %s\n", status.State, status.Message)
				} else {
					fmt.Printf("Target is %s\n", status.State)
				}
			}
			if status.Terminal() {
				return &status, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ExecuteStream runs a session against a live byte stream instead of a
// polled board: the run is over when the end-of-report sentinel shows up
// in the stream, or the deadline passes. The stream ending early is not an
// outcome by itself, a crashed image simply never produces the sentinel.
func (s *Session) ExecuteStream(ctx context.Context, stream io.Reader) error {
	s.started = time.Now()
	s.state = StateWaitingCompletion

	c := newCapture()
	c.Start(stream)

	timer := time.NewTimer(s.Timeout)
	defer timer.Stop()

	timedOut := false
	select {
	case <-c.Done():
	case <-timer.C:
		timedOut = !c.SentinelSeen()
	case <-ctx.Done():
		s.log = c.Bytes()
		s.report = decodeReport(s.log)
		s.state = StateFailed
		return ctx.Err()
	}

	s.log = c.Bytes()
	s.report = decodeReport(s.log)
	if timedOut {
		s.state = StateTimedOut
		return sessionError(KindTimeout, "no end-of-report sentinel within %s", s.Timeout)
	}
	s.report.Complete = true
	s.state = StateCompleted
	return nil
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	return err
}

// Success reports the exit disposition: a completed run with no failed
// tests.
func (s *Session) Success() bool {
	return s.state == StateCompleted && s.report != nil && s.report.Failed == 0
}

func (s *Session) State() SessionState {
	return s.state
}

func (s *Session) Log() []byte {
	return s.log
}

func (s *Session) Report() *TestReport {
	return s.report
}

// SessionResult is the archived outcome of a run.
type SessionResult struct {
	RunID          string      `json:"run_id" yaml:"run_id"`
	State          string      `json:"state" yaml:"state"`
	Success        bool        `json:"success" yaml:"success"`
	ElapsedSeconds float64     `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Report         *TestReport `json:"report" yaml:"report"`
}

func (s *Session) Result() *SessionResult {
	elapsed := 0.0
	if !s.started.IsZero() {
		elapsed = time.Since(s.started).Seconds()
	}
	return &SessionResult{
		RunID:          s.ID,
		State:          s.state.String(),
		Success:        s.Success(),
		ElapsedSeconds: elapsed,
		Report:         s.report,
	}
}

// WriteArtifacts persists the raw log and the JSON result. Runs call this
// on every exit path, so a failed run still leaves its partial capture
// behind for inspection.
func (s *Session) WriteArtifacts(logPath string, reportPath string) error {
	if err := os.WriteFile(logPath, s.log, 0644); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.Result(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(reportPath, append(data, '\n'), 0644)
}
