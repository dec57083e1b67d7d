package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBoard scripts a target for session tests. Statuses are returned in
// order, repeating the last one once the script runs out.
type fakeBoard struct {
	pingErr   error
	uploadErr error
	runErr    error
	statuses  []BoardStatus
	statusIdx int
	statusErr error
	log       []byte
	logErr    error

	uploaded   bytes.Buffer
	runStarted bool
	resets     int
	closed     bool
}

func (f *fakeBoard) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeBoard) UploadImage(ctx context.Context, image io.Reader, size int64) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	_, err := io.Copy(&f.uploaded, image)
	return err
}

func (f *fakeBoard) StartRun(ctx context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	f.runStarted = true
	return nil
}

func (f *fakeBoard) QueryStatus(ctx context.Context) (BoardStatus, error) {
	if f.statusErr != nil {
		return BoardStatus{}, f.statusErr
	}
	if len(f.statuses) == 0 {
		return BoardStatus{State: stateRunning, Progress: -1}, nil
	}
	status := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	return status, nil
}

func (f *fakeBoard) FetchLog(ctx context.Context) ([]byte, error) {
	return f.log, f.logErr
}

func (f *fakeBoard) Reset(ctx context.Context) error {
	f.resets++
	return nil
}

func (f *fakeBoard) Close() error {
	f.closed = true
	return nil
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.iso")
	require.NoError(t, os.WriteFile(path, []byte("bootable bits"), 0644))
	return path
}

// fastSession returns a session with a short deadline and rapid polling so
// that the timeout paths finish quickly.
func fastSession(timeout time.Duration) *Session {
	session := NewSession(timeout)
	session.PollInterval = 10 * time.Millisecond
	return session
}

func Test_sessionCompletes(t *testing.T) {
	var log []byte
	log = append(log, suiteStartFrame(2, "core")...)
	log = append(log, passFrame(1, 10)...)
	log = append(log, passFrame(2, 20)...)
	log = append(log, suiteEndFrame(2, 2, 0)...)
	log = append(log, reportSentinel...)

	board := &fakeBoard{
		statuses: []BoardStatus{
			{State: stateUploading, Progress: 40},
			{State: stateBooting, Progress: -1},
			{State: stateCompleted, Progress: -1},
		},
		log: log,
	}

	session := fastSession(time.Second)
	err := session.Execute(context.Background(), board, writeTestImage(t))
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, session.State())
	assert.True(t, session.Success())
	assert.True(t, board.runStarted)
	assert.Equal(t, "bootable bits", board.uploaded.String())
	assert.Equal(t, log, session.Log())

	report := session.Report()
	require.NotNil(t, report)
	assert.Equal(t, "core", report.SuiteName)
	assert.Equal(t, 2, report.Passed)
	assert.True(t, report.Complete)
}

func Test_sessionCompletesWithFailingTests(t *testing.T) {
	var log []byte
	log = append(log, suiteStartFrame(2, "core")...)
	log = append(log, passFrame(1, 10)...)
	log = append(log, failFrame(2, "assert x==y")...)
	log = append(log, suiteEndFrame(2, 1, 1)...)

	board := &fakeBoard{
		statuses: []BoardStatus{{State: stateCompleted, Progress: -1}},
		log:      log,
	}

	session := fastSession(time.Second)
	err := session.Execute(context.Background(), board, writeTestImage(t))
	require.NoError(t, err)

	// The run completed, but a failing test still fails the session.
	assert.Equal(t, StateCompleted, session.State())
	assert.False(t, session.Success())
	assert.Equal(t, 1, session.Report().Failed)
}

func Test_sessionTimesOut(t *testing.T) {
	board := &fakeBoard{
		statuses: []BoardStatus{{State: stateBooting, Progress: -1}},
		log:      []byte("still booting"),
	}

	session := fastSession(120 * time.Millisecond)
	err := session.Execute(context.Background(), board, writeTestImage(t))
	require.Error(t, err)

	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, kind)
	assert.Equal(t, StateTimedOut, session.State())
	assert.False(t, session.Success())

	// The log is still fetched on the timeout path.
	assert.Equal(t, []byte("still booting"), session.Log())
}

func Test_sessionToleratesFailedPolls(t *testing.T) {
	// The target drops off the control channel while it reboots. Polling
	// must ride that out until the deadline instead of failing the run.
	board := &fakeBoard{statusErr: io.ErrUnexpectedEOF}

	session := fastSession(100 * time.Millisecond)
	err := session.Execute(context.Background(), board, writeTestImage(t))
	require.Error(t, err)

	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, kind)
}

func Test_sessionFailsOnErrorStatus(t *testing.T) {
	board := &fakeBoard{
		statuses: []BoardStatus{
			{State: stateRunning, Progress: -1},
			{State: stateError, Progress: -1, Message: "kernel panic"},
		},
		log: []byte("panic at 0xdeadbeef"),
	}

	session := fastSession(time.Second)
	err := session.Execute(context.Background(), board, writeTestImage(t))
	require.Error(t, err)

	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTargetFailure, kind)
	assert.Equal(t, StateFailed, session.State())
	assert.Contains(t, err.Error(), "kernel panic")

	// Whatever the target logged before dying is kept for inspection.
	assert.Equal(t, []byte("panic at 0xdeadbeef"), session.Log())
}

func Test_sessionFailsOnPing(t *testing.T) {
	board := &fakeBoard{pingErr: sessionError(KindConnection, "no route")}

	session := fastSession(time.Second)
	err := session.Execute(context.Background(), board, writeTestImage(t))
	require.Error(t, err)

	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindConnection, kind)
	assert.Equal(t, StateFailed, session.State())
	assert.Zero(t, board.uploaded.Len())
	assert.False(t, board.runStarted)
}

func Test_sessionFailsOnMissingImage(t *testing.T) {
	board := &fakeBoard{}

	session := fastSession(time.Second)
	err := session.Execute(context.Background(), board, filepath.Join(t.TempDir(), "nope.iso"))
	require.Error(t, err)

	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
	assert.Equal(t, StateFailed, session.State())
}

func Test_sessionStreamCompletes(t *testing.T) {
	var stream []byte
	stream = append(stream, "SYSTEM BOOT\r\n"...)
	stream = append(stream, suiteStartFrame(1, "boot")...)
	stream = append(stream, passFrame(1, 5)...)
	stream = append(stream, suiteEndFrame(1, 1, 0)...)
	stream = append(stream, reportSentinel...)

	session := fastSession(2 * time.Second)
	err := session.ExecuteStream(context.Background(), bytes.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, session.State())
	assert.True(t, session.Success())
	assert.Equal(t, stream, session.Log())
	assert.True(t, session.Report().Complete)
	assert.Equal(t, "boot", session.Report().SuiteName)
}

func Test_sessionStreamTimesOut(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	_, err := pw.Write([]byte("BOOT OK\r\nRUNNING TESTS\r\n"))
	require.NoError(t, err)

	session := fastSession(150 * time.Millisecond)
	err = session.ExecuteStream(context.Background(), pr)
	require.Error(t, err)

	kind, ok := ErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, kind)
	assert.Equal(t, StateTimedOut, session.State())

	// The partial capture survives the timeout.
	assert.Equal(t, []byte("BOOT OK\r\nRUNNING TESTS\r\n"), session.Log())
}

func Test_sessionStreamCanceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	session := fastSession(5 * time.Second)
	err := session.ExecuteStream(ctx, pr)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, session.State())
}

func Test_sessionWritesArtifactsAfterFailure(t *testing.T) {
	board := &fakeBoard{pingErr: sessionError(KindConnection, "no route")}

	session := fastSession(time.Second)
	require.Error(t, session.Execute(context.Background(), board, writeTestImage(t)))

	dir := t.TempDir()
	logPath := filepath.Join(dir, "uart.log")
	reportPath := filepath.Join(dir, "report.json")
	require.NoError(t, session.WriteArtifacts(logPath, reportPath))

	log, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Empty(t, log)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var result SessionResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, session.ID, result.RunID)
	assert.Equal(t, "failed", result.State)
	assert.False(t, result.Success)
	require.NotNil(t, result.Report)
	assert.Empty(t, result.Report.Records)
}

func Test_sessionWritesArtifacts(t *testing.T) {
	var log []byte
	log = append(log, suiteStartFrame(1, "smoke")...)
	log = append(log, passFrame(1, 3)...)
	log = append(log, suiteEndFrame(1, 1, 0)...)

	board := &fakeBoard{
		statuses: []BoardStatus{{State: stateCompleted, Progress: -1}},
		log:      log,
	}

	session := fastSession(time.Second)
	require.NoError(t, session.Execute(context.Background(), board, writeTestImage(t)))

	dir := t.TempDir()
	logPath := filepath.Join(dir, "uart.log")
	reportPath := filepath.Join(dir, "report.json")
	require.NoError(t, session.WriteArtifacts(logPath, reportPath))

	written, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, log, written)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var result SessionResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "completed", result.State)
	assert.True(t, result.Success)
	assert.Equal(t, "smoke", result.Report.SuiteName)
}
