// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the fatal failures of a test session so callers and
// CI wrappers can react without parsing message strings.
type ErrorKind int

const (
	// KindNotFound means a required file or device does not exist.
	KindNotFound ErrorKind = iota
	// KindConnection means the target could not be reached at all.
	KindConnection
	// KindProtocol means the target sent a malformed or unexpected
	// response on its control channel.
	KindProtocol
	// KindTransfer means an image upload was aborted mid-way.
	KindTransfer
	// KindTimeout means the run produced no terminal outcome in time.
	KindTimeout
	// KindTargetFailure means the target itself reported an error state
	// or failing tests.
	KindTargetFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindTransfer:
		return "transfer"
	case KindTimeout:
		return "timeout"
	case KindTargetFailure:
		return "target failure"
	default:
		return "unknown"
	}
}

// SessionError is the error type of everything that can go fatally wrong
// during a run. Transfer errors carry the 1-based index of the chunk that
// failed.
type SessionError struct {
	Kind  ErrorKind
	Chunk int
	Err   error
}

func (e *SessionError) Error() string {
	if e.Kind == KindTransfer && e.Chunk > 0 {
		return fmt.Sprintf("%s: chunk %d: %v", e.Kind, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func sessionError(kind ErrorKind, format string, args ...interface{}) *SessionError {
	return &SessionError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func transferError(chunk int, format string, args ...interface{}) *SessionError {
	return &SessionError{Kind: KindTransfer, Chunk: chunk, Err: fmt.Errorf(format, args...)}
}

// ErrorKindOf extracts the kind of a session error anywhere in err's chain.
func ErrorKindOf(err error) (ErrorKind, bool) {
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr.Kind, true
	}
	return 0, false
}

// IsTimeoutError reports whether err is a session timeout.
func IsTimeoutError(err error) bool {
	kind, ok := ErrorKindOf(err)
	return ok && kind == KindTimeout
}
