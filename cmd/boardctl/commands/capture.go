// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// capture drains a live byte stream into a buffer and watches for the
// end-of-report sentinel. A single goroutine appends, consumers take
// snapshots through Bytes, and Done is closed exactly once no matter how
// often the sentinel bytes show up again later in the stream.
type capture struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	detected bool

	done    chan struct{}
	stopped chan struct{}
}

func newCapture() *capture {
	return &capture{
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start reads r byte by byte until the stream ends. End of stream means no
// more data will arrive, it is not an error.
func (c *capture) Start(r io.Reader) {
	go func() {
		defer close(c.stopped)
		reader := bufio.NewReader(r)
		for {
			b, err := reader.ReadByte()
			if err != nil {
				return
			}
			c.append(b)
		}
	}()
}

func (c *capture) append(b byte) {
	c.mu.Lock()
	c.buf.WriteByte(b)
	fire := false
	if !c.detected && endsWithSentinel(c.buf.Bytes()) {
		c.detected = true
		fire = true
	}
	c.mu.Unlock()
	if fire {
		close(c.done)
	}
}

// Done is closed the moment the trailing bytes of the capture first equal
// the sentinel.
func (c *capture) Done() <-chan struct{} {
	return c.done
}

// Stopped is closed when the underlying stream has ended.
func (c *capture) Stopped() <-chan struct{} {
	return c.stopped
}

// Bytes returns a copy of everything captured so far.
func (c *capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]byte, c.buf.Len())
	copy(res, c.buf.Bytes())
	return res
}

// SentinelSeen reports whether the sentinel has been detected.
func (c *capture) SentinelSeen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detected
}
