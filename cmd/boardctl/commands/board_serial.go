// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const serialReadTimeout = 2 * time.Second

// boardSerial drives a target wired straight to this machine over a serial
// line. The protocol is strictly request/response, so a single lock
// serializes all commands on the wire.
type boardSerial struct {
	mu   sync.Mutex
	port serial.Port
	rw   io.ReadWriter
}

func openBoardSerial(device string, baud int) (*boardSerial, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, sessionError(KindNotFound, "the port '%s' was not found", device)
		}
		return nil, sessionError(KindConnection, "failed to open '%s': %w", device, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return &boardSerial{port: port, rw: serialPort{port}}, nil
}

// sendCommand performs one framed request/response round trip.
func (b *boardSerial) sendCommand(code byte, payload []byte) (byte, []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exchange(code, payload)
}

func (b *boardSerial) exchange(code byte, payload []byte) (byte, []byte, error) {
	if err := b.writeAll(encodeFrame(code, payload)); err != nil {
		return 0, nil, sessionError(KindConnection, "write failed: %w", err)
	}
	rsp, data, err := decodeFrame(b.rw)
	if errors.Is(err, errNoResponse) {
		return 0, nil, sessionError(KindConnection, "no response to command 0x%02x", code)
	}
	if err != nil {
		return 0, nil, sessionError(KindProtocol, "command 0x%02x: %w", code, err)
	}
	return rsp, data, nil
}

func (b *boardSerial) writeAll(data []byte) error {
	for len(data) > 0 {
		n, err := b.rw.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (b *boardSerial) Ping(ctx context.Context) error {
	rsp, _, err := b.sendCommand(cmdPing, nil)
	if err != nil {
		return err
	}
	if rsp != rspOK {
		return sessionError(KindProtocol, "unexpected ping response 0x%02x", rsp)
	}
	return nil
}

func (b *boardSerial) UploadImage(ctx context.Context, image io.Reader, size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rsp, _, err := b.exchange(cmdUpload, appendUint32Le(nil, uint32(size)))
	if err != nil {
		return err
	}
	if rsp == rspBusy {
		return sessionError(KindTransfer, "target is busy")
	}
	if rsp != rspOK {
		return sessionError(KindTransfer, "upload rejected with response 0x%02x", rsp)
	}
	return b.streamChunked(image, size)
}

// streamChunked sends the image as raw chunks. The target acknowledges
// every chunk with a single status byte, and anything but an OK aborts the
// transfer on the spot.
func (b *boardSerial) streamChunked(image io.Reader, size int64) error {
	reader, finish := progressReader(size, image)
	defer finish()

	chunk := make([]byte, uploadChunkSize)
	index := 0
	var sent int64
	for sent < size {
		index++
		n := uploadChunkSize
		if remaining := size - sent; remaining < int64(n) {
			n = int(remaining)
		}
		if _, err := io.ReadFull(reader, chunk[:n]); err != nil {
			return transferError(index, "failed to read the image: %w", err)
		}
		if err := b.writeAll(chunk[:n]); err != nil {
			return transferError(index, "write failed: %w", err)
		}

		var ack [1]byte
		if _, err := io.ReadFull(b.rw, ack[:]); err != nil {
			return transferError(index, "no acknowledgement: %w", err)
		}
		if ack[0] != rspOK {
			return transferError(index, "target rejected the chunk with status 0x%02x", ack[0])
		}
		sent += int64(n)
	}
	return nil
}

func (b *boardSerial) StartRun(ctx context.Context) error {
	rsp, _, err := b.sendCommand(cmdRun, nil)
	if err != nil {
		return err
	}
	if rsp != rspOK {
		return sessionError(KindProtocol, "run rejected with response 0x%02x", rsp)
	}
	return nil
}

func (b *boardSerial) QueryStatus(ctx context.Context) (BoardStatus, error) {
	rsp, payload, err := b.sendCommand(cmdStatus, nil)
	if err != nil {
		return BoardStatus{}, err
	}
	if rsp != rspStatus || len(payload) == 0 {
		return BoardStatus{}, sessionError(KindProtocol, "unexpected status response 0x%02x", rsp)
	}
	return BoardStatus{
		State:    statusName(payload[0]),
		Progress: -1,
		Message:  string(payload[1:]),
	}, nil
}

func (b *boardSerial) FetchLog(ctx context.Context) ([]byte, error) {
	rsp, payload, err := b.sendCommand(cmdGetLog, nil)
	if err != nil {
		return nil, err
	}
	if rsp != rspData {
		return nil, sessionError(KindProtocol, "unexpected log response 0x%02x", rsp)
	}
	return payload, nil
}

func (b *boardSerial) Reset(ctx context.Context) error {
	rsp, _, err := b.sendCommand(cmdReset, nil)
	if err != nil {
		return err
	}
	if rsp != rspOK {
		return sessionError(KindProtocol, "reset rejected with response 0x%02x", rsp)
	}
	return nil
}

func (b *boardSerial) Close() error {
	if b.port != nil {
		return b.port.Close()
	}
	return nil
}
