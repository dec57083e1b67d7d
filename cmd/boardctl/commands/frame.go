// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Commands understood by the target's control channel.
const (
	cmdPing   byte = 0x01
	cmdUpload byte = 0x02
	cmdRun    byte = 0x03
	cmdStatus byte = 0x04
	cmdGetLog byte = 0x05
	cmdReset  byte = 0x06
)

// Responses sent back by the target.
const (
	rspOK     byte = 0x10
	rspError  byte = 0x11
	rspBusy   byte = 0x12
	rspData   byte = 0x13
	rspStatus byte = 0x14
)

// Status codes carried in the first payload byte of a status response.
const (
	statusIdle      byte = 0x00
	statusUploading byte = 0x01
	statusFlashing  byte = 0x02
	statusBooting   byte = 0x03
	statusRunning   byte = 0x04
	statusCompleted byte = 0x05
	statusError     byte = 0xFF
)

var statusNames = map[byte]string{
	statusIdle:      stateIdle,
	statusUploading: stateUploading,
	statusFlashing:  stateFlashing,
	statusBooting:   stateBooting,
	statusRunning:   stateRunning,
	statusCompleted: stateCompleted,
	statusError:     stateError,
}

// statusName maps a status code to its name. Codes introduced by newer
// firmware than this tool map to "unknown" instead of failing the session.
func statusName(code byte) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return stateUnknown
}

// uploadChunkSize bounds the raw chunks of an image upload. The target
// acknowledges every chunk with a single status byte before the next one
// may be sent.
const uploadChunkSize = 65536

// maxFramePayload rejects implausible frame lengths before allocating.
const maxFramePayload = 16 << 20

// errNoResponse means the target sent nothing at all within the channel's
// read timeout. Distinct from a truncated frame, which is a protocol
// violation.
var errNoResponse = errors.New("no response from target")

// encodeFrame builds a control frame: code, 32-bit little-endian payload
// length, payload.
func encodeFrame(code byte, payload []byte) []byte {
	frame := make([]byte, 0, 5+len(payload))
	frame = append(frame, code)
	frame = appendUint32Le(frame, uint32(len(payload)))
	return append(frame, payload...)
}

// decodeFrame reads exactly one control frame from r. The control channel
// has no resynchronization, so a short read anywhere inside a frame is
// fatal for the command that expected it.
func decodeFrame(r io.Reader) (byte, []byte, error) {
	var head [1]byte
	n, err := r.Read(head[:])
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errNoResponse
		}
		return 0, nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("truncated frame header: %w", err)
	}
	length := binary.LittleEndian.Uint32(header)
	if length > maxFramePayload {
		return 0, nil, fmt.Errorf("implausible frame length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("truncated frame payload, wanted %d bytes: %w", length, err)
	}
	return head[0], payload, nil
}

func appendUint32Le(data []byte, value uint32) []byte {
	data = append(data, byte(value&0xff))
	data = append(data, byte(value>>8))
	data = append(data, byte(value>>16))
	data = append(data, byte(value>>24))
	return data
}
