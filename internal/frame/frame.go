// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import (
	"bytes"
	"errors"
	"fmt"

	tt2 "github.com/ZaparooProject/go-tt2"
)

var (
	// ErrIncomplete means the buffer does not yet hold a whole frame.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrDataTooLarge means the command does not fit a normal frame.
	ErrDataTooLarge = errors.New("frame data too large")
)

// Build returns the normal information frame carrying cmd and args from the
// host: 00 00 FF LEN LCS D4 cmd args DCS 00.
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args)
	if dataLen > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, dataLen)
	}

	frm := make([]byte, 0, Overhead+dataLen)
	frm = append(frm, Preamble, StartCode1, StartCode2, byte(dataLen), Checksum([]byte{byte(dataLen)}))
	start := len(frm)
	frm = append(frm, HostToPn532, cmd)
	frm = append(frm, args...)
	frm = append(frm, Checksum(frm[start:]), Postamble)
	return frm, nil
}

// IsAck reports whether buf starts with an ACK frame.
func IsAck(buf []byte) bool {
	return bytes.HasPrefix(buf, AckFrame)
}

// IsNack reports whether buf starts with a NACK frame.
func IsNack(buf []byte) bool {
	return bytes.HasPrefix(buf, NackFrame)
}

// FindAck returns the offset just past the first ACK frame in buf, or -1.
func FindAck(buf []byte) int {
	idx := bytes.Index(buf, AckFrame)
	if idx < 0 {
		return -1
	}
	return idx + len(AckFrame)
}

// Parse decodes the first response frame in buf. It returns the frame data
// after the TFI and the number of bytes consumed. An error frame is returned
// as []byte{0x7F} or []byte{0x7F, code} so callers can map the status.
//
// ErrIncomplete is returned while the frame is still arriving; checksum and
// direction failures are returned as retryable transport errors.
func Parse(buf []byte) (data []byte, consumed int, err error) {
	off := bytes.Index(buf, []byte{StartCode1, StartCode2})
	if off < 0 {
		return nil, 0, ErrIncomplete
	}
	off += 2

	if off+2 > len(buf) {
		return nil, 0, ErrIncomplete
	}
	frameLen := int(buf[off])
	if buf[off]+buf[off+1] != 0 {
		return nil, off + 2, tt2.NewFrameCorruptedError("parse length", "")
	}
	if frameLen == 0 {
		return nil, off + 2, tt2.NewFrameCorruptedError("parse empty frame", "")
	}

	body := off + 2
	end := body + frameLen + 1 // DCS
	if end > len(buf) {
		return nil, 0, ErrIncomplete
	}
	if Sum(buf[body:end]) != 0 {
		return nil, end, tt2.NewFrameCorruptedError("parse checksum", "")
	}

	consumed = end
	if consumed < len(buf) && buf[consumed] == Postamble {
		consumed++
	}

	switch tfi := buf[body]; tfi {
	case Pn532ToHost:
		data = make([]byte, frameLen-1)
		copy(data, buf[body+1:body+frameLen])
		return data, consumed, nil
	case ErrorTFI:
		// The syntax error frame carries no code: 00 00 FF 01 FF 7F 81 00
		if frameLen == 1 {
			return []byte{ErrorTFI}, consumed, nil
		}
		return []byte{ErrorTFI, buf[body+1]}, consumed, nil
	default:
		return nil, consumed, tt2.NewFrameCorruptedError(fmt.Sprintf("parse TFI 0x%02X", tfi), "")
	}
}
