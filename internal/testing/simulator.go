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

package testing

import (
	"bytes"
	"context"
	"errors"

	"github.com/ZaparooProject/go-tt2/internal/syncutil"
)

const (
	tfiHostToPN532 = 0xD4
	tfiPN532ToHost = 0xD5

	statusNotAcceptable = 0x27 // no target selected / wrong mode
)

var (
	ackFrame   = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	nackFrame  = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
	errorFrame = []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00}

	errIncompleteFrame = errors.New("incomplete frame")
	errBadFrame        = errors.New("bad frame")
)

// VirtualPN532 simulates a PN532 at the wire protocol level with one Type 2
// tag in its field. It implements io.ReadWriter so transports can be tested
// end to end: frames written by the host are checked and acknowledged, and
// responses are queued for reading.
//
// In target mode the simulator plays the external reader: commands from
// InitiatorScript are handed out by TgGetInitiatorCommand and the answers
// sent with TgResponseToInitiator are collected in TargetResponses.
type VirtualPN532 struct {
	tag             *VirtualTag
	lastResponse    []byte
	targetParams    []byte
	initiatorScript [][]byte
	targetResponses [][]byte
	commands        []byte
	rxBuffer        bytes.Buffer
	txBuffer        bytes.Buffer
	mu              syncutil.Mutex
	selected        bool
	samConfigured   bool
	injectChecksum  bool
	dropNextACK     bool
}

// NewVirtualPN532 creates a new wire-level PN532 simulator with an empty field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{}
}

// Write implements io.Writer - receives data from the host controller.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read implements io.Reader - returns response data to the host controller.
// It returns 0, nil when nothing is pending, like a serial read timeout.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// HasPendingResponse returns true if response data is waiting to be read.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// SetTag places a tag in the field, or removes it when tag is nil.
func (v *VirtualPN532) SetTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.selected = false
}

// SetInitiatorScript sets the commands the simulated external reader sends
// while the PN532 acts as a target.
func (v *VirtualPN532) SetInitiatorScript(commands ...[]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initiatorScript = commands
}

// TargetResponses returns the answers sent to the simulated external reader.
func (v *VirtualPN532) TargetResponses() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([][]byte(nil), v.targetResponses...)
}

// TargetParams returns the parameters of the last TgInitAsTarget.
func (v *VirtualPN532) TargetParams() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.targetParams...)
}

// Commands returns the command codes received, in order.
func (v *VirtualPN532) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// SAMConfigured reports whether SAMConfiguration was received.
func (v *VirtualPN532) SAMConfigured() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.samConfigured
}

// InjectChecksumError causes the next response to have an invalid checksum.
// The host is expected to NACK it, which makes the simulator resend the
// response intact.
func (v *VirtualPN532) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectChecksum = true
}

// DropNextACK causes the simulator to not send ACK for the next command.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

func (v *VirtualPN532) processReceivedData() {
	for {
		data := v.rxBuffer.Bytes()

		if bytes.HasPrefix(data, ackFrame) {
			v.rxBuffer.Next(len(ackFrame))
			continue
		}
		if bytes.HasPrefix(data, nackFrame) {
			v.rxBuffer.Next(len(nackFrame))
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
			continue
		}

		start := bytes.Index(data, []byte{0x00, 0xFF})
		if start < 0 {
			// Wake-up bytes and preamble only; keep a trailing 0x00 that may
			// begin a start code.
			if n := len(data); n > 0 && data[n-1] == 0x00 {
				v.rxBuffer.Next(n - 1)
			} else {
				v.rxBuffer.Reset()
			}
			return
		}
		// ACK/NACK start with a preamble byte; step back to keep it.
		if start > 0 && data[start-1] == 0x00 && (bytes.HasPrefix(data[start-1:], ackFrame) ||
			bytes.HasPrefix(data[start-1:], nackFrame)) {
			v.rxBuffer.Next(start - 1)
			continue
		}
		v.rxBuffer.Next(start)

		body, consumed, err := parseHostFrame(v.rxBuffer.Bytes())
		if errors.Is(err, errIncompleteFrame) {
			return
		}
		if err != nil {
			v.rxBuffer.Next(2)
			continue
		}
		v.rxBuffer.Next(consumed)
		v.processCommand(body)
	}
}

// parseHostFrame decodes a host frame starting at the 00 FF start code and
// returns the command code plus parameters.
func parseHostFrame(data []byte) (body []byte, consumed int, err error) {
	if len(data) < 4 {
		return nil, 0, errIncompleteFrame
	}
	n := int(data[2])
	if byte(n)+data[3] != 0 || n < 2 {
		return nil, 0, errBadFrame
	}
	end := 4 + n + 1
	if len(data) < end {
		return nil, 0, errIncompleteFrame
	}

	sum := byte(0)
	for _, b := range data[4:end] {
		sum += b
	}
	if sum != 0 || data[4] != tfiHostToPN532 {
		return nil, 0, errBadFrame
	}

	consumed = end
	if len(data) > end && data[end] == 0x00 {
		consumed++
	}
	return append([]byte(nil), data[5:4+n]...), consumed, nil
}

func (v *VirtualPN532) processCommand(body []byte) {
	if !v.dropNextACK {
		v.txBuffer.Write(ackFrame)
	}
	v.dropNextACK = false

	cmd, params := body[0], body[1:]
	v.commands = append(v.commands, cmd)

	var response []byte
	switch cmd {
	case CmdGetFirmwareVersion:
		response = []byte{0x32, 0x01, 0x06, 0x07}
	case CmdSAMConfiguration:
		v.samConfigured = len(params) > 0 && params[0] == 0x01
	case CmdInListPassiveTarget:
		response = v.handleInListPassiveTarget()
	case CmdInDataExchange:
		response = v.handleInDataExchange(params)
	case CmdInRelease:
		v.selected = false
		response = []byte{0x00}
	case CmdTgInitAsTarget:
		v.targetParams = append([]byte(nil), params...)
		response = []byte{0x04} // 106 kbps, PICC emulation
	case CmdTgGetInitiatorCommand:
		response = v.handleTgGetInitiatorCommand()
	case CmdTgResponseToInitiator:
		v.targetResponses = append(v.targetResponses, append([]byte(nil), params...))
		response = []byte{0x00}
	default:
		v.lastResponse = errorFrame
		v.txBuffer.Write(errorFrame)
		return
	}

	v.sendResponse(cmd, response)
}

func (v *VirtualPN532) handleInListPassiveTarget() []byte {
	if v.tag == nil || !v.tag.Present {
		return []byte{0x00}
	}
	v.selected = true
	uid := v.tag.UID
	response := []byte{0x01, 0x01, 0x00, 0x44, 0x00, byte(len(uid))}
	return append(response, uid...)
}

func (v *VirtualPN532) handleInDataExchange(params []byte) []byte {
	if len(params) < 2 || !v.selected || v.tag == nil || params[0] != 0x01 {
		return []byte{statusNotAcceptable}
	}

	switch tagCmd := params[1:]; tagCmd[0] {
	case TagCmdRead:
		if len(tagCmd) < 2 {
			return []byte{statusNotAcceptable}
		}
		data, err := v.tag.ReadBlock(context.Background(), tagCmd[1])
		if err != nil {
			return []byte{statusFor(err)}
		}
		return append([]byte{0x00}, data...)
	case TagCmdWrite:
		if len(tagCmd) < 6 {
			return []byte{statusNotAcceptable}
		}
		if err := v.tag.WriteBlock(context.Background(), tagCmd[1], tagCmd[2:6]); err != nil {
			return []byte{statusFor(err)}
		}
		return []byte{0x00}
	default:
		return []byte{statusNotAcceptable}
	}
}

func (v *VirtualPN532) handleTgGetInitiatorCommand() []byte {
	if len(v.initiatorScript) == 0 {
		return []byte{StatusReleased}
	}
	next := v.initiatorScript[0]
	v.initiatorScript = v.initiatorScript[1:]
	return append([]byte{0x00}, next...)
}

// statusFor maps a VirtualTag error to the PN532 status byte.
func statusFor(err error) byte {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusTimeout
}

// sendResponse builds and queues a response frame. The response code is
// the command code + 1.
func (v *VirtualPN532) sendResponse(cmd byte, data []byte) {
	body := make([]byte, 0, 2+len(data))
	body = append(body, tfiPN532ToHost, cmd+1)
	body = append(body, data...)

	frm := buildResponseFrame(body)
	v.lastResponse = append([]byte(nil), frm...)

	if v.injectChecksum {
		v.injectChecksum = false
		frm[len(frm)-2] ^= 0xFF
	}
	v.txBuffer.Write(frm)
}

func buildResponseFrame(body []byte) []byte {
	n := len(body)
	sum := byte(0)
	for _, b := range body {
		sum += b
	}

	frm := make([]byte, 0, n+7)
	frm = append(frm, 0x00, 0x00, 0xFF, byte(n), byte(-n))
	frm = append(frm, body...)
	return append(frm, -sum, 0x00)
}
