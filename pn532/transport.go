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

// Package pn532 drives a PN532 NFC controller as a Type 2 tag block device.
//
// Device speaks the PN532 command set over any Transport (see the uart and
// i2c packages) and implements tt2.Device: page reads and writes go through
// InDataExchange, and tag emulation runs the controller in target mode,
// answering READ commands from the composed image.
package pn532

import (
	"context"
	"errors"
)

// PN532 commands
const (
	cmdGetFirmwareVersion    = 0x02
	cmdSAMConfiguration      = 0x14
	cmdInDataExchange        = 0x40
	cmdInListPassiveTarget   = 0x4A
	cmdInRelease             = 0x52
	cmdTgGetInitiatorCommand = 0x88
	cmdTgInitAsTarget        = 0x8C
	cmdTgResponseToInitiator = 0x90
)

// Type 2 tag commands
const (
	tagCmdRead  = 0x30
	tagCmdWrite = 0xA2
	tagCmdHalt  = 0x50
)

const (
	errorTFI = 0x7F // error frame as reported by a transport

	// statusReleased is reported in target mode once the initiator has
	// released or deselected us.
	statusReleased = 0x29

	samModeNormal = 0x01
	samTimeout    = 0x14 // 20 * 50ms
	samUseIRQ     = 0x01

	brTy106TypeA = 0x00
)

// Errors
var (
	ErrNoTarget           = errors.New("no target in field")
	ErrUnexpectedResponse = errors.New("unexpected PN532 response")
	ErrEmulationTimeout   = errors.New("emulation timed out")
)

// Transport exchanges one command with the PN532. The returned data starts
// with the response code (command + 1); an error frame is returned as
// []byte{0x7F} optionally followed by an error code.
type Transport interface {
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
}
