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

// Command bytes understood by the simulators
const (
	CmdGetFirmwareVersion    = 0x02
	CmdSAMConfiguration      = 0x14
	CmdInDataExchange        = 0x40
	CmdInListPassiveTarget   = 0x4A
	CmdInRelease             = 0x52
	CmdTgGetInitiatorCommand = 0x88
	CmdTgInitAsTarget        = 0x8C
	CmdTgResponseToInitiator = 0x90
)

// Type 2 tag commands carried in InDataExchange and target mode
const (
	TagCmdRead  = 0x30
	TagCmdWrite = 0xA2
	TagCmdHalt  = 0x50
)

// StatusReleased is the PN532 status for a target released by the initiator.
const StatusReleased = 0x29

// Common UIDs for testing
var (
	// TestUltralightUID is a sample MIFARE Ultralight UID (NXP)
	TestUltralightUID = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}

	// TestUltralightCUID is a sample MIFARE Ultralight C UID (NXP)
	TestUltralightCUID = []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

	// TestForeignUID is a sample UID from a non-NXP manufacturer
	TestForeignUID = []byte{0x02, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}
)

// The builders below return response data as a transport hands it to the
// device: the response code followed by its payload, TFI already removed.

// BuildFirmwareVersionResponse creates a GetFirmwareVersion response for a
// PN532 v1.6.
func BuildFirmwareVersionResponse() []byte {
	return []byte{CmdGetFirmwareVersion + 1, 0x32, 0x01, 0x06, 0x07}
}

// BuildSAMConfigurationResponse creates a SAMConfiguration response
func BuildSAMConfigurationResponse() []byte {
	return []byte{CmdSAMConfiguration + 1}
}

// BuildTagDetectionResponse creates an InListPassiveTarget response for an
// Ultralight family tag (ATQA 0x0044, SAK 0x00).
func BuildTagDetectionResponse(uid []byte) []byte {
	response := make([]byte, 0, 7+len(uid))
	response = append(response, CmdInListPassiveTarget+1, 0x01, 0x01, 0x00, 0x44, 0x00, byte(len(uid)))
	return append(response, uid...)
}

// BuildNoTagResponse creates an empty InListPassiveTarget response
func BuildNoTagResponse() []byte {
	return []byte{CmdInListPassiveTarget + 1, 0x00}
}

// BuildDataExchangeResponse creates a successful InDataExchange response
func BuildDataExchangeResponse(data []byte) []byte {
	response := make([]byte, 0, 2+len(data))
	response = append(response, CmdInDataExchange+1, 0x00)
	return append(response, data...)
}

// BuildStatusResponse creates a response carrying only a status byte
func BuildStatusResponse(cmd, status byte) []byte {
	return []byte{cmd + 1, status}
}

// BuildInitiatorCommandResponse creates a TgGetInitiatorCommand response
// carrying a command from the external reader.
func BuildInitiatorCommandResponse(command []byte) []byte {
	response := make([]byte, 0, 2+len(command))
	response = append(response, CmdTgGetInitiatorCommand+1, 0x00)
	return append(response, command...)
}

// BuildErrorFrameResponse is the syntax error frame as a transport reports it.
func BuildErrorFrameResponse() []byte {
	return []byte{0x7F}
}
