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

package tt2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// TLV block types found in the data area
const (
	TLVTypeNull          = 0x00 // padding, no length field
	TLVTypeLockControl   = 0x01 // dynamic lock bit placement
	TLVTypeMemoryControl = 0x02 // reserved memory areas
	TLVTypeNDEF          = 0x03 // NDEF message
	TLVTypeProprietary   = 0xFD
	TLVTypeTerminator    = 0xFE // end of data area, no length field

	tlvLongLength = 0xFF // 1-byte length marker for the 3-byte form
)

// lockControlValue describes the Ultralight C dynamic lock bits:
// page address 0x0A, byte offset 0 (byte address 160), 16 lock bits,
// 2^4 = 16 bytes locked per bit.
var lockControlValue = [3]byte{0xA0, 0x10, 0x44}

// TLV errors
var (
	ErrTLVDataTooShort  = errors.New("TLV data too short")
	ErrTLVInvalidLength = errors.New("TLV invalid length format")
	ErrTLVNDEFNotFound  = errors.New("NDEF TLV not found")
)

// NDEFLocation is the position of the NDEF message inside a TLV area.
type NDEFLocation struct {
	// Offset of the first NDEF byte (after the TLV header)
	Offset int
	// Length of the NDEF message in bytes
	Length int
	// HeaderSize is 2 for the 1-byte length form, 4 for the 3-byte form
	HeaderSize int
}

// AppendNDEFTLV appends an NDEF Message TLV using the 1-byte length form.
// Messages of 255 bytes or more cannot be represented and are truncated in
// the length field; callers bound the payload first.
func AppendNDEFTLV(dst, ndef []byte) []byte {
	dst = append(dst, TLVTypeNDEF, byte(len(ndef)))
	return append(dst, ndef...)
}

// AppendLockControlTLV appends the fixed Ultralight C Lock Control TLV.
func AppendLockControlTLV(dst []byte) []byte {
	dst = append(dst, TLVTypeLockControl, byte(len(lockControlValue)))
	return append(dst, lockControlValue[:]...)
}

// AppendTerminatorTLV appends the terminator byte.
func AppendTerminatorTLV(dst []byte) []byte {
	return append(dst, TLVTypeTerminator)
}

// ScanForNDEFTLV walks a TLV area until it finds the NDEF Message TLV.
// NULL, Lock Control, Memory Control and proprietary TLVs are skipped.
func ScanForNDEFTLV(data []byte) (*NDEFLocation, error) {
	if len(data) < 2 {
		return nil, ErrTLVDataTooShort
	}

	offset := 0
	for offset < len(data) {
		switch tlvType := data[offset]; tlvType {
		case TLVTypeNull:
			offset++
		case TLVTypeTerminator:
			return nil, ErrTLVNDEFNotFound
		case TLVTypeNDEF:
			return readTLVHeader(data, offset)
		default:
			loc, err := readTLVHeader(data, offset)
			if err != nil {
				return nil, err
			}
			offset = loc.Offset + loc.Length
		}
	}

	return nil, ErrTLVNDEFNotFound
}

// readTLVHeader decodes the length field of the TLV starting at offset.
func readTLVHeader(data []byte, offset int) (*NDEFLocation, error) {
	if offset+1 >= len(data) {
		return nil, ErrTLVDataTooShort
	}

	if data[offset+1] != tlvLongLength {
		return &NDEFLocation{
			Offset:     offset + 2,
			Length:     int(data[offset+1]),
			HeaderSize: 2,
		}, nil
	}

	if offset+3 >= len(data) {
		return nil, fmt.Errorf("%w: incomplete long length at offset %d", ErrTLVInvalidLength, offset)
	}
	return &NDEFLocation{
		Offset:     offset + 4,
		Length:     int(binary.BigEndian.Uint16(data[offset+2 : offset+4])),
		HeaderSize: 4,
	}, nil
}

// ExtractNDEFFromTLV returns the NDEF message carried in a TLV area.
func ExtractNDEFFromTLV(data []byte) ([]byte, error) {
	loc, err := ScanForNDEFTLV(data)
	if err != nil {
		return nil, err
	}

	if loc.Offset+loc.Length > len(data) {
		return nil, fmt.Errorf("%w: NDEF length %d exceeds data size %d",
			ErrTLVInvalidLength, loc.Length, len(data)-loc.Offset)
	}

	return data[loc.Offset : loc.Offset+loc.Length], nil
}

// DecodeImage returns the NDEF message held in a full tag image, i.e. the
// output of Compose or the Image of a ReadResult.
func DecodeImage(image []byte) ([]byte, error) {
	if len(image) < HeaderSize {
		return nil, fmt.Errorf("%w: image is %d bytes", ErrTLVDataTooShort, len(image))
	}
	ndef, err := ExtractNDEFFromTLV(image[HeaderSize:])
	if err != nil {
		if errors.Is(err, ErrTLVNDEFNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNoNDEF, err)
		}
		return nil, err
	}
	return ndef, nil
}

// TLVDebugInfo describes each TLV in a data area, one per line.
func TLVDebugInfo(data []byte) string {
	if len(data) == 0 {
		return "empty data"
	}

	var sb strings.Builder
	offset := 0
	for offset < len(data) {
		tlvType := data[offset]
		switch tlvType {
		case TLVTypeNull:
			_, _ = fmt.Fprintf(&sb, "[%d] NULL\n", offset)
			offset++
			continue
		case TLVTypeTerminator:
			_, _ = fmt.Fprintf(&sb, "[%d] TERMINATOR\n", offset)
			return sb.String()
		}

		name := tlvName(tlvType)
		loc, err := readTLVHeader(data, offset)
		if err != nil {
			_, _ = fmt.Fprintf(&sb, "[%d] %s (parse error: %v)\n", offset, name, err)
			return sb.String()
		}
		_, _ = fmt.Fprintf(&sb, "[%d] %s len=%d\n", offset, name, loc.Length)
		offset = loc.Offset + loc.Length
	}

	return sb.String()
}

func tlvName(tlvType byte) string {
	switch tlvType {
	case TLVTypeLockControl:
		return "LOCK_CONTROL"
	case TLVTypeMemoryControl:
		return "MEMORY_CONTROL"
	case TLVTypeNDEF:
		return "NDEF"
	default:
		return fmt.Sprintf("PROPRIETARY(0x%02X)", tlvType)
	}
}
