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

import "fmt"

// Tag memory geometry per NFC Forum Type 2 Tag specification
const (
	BlockSize  = 4  // bytes per block (page)
	ReadSize   = 16 // bytes returned by a single READ (4 pages)
	HeaderSize = 16 // blocks 0-3: UID, internal, lock bytes and CC

	// CCBlock is the block holding the capability container. Writes start here;
	// blocks 0-2 carry UID and factory bytes that are never rewritten.
	CCBlock = 3
	// DataStartBlock is the first block of the data area.
	DataStartBlock = 4

	ccOffset = CCBlock * BlockSize // image offset of CC0
)

// Capability container constants
const (
	CCMagic   = 0xE1 // CC0: NDEF magic number
	CCVersion = 0x10 // CC1: mapping version 1.0
	CCAccess  = 0x00 // CC3: read/write access granted

	ccUnit = 8 // CC2 counts the data area in units of 8 bytes
)

// OTP size classes. CC bytes are one-time-programmable on the Ultralight
// family, so composed images commit to the largest size of the chosen class.
const (
	ultralightDataSize  = 48  // MF0ICU1 data area
	ultralightCDataSize = 144 // MF0ICU2 data area

	// UltralightCapacity is the physical image limit of a MIFARE Ultralight.
	UltralightCapacity = 64
	// UltralightCCapacity is the physical image limit of a MIFARE Ultralight C.
	UltralightCCapacity = 192

	ndefTLVOverhead = 2 // type + 1-byte length
	terminatorSize  = 1
)

// SizeClass is the OTP size class a composed image is written for.
type SizeClass int

const (
	// SizeClassUltralight declares a 48 byte data area (CC2 = 6).
	SizeClassUltralight SizeClass = iota
	// SizeClassUltralightC declares a 144 byte data area (CC2 = 18) and
	// carries a Lock Control TLV.
	SizeClassUltralightC
)

// SelectSizeClass picks the size class for an NDEF payload of the given length.
// The large class is chosen as soon as the composed image would not fit in
// the 64 bytes of a plain Ultralight.
func SelectSizeClass(payloadLen int) SizeClass {
	if HeaderSize+ndefTLVOverhead+terminatorSize+payloadLen > UltralightCapacity {
		return SizeClassUltralightC
	}
	return SizeClassUltralight
}

// CCSize returns the CC2 byte for the class.
func (c SizeClass) CCSize() byte {
	if c == SizeClassUltralightC {
		return ultralightCDataSize / ccUnit
	}
	return ultralightDataSize / ccUnit
}

// Capacity returns the physical image limit in bytes.
func (c SizeClass) Capacity() int {
	if c == SizeClassUltralightC {
		return UltralightCCapacity
	}
	return UltralightCapacity
}

// NeedsLockControl reports whether images of this class carry a Lock Control TLV.
func (c SizeClass) NeedsLockControl() bool {
	return c == SizeClassUltralightC
}

func (c SizeClass) String() string {
	switch c {
	case SizeClassUltralight:
		return "Ultralight"
	case SizeClassUltralightC:
		return "Ultralight C"
	default:
		return fmt.Sprintf("SizeClass(%d)", int(c))
	}
}

// CapabilityContainer is the 4 byte structure stored in block 3.
type CapabilityContainer struct {
	Magic   byte // CC0
	Version byte // CC1
	Size    byte // CC2, data area size / 8
	Access  byte // CC3
}

// NewCapabilityContainer returns the CC written for the given size class.
func NewCapabilityContainer(class SizeClass) CapabilityContainer {
	return CapabilityContainer{
		Magic:   CCMagic,
		Version: CCVersion,
		Size:    class.CCSize(),
		Access:  CCAccess,
	}
}

// DataSize returns the data area size in bytes declared by CC2.
func (cc CapabilityContainer) DataSize() int {
	return int(cc.Size) * ccUnit
}

// IsNDEFFormatted reports whether CC0 carries the NDEF magic number.
func (cc CapabilityContainer) IsNDEFFormatted() bool {
	return cc.Magic == CCMagic
}

func (cc CapabilityContainer) String() string {
	return fmt.Sprintf("CC[%02X %02X %02X %02X] data=%d bytes",
		cc.Magic, cc.Version, cc.Size, cc.Access, cc.DataSize())
}

// EncodeCC returns the wire form of the capability container.
func EncodeCC(cc CapabilityContainer) [4]byte {
	return [4]byte{cc.Magic, cc.Version, cc.Size, cc.Access}
}

// DecodeCC extracts the capability container from the first 16 bytes of
// tag memory (blocks 0-3).
func DecodeCC(header []byte) (CapabilityContainer, error) {
	if len(header) < HeaderSize {
		return CapabilityContainer{}, fmt.Errorf("%w: header is %d bytes, need %d",
			ErrInvalidBlockData, len(header), HeaderSize)
	}
	return CapabilityContainer{
		Magic:   header[ccOffset],
		Version: header[ccOffset+1],
		Size:    header[ccOffset+2],
		Access:  header[ccOffset+3],
	}, nil
}

// blocksFor returns the number of 4 byte blocks needed to hold n bytes.
func blocksFor(n int) int {
	return (n + BlockSize - 1) / BlockSize
}

// readsFor returns the number of 16 byte reads needed to cover n bytes.
func readsFor(n int) int {
	return (n + ReadSize - 1) / ReadSize
}
