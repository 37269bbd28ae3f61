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
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-tt2/internal/syncutil"
)

// Page counts of the simulated chips
const (
	UltralightPages  = 16 // MF0ICU1, 64 bytes
	UltralightCPages = 48 // MF0ICU2, 192 bytes

	pageSize = 4
	readSize = 16
)

// OpKind identifies a recorded tag operation
type OpKind string

const (
	OpRead    OpKind = "read"
	OpWrite   OpKind = "write"
	OpEmulate OpKind = "emulate"
)

// Op is one operation seen by a VirtualTag.
type Op struct {
	Kind    OpKind
	Data    []byte
	Timeout time.Duration
	Block   uint8
}

// StatusError is returned by a VirtualTag when the simulated chip refuses a
// command. Status is the value a PN532 would report for it.
type StatusError struct {
	Op     OpKind
	Block  uint8
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("virtual tag %s block %d: status 0x%02X", e.Op, e.Block, e.Status)
}

// StatusTimeout is reported when the tag does not answer (NAK or no tag).
const StatusTimeout = 0x01

var errNotPresent = errors.New("tag not present")

// VirtualTag simulates a Type 2 tag of the MIFARE Ultralight family. It
// implements the block device used by the tt2 codec: 16 byte reads that
// roll over at the end of memory, and 4 byte writes with OTP semantics for
// the capability container.
type VirtualTag struct {
	failures   map[failKey]error
	Type       string
	UID        []byte
	memory     []byte
	ops        []Op
	emulateErr error
	mu         syncutil.Mutex
	Present    bool
}

type failKey struct {
	kind  OpKind
	block uint8
}

// NewVirtualUltralight creates a blank MIFARE Ultralight.
func NewVirtualUltralight(uid []byte) *VirtualTag {
	return NewVirtualType2("Ultralight", uid, UltralightPages)
}

// NewVirtualUltralightC creates a blank MIFARE Ultralight C.
func NewVirtualUltralightC(uid []byte) *VirtualTag {
	return NewVirtualType2("UltralightC", uid, UltralightCPages)
}

// NewVirtualType2 creates a blank Type 2 tag with the given number of pages.
// The UID is spread over pages 0-2 with its check bytes.
func NewVirtualType2(tagType string, uid []byte, pages int) *VirtualTag {
	if uid == nil {
		uid = TestUltralightUID
	}
	if pages < 4 {
		pages = 4
	}

	v := &VirtualTag{
		Type:     tagType,
		UID:      append([]byte(nil), uid...),
		memory:   make([]byte, pages*pageSize),
		failures: make(map[failKey]error),
		Present:  true,
	}
	v.initUIDPages()
	return v
}

// initUIDPages lays out a 7 byte UID as on the Ultralight: SN0-SN2, BCC0,
// SN3-SN6, BCC1.
func (v *VirtualTag) initUIDPages() {
	if len(v.UID) != 7 {
		copy(v.memory, v.UID)
		return
	}
	copy(v.memory[0:3], v.UID[0:3])
	v.memory[3] = 0x88 ^ v.UID[0] ^ v.UID[1] ^ v.UID[2]
	copy(v.memory[4:8], v.UID[3:7])
	v.memory[8] = v.UID[3] ^ v.UID[4] ^ v.UID[5] ^ v.UID[6]
}

// GetUIDString returns the UID as a hex string
func (v *VirtualTag) GetUIDString() string {
	return hex.EncodeToString(v.UID)
}

// Pages returns the number of pages of the simulated chip.
func (v *VirtualTag) Pages() int {
	return len(v.memory) / pageSize
}

// ReadBlock returns 16 bytes starting at block, rolling over to page 0 at
// the end of memory as the Ultralight does.
func (v *VirtualTag) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.ops = append(v.ops, Op{Kind: OpRead, Block: block})
	if err := v.checkLocked(OpRead, block); err != nil {
		return nil, err
	}
	return v.read16Locked(block), nil
}

// WriteBlock writes 4 bytes to block. Pages 0 and 1 are read-only, page 2
// carries lock bits and page 3 (the capability container) is one-time
// programmable: written bits are OR-ed into the page.
func (v *VirtualTag) WriteBlock(ctx context.Context, block uint8, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.ops = append(v.ops, Op{Kind: OpWrite, Block: block, Data: append([]byte(nil), data...)})
	if err := v.checkLocked(OpWrite, block); err != nil {
		return err
	}
	if len(data) != pageSize {
		return fmt.Errorf("data must be exactly %d bytes, got %d", pageSize, len(data))
	}
	if block < 2 {
		return &StatusError{Op: OpWrite, Block: block, Status: StatusTimeout}
	}

	off := int(block) * pageSize
	if block <= 3 {
		for i, b := range data {
			v.memory[off+i] |= b
		}
		return nil
	}
	copy(v.memory[off:off+pageSize], data)
	return nil
}

// EmulateTag records the image handed over for emulation.
func (v *VirtualTag) EmulateTag(ctx context.Context, image []byte, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.ops = append(v.ops, Op{Kind: OpEmulate, Data: append([]byte(nil), image...), Timeout: timeout})
	return v.emulateErr
}

// Read16 is ReadBlock without a context or operation log, for simulators.
func (v *VirtualTag) Read16(block uint8) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkLocked(OpRead, block); err != nil {
		return nil, err
	}
	return v.read16Locked(block), nil
}

func (v *VirtualTag) checkLocked(kind OpKind, block uint8) error {
	if !v.Present {
		return errNotPresent
	}
	if err, ok := v.failures[failKey{kind: kind, block: block}]; ok {
		return err
	}
	if int(block) >= v.Pages() {
		return &StatusError{Op: kind, Block: block, Status: StatusTimeout}
	}
	return nil
}

func (v *VirtualTag) read16Locked(block uint8) []byte {
	data := make([]byte, readSize)
	for i := range data {
		data[i] = v.memory[(int(block)*pageSize+i)%len(v.memory)]
	}
	return data
}

// FailRead makes reads of block return err.
func (v *VirtualTag) FailRead(block uint8, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[failKey{kind: OpRead, block: block}] = err
}

// FailWrite makes writes of block return err.
func (v *VirtualTag) FailWrite(block uint8, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[failKey{kind: OpWrite, block: block}] = err
}

// FailEmulate makes EmulateTag return err.
func (v *VirtualTag) FailEmulate(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emulateErr = err
}

// SetMemory copies data into tag memory at the given byte offset,
// bypassing write protection.
func (v *VirtualTag) SetMemory(offset int, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	copy(v.memory[offset:], data)
}

// Memory returns a copy of the whole tag memory.
func (v *VirtualTag) Memory() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.memory...)
}

// Ops returns a copy of the operation log.
func (v *VirtualTag) Ops() []Op {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Op(nil), v.ops...)
}

// Blocks returns the blocks addressed by operations of the given kind, in order.
func (v *VirtualTag) Blocks(kind OpKind) []uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()

	var blocks []uint8
	for _, op := range v.ops {
		if op.Kind == kind {
			blocks = append(blocks, op.Block)
		}
	}
	return blocks
}

// ResetOps clears the operation log.
func (v *VirtualTag) ResetOps() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ops = nil
}

// Remove sets the tag as not present
func (v *VirtualTag) Remove() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Present = false
}

// Insert sets the tag as present
func (v *VirtualTag) Insert() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Present = true
}
