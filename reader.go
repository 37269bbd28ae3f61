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
	"context"
	"fmt"
	"strings"

	"github.com/hsanjuan/go-ndef"
)

// maxReadBlock is the highest block a READ can start at: page addresses are
// one byte and a READ covers four pages.
const maxReadBlock = 0xFF - 3

// ReadResult is the memory assembled by Read.
type ReadResult struct {
	// Image is the raw memory, blocks 0 onwards, 16 bytes per read.
	Image []byte
	// Writable holds the user-writable part of the reads, see WritableWidth.
	Writable []byte
	// CC is the capability container decoded from block 3.
	CC CapabilityContainer
	// Reads is the number of reads issued after the block 0 read.
	Reads int
}

// NDEF returns the NDEF message held in the image.
func (r *ReadResult) NDEF() ([]byte, error) {
	return DecodeImage(r.Image)
}

// WritableText returns the writable region decoded as UTF-8. Invalid
// sequences are replaced with U+FFFD.
func (r *ReadResult) WritableText() string {
	return strings.ToValidUTF8(string(r.Writable), "�")
}

// Read assembles the tag memory declared by the capability container.
// Block 0 is read first; CC2 then determines how many further 16 byte reads
// follow, starting at block 4. Reads are issued one at a time and the first
// failure aborts the sequence with no partial result.
func Read(ctx context.Context, dev Device) (*ReadResult, error) {
	first, err := dev.ReadBlock(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("%w (block 0): %w", ErrTagReadFailed, err)
	}
	if len(first) < ReadSize {
		return nil, fmt.Errorf("%w: block 0 returned %d bytes", ErrInvalidBlockData, len(first))
	}
	Debugf("TT2 pages 0-3: %X", first[:ReadSize])

	cc, err := DecodeCC(first)
	if err != nil {
		return nil, err
	}

	reads := readsFor(cc.DataSize())
	if last := DataStartBlock + (reads-1)*4; reads > 0 && last > maxReadBlock {
		return nil, fmt.Errorf("%w: %s needs reads up to block %d", ErrDataAreaTooLarge, cc, last)
	}

	result := &ReadResult{
		Image: make([]byte, 0, ReadSize*(reads+1)),
		CC:    cc,
	}
	result.Image = append(result.Image, first[:ReadSize]...)

	for i := range reads {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTagReadFailed, err)
		}

		block := DataStartBlock + i*4
		data, err := dev.ReadBlock(ctx, uint8(block))
		if err != nil {
			return nil, fmt.Errorf("%w (block %d): %w", ErrTagReadFailed, block, err)
		}
		if len(data) < ReadSize {
			return nil, fmt.Errorf("%w: block %d returned %d bytes", ErrInvalidBlockData, block, len(data))
		}
		data = data[:ReadSize]
		result.Reads++

		Debugf("TT2 pages %d-%d: %X", block, block+3, data)
		result.Image = append(result.Image, data...)
		result.Writable = append(result.Writable, writablePart(block, data)...)

		if block == WritableCutoffBlock {
			Debugf("TT2 writable data length: %d", len(result.Writable))
			Debugf("TT2 writable data: %s", result.WritableText())
		}
	}

	Debugf("TT2 read complete: %d bytes in %d reads", len(result.Image), result.Reads+1)
	return result, nil
}

// ReadNDEF reads the tag and returns the NDEF message bytes.
func ReadNDEF(ctx context.Context, dev Device) ([]byte, error) {
	result, err := Read(ctx, dev)
	if err != nil {
		return nil, err
	}
	return result.NDEF()
}

// ReadMessage reads the tag and parses the NDEF message.
func ReadMessage(ctx context.Context, dev Device) (*ndef.Message, error) {
	raw, err := ReadNDEF(ctx, dev)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNoNDEF
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNDEF, err)
	}
	return msg, nil
}
