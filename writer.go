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

	"github.com/hsanjuan/go-ndef"
)

// Write composes the image for an NDEF message and writes it block by block,
// starting at the capability container (block 3). Blocks 0-2 hold the UID
// and are left alone.
//
// Images above 64 bytes are written as Ultralight C with a warning; images
// above 192 bytes fail with a *CapacityError before any block is written.
// The first failed write aborts the sequence. Blocks already written stay
// written.
func Write(ctx context.Context, dev Device, ndef []byte) error {
	image := Compose(ndef)
	blocks := blocksFor(len(image))

	if blocks > UltralightCapacity/BlockSize {
		Debugf("TT2 warning: image length %d is larger than %d bytes, writing as Ultralight C",
			len(image), UltralightCapacity)
		if blocks > UltralightCCapacity/BlockSize {
			Debugf("TT2 error: image length %d is larger than %d bytes", len(image), UltralightCCapacity)
			return &CapacityError{ImageLen: len(image), Limit: UltralightCCapacity}
		}
	}

	for block := CCBlock; block < blocks; block++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrTagWriteFailed, err)
		}

		data := blockData(image, block)
		if err := dev.WriteBlock(ctx, uint8(block), data); err != nil {
			return fmt.Errorf("%w (block %d): %w", ErrTagWriteFailed, block, err)
		}
		Debugf("TT2 wrote block %d: %X", block, data)
	}

	return nil
}

// blockData returns the 4 bytes of image for block, zero padded when the
// image ends inside the block.
func blockData(image []byte, block int) []byte {
	data := make([]byte, BlockSize)
	start := block * BlockSize
	if start < len(image) {
		copy(data, image[start:min(start+BlockSize, len(image))])
	}
	return data
}

// WriteMessage marshals msg and writes it to the tag.
func WriteMessage(ctx context.Context, dev Device, msg *ndef.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidNDEF)
	}
	raw, err := marshalNDEF(msg)
	if err != nil {
		return err
	}
	return Write(ctx, dev, raw)
}
