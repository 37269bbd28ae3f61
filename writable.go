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

// Writable region assembly. Reads start on 4-block boundaries, so each entry
// names the first block of a 16 byte read whose bytes belong to user memory.
const (
	// writableHeadBlock is the read at the end of the static area; only its
	// first block is user memory.
	writableHeadBlock = 12
	// writableTailBlock is the last tracked read; only its first two blocks
	// are user memory.
	writableTailBlock = 128
	// WritableCutoffBlock is the read at which the writable region is complete.
	WritableCutoffBlock = 132
)

// writableBlocks lists the reads that contribute to the writable region.
var writableBlocks = func() map[uint16]int {
	m := map[uint16]int{
		4:                 ReadSize,
		8:                 ReadSize,
		writableHeadBlock: 4,
	}
	for b := uint16(32); b < writableTailBlock; b += 4 {
		m[b] = ReadSize
	}
	m[writableTailBlock] = 8
	return m
}()

// WritableWidth returns how many leading bytes of the read starting at block
// belong to the writable region, or 0 if the read is not tracked.
func WritableWidth(block int) int {
	if block < 0 || block > 0xFFFF {
		return 0
	}
	return writableBlocks[uint16(block)]
}

// writablePart returns the slice of a read that belongs to the writable region.
func writablePart(block int, data []byte) []byte {
	width := WritableWidth(block)
	if width > len(data) {
		width = len(data)
	}
	return data[:width]
}
