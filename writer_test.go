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
	"bytes"
	"context"
	"testing"

	testutil "github.com/ZaparooProject/go-tt2/internal/testing"
	"github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writtenData(tag *testutil.VirtualTag) [][]byte {
	var data [][]byte
	for _, op := range tag.Ops() {
		if op.Kind == testutil.OpWrite {
			data = append(data, op.Data)
		}
	}
	return data
}

func TestWrite_EmptyMessage(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	require.NoError(t, Write(context.Background(), tag, nil))

	// 19 byte image: blocks 3 and 4, block 4 zero padded
	assert.Equal(t, []uint8{3, 4}, tag.Blocks(testutil.OpWrite))
	assert.Equal(t, [][]byte{
		{0xE1, 0x10, 0x06, 0x00},
		{0x03, 0x00, 0xFE, 0x00},
	}, writtenData(tag))
}

func TestWrite_PadsFinalBlock(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	require.NoError(t, Write(context.Background(), tag, []byte{0xAA, 0xBB}))

	assert.Equal(t, []uint8{3, 4, 5}, tag.Blocks(testutil.OpWrite))
	data := writtenData(tag)
	assert.Equal(t, []byte{0x03, 0x02, 0xAA, 0xBB}, data[1])
	assert.Equal(t, []byte{0xFE, 0x00, 0x00, 0x00}, data[2])
}

func TestWrite_NeverTouchesUIDBlocks(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 10, 45, 46, 120} {
		tag := testutil.NewVirtualUltralightC(nil)
		require.NoError(t, Write(context.Background(), tag, bytes.Repeat([]byte{0x11}, n)), "n=%d", n)

		blocks := tag.Blocks(testutil.OpWrite)
		require.NotEmpty(t, blocks)
		assert.Equal(t, uint8(3), blocks[0], "n=%d", n)
		for i := 1; i < len(blocks); i++ {
			assert.Equal(t, blocks[i-1]+1, blocks[i], "n=%d: blocks must be consecutive", n)
		}
		assert.Len(t, blocks, blocksFor(len(Compose(bytes.Repeat([]byte{0x11}, n))))-CCBlock, "n=%d", n)
	}
}

func TestWrite_LargestImage(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralightC(nil)
	payload := bytes.Repeat([]byte{0x42}, 168)
	require.Len(t, Compose(payload), UltralightCCapacity)

	require.NoError(t, Write(context.Background(), tag, payload))
	blocks := tag.Blocks(testutil.OpWrite)
	assert.Len(t, blocks, 45)
	assert.Equal(t, uint8(47), blocks[len(blocks)-1])
}

func TestWrite_CapacityExceeded(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralightC(nil)
	err := Write(context.Background(), tag, bytes.Repeat([]byte{0x42}, 169))

	require.ErrorIs(t, err, ErrImageTooLarge)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 193, capErr.ImageLen)
	assert.Equal(t, UltralightCCapacity, capErr.Limit)
	assert.Equal(t, StatusImageTooLarge, StatusCode(err))
	assert.False(t, IsRetryable(err))
	assert.Empty(t, tag.Ops(), "no device I/O before the capacity check")
}

func TestWrite_FailureAborts(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	tag.FailWrite(5, NewDeviceError("write", 5, 0x14))

	err := Write(context.Background(), tag, bytes.Repeat([]byte{0x01}, 20))
	require.ErrorIs(t, err, ErrTagWriteFailed)
	assert.Equal(t, 0x14, StatusCode(err))
	assert.Contains(t, err.Error(), "block 5")
	assert.Equal(t, []uint8{3, 4, 5}, tag.Blocks(testutil.OpWrite))

	// blocks written before the failure stay written
	assert.Equal(t, []byte{0x03, 20}, tag.Memory()[16:18])
}

func TestWrite_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tag := testutil.NewVirtualUltralight(nil)
	err := Write(ctx, tag, []byte{0x01})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, ErrTagWriteFailed)
	assert.Empty(t, tag.Ops())
}

func TestWrite_ReadBack(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 44, 45, 46, 90, 136} {
		payload := bytes.Repeat([]byte{byte(n)}, n)
		tag := testutil.NewVirtualUltralightC(nil)

		require.NoError(t, Write(context.Background(), tag, payload), "n=%d", n)
		got, err := ReadNDEF(context.Background(), tag)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, payload, got, "n=%d", n)
	}
}

func TestWriteMessage(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	msg := ndef.NewTextMessage("zaparoo", "en")
	require.NoError(t, WriteMessage(context.Background(), tag, msg))

	got, err := ReadMessage(context.Background(), tag)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "T", got.Records[0].Type())
}

func TestWriteMessage_Nil(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	err := WriteMessage(context.Background(), tag, nil)
	require.ErrorIs(t, err, ErrInvalidNDEF)
	assert.Empty(t, tag.Ops())
}

//nolint:paralleltest // captures the package session log
func TestWrite_LogsCapacityWarning(t *testing.T) {
	var buf bytes.Buffer
	SetSessionLogWriter(&buf)
	defer SetSessionLogWriter(nil)

	tag := testutil.NewVirtualUltralightC(nil)
	require.NoError(t, Write(context.Background(), tag, bytes.Repeat([]byte{0x01}, 46)))

	assert.Contains(t, buf.String(), "larger than 64 bytes, writing as Ultralight C")
}
