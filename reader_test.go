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
	"time"

	testutil "github.com/ZaparooProject/go-tt2/internal/testing"
	"github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockFunc adapts a read function to Device for edge cases the virtual tag
// cannot produce.
type blockFunc func(ctx context.Context, block uint8) ([]byte, error)

func (f blockFunc) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	return f(ctx, block)
}

func (blockFunc) WriteBlock(context.Context, uint8, []byte) error {
	return ErrTagWriteFailed
}

func (blockFunc) EmulateTag(context.Context, []byte, time.Duration) error {
	return ErrEmulationUnsupported
}

// loadImage places a composed image on a virtual tag, keeping its UID pages.
func loadImage(tag *testutil.VirtualTag, image []byte) {
	tag.SetMemory(ccOffset, image[ccOffset:])
}

func TestRead_UltralightIssuesThreeReads(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	loadImage(tag, Compose([]byte{0xD0, 0x00, 0x00}))

	result, err := Read(context.Background(), tag)
	require.NoError(t, err)

	assert.Equal(t, []uint8{0, 4, 8, 12}, tag.Blocks(testutil.OpRead))
	assert.Equal(t, 3, result.Reads)
	assert.Len(t, result.Image, 64)
	assert.Len(t, result.Writable, 16+16+4)
	assert.Equal(t, byte(6), result.CC.Size)
	assert.Equal(t, tag.Memory(), result.Image)
}

func TestRead_UnformattedTag(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)

	result, err := Read(context.Background(), tag)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0}, tag.Blocks(testutil.OpRead))
	assert.Equal(t, 0, result.Reads)
	assert.Len(t, result.Image, 16)
	assert.Empty(t, result.Writable)

	_, err = result.NDEF()
	require.ErrorIs(t, err, ErrTLVDataTooShort)
}

func TestRead_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 30, 45, 46, 100, 136} {
		payload := bytes.Repeat([]byte{0x5A}, n)
		tag := testutil.NewVirtualUltralightC(nil)
		loadImage(tag, Compose(payload))

		got, err := ReadNDEF(context.Background(), tag)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, payload, got, "n=%d", n)
	}
}

func TestRead_FailurePropagation(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralightC(nil)
	loadImage(tag, Compose(bytes.Repeat([]byte{0x01}, 100)))
	tag.FailRead(8, NewDeviceError("read", 8, 0x27))

	result, err := Read(context.Background(), tag)
	require.Error(t, err)
	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrTagReadFailed)
	assert.Equal(t, 0x27, StatusCode(err))
	assert.Contains(t, err.Error(), "block 8")
	assert.Equal(t, []uint8{0, 4, 8}, tag.Blocks(testutil.OpRead))
}

func TestRead_FirstBlockFailure(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	tag.FailRead(0, NewDeviceError("read", 0, 0x01))

	_, err := Read(context.Background(), tag)
	require.ErrorIs(t, err, ErrTagReadFailed)
	assert.Equal(t, 0x01, StatusCode(err))
}

func TestRead_ShortBlock(t *testing.T) {
	t.Parallel()

	dev := blockFunc(func(context.Context, uint8) ([]byte, error) {
		return make([]byte, 8), nil
	})
	_, err := Read(context.Background(), dev)
	require.ErrorIs(t, err, ErrInvalidBlockData)
}

func TestRead_DataAreaTooLarge(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualType2("Type2", nil, 256)
	tag.SetMemory(ccOffset, []byte{0xE1, 0x10, 0x7F, 0x00})

	_, err := Read(context.Background(), tag)
	require.ErrorIs(t, err, ErrDataAreaTooLarge)
	assert.Equal(t, []uint8{0}, tag.Blocks(testutil.OpRead), "no reads after block 0")
}

func TestRead_LargestAddressableArea(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualType2("Type2", nil, 256)
	tag.SetMemory(ccOffset, []byte{0xE1, 0x10, 0x7E, 0x00})

	result, err := Read(context.Background(), tag)
	require.NoError(t, err)
	assert.Equal(t, 63, result.Reads)

	blocks := tag.Blocks(testutil.OpRead)
	assert.Equal(t, uint8(252), blocks[len(blocks)-1])
	// 4, 8 full, 12 partial, 32-124 full, 128 partial
	assert.Len(t, result.Writable, 16+16+4+24*16+8)
}

func TestRead_ContextCancelledBetweenBlocks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tag := testutil.NewVirtualUltralight(nil)
	loadImage(tag, Compose(nil))

	dev := blockFunc(func(ctx context.Context, block uint8) ([]byte, error) {
		data, err := tag.ReadBlock(ctx, block)
		if block == 4 {
			cancel()
		}
		return data, err
	})

	_, err := Read(ctx, dev)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, ErrTagReadFailed)
	assert.Equal(t, []uint8{0, 4}, tag.Blocks(testutil.OpRead))
}

func TestReadResult_WritableText(t *testing.T) {
	t.Parallel()

	r := &ReadResult{Writable: []byte{'h', 'i', 0xFF, '!'}}
	assert.Equal(t, "hi�!", r.WritableText())
}

func TestReadMessage(t *testing.T) {
	t.Parallel()

	msg := ndef.NewTextMessage("hello tag", "en")
	raw, err := msg.Marshal()
	require.NoError(t, err)

	tag := testutil.NewVirtualUltralight(nil)
	loadImage(tag, Compose(raw))

	got, err := ReadMessage(context.Background(), tag)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "T", got.Records[0].Type())
}

func TestReadMessage_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	empty := testutil.NewVirtualUltralight(nil)
	loadImage(empty, Compose(nil))
	_, err := ReadMessage(context.Background(), empty)
	require.ErrorIs(t, err, ErrNoNDEF)

	garbage := testutil.NewVirtualUltralight(nil)
	loadImage(garbage, Compose([]byte{0xFF}))
	_, err = ReadMessage(context.Background(), garbage)
	require.ErrorIs(t, err, ErrInvalidNDEF)
}

func TestRead_LogsWritableRegionAtCutoff(t *testing.T) {
	var buf bytes.Buffer
	SetSessionLogWriter(&buf)
	t.Cleanup(func() { SetSessionLogWriter(nil) })

	tag := testutil.NewVirtualType2("Type2", nil, 256)
	tag.SetMemory(ccOffset, []byte{0xE1, 0x10, 0x44, 0x00}) // 68 * 8 = 544 bytes, reads up to block 136
	tag.SetMemory(16, []byte("hello"))

	_, err := Read(context.Background(), tag)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "TT2 writable data length: 428")
	assert.Contains(t, out, "TT2 writable data: hello")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("writable data length")))
}
