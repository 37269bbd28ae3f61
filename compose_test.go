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
	"testing"

	"github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_EmptyMessage(t *testing.T) {
	t.Parallel()

	image := Compose(nil)
	want := []byte{
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xE1, 0x10, 0x06, 0x00,
		0x03, 0x00, 0xFE,
	}
	assert.Equal(t, want, image)
}

func TestCompose_SmallClass(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0xAB}, 45)
	image := Compose(payload)

	require.Len(t, image, 64)
	assert.Equal(t, make([]byte, 12), image[:12])
	assert.Equal(t, []byte{0xE1, 0x10, 0x06, 0x00}, image[12:16])
	assert.Equal(t, []byte{0x03, 45}, image[16:18])
	assert.Equal(t, payload, image[18:63])
	assert.Equal(t, byte(0xFE), image[63])
}

func TestCompose_LargeClass(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0xCD}, 46)
	image := Compose(payload)

	require.Len(t, image, 16+5+2+46+1)
	assert.Equal(t, []byte{0xE1, 0x10, 0x12, 0x00}, image[12:16])
	assert.Equal(t, []byte{0x01, 0x03, 0xA0, 0x10, 0x44}, image[16:21])
	assert.Equal(t, []byte{0x03, 46}, image[21:23])
	assert.Equal(t, byte(0xFE), image[len(image)-1])
}

func TestCompose_Invariants(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 20, 44, 45, 46, 47, 100, 169, 170, 254} {
		payload := bytes.Repeat([]byte{byte(n)}, n)
		image := Compose(payload)

		assert.Equal(t, make([]byte, 12), image[:12], "n=%d header", n)
		assert.Equal(t, byte(0xE1), image[12], "n=%d CC0", n)
		assert.Equal(t, byte(0x10), image[13], "n=%d CC1", n)
		assert.Contains(t, []byte{6, 18}, image[14], "n=%d CC2", n)
		assert.Equal(t, byte(0x00), image[15], "n=%d CC3", n)
		assert.Equal(t, byte(0xFE), image[len(image)-1], "n=%d terminator", n)
		assert.Equal(t, image[14] == 18, image[16] == TLVTypeLockControl, "n=%d lock control iff large", n)

		got, err := DecodeImage(image)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, payload, got, "n=%d round trip", n)
	}
}

func TestCompose_GoNDEFMessage(t *testing.T) {
	t.Parallel()

	msg := ndef.NewTextMessage("hello", "en")
	raw, err := msg.Marshal()
	require.NoError(t, err)

	image := Compose(raw)
	got, err := DecodeImage(image)
	require.NoError(t, err)

	parsed := &ndef.Message{}
	_, err = parsed.Unmarshal(got)
	require.NoError(t, err)
	require.Len(t, parsed.Records, 1)
	assert.Equal(t, "T", parsed.Records[0].Type())
}
