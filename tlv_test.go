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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendTLVs(t *testing.T) {
	t.Parallel()

	got := AppendNDEFTLV(nil, []byte{0xD1, 0x01})
	assert.Equal(t, []byte{0x03, 0x02, 0xD1, 0x01}, got)

	got = AppendLockControlTLV([]byte{0xAA})
	assert.Equal(t, []byte{0xAA, 0x01, 0x03, 0xA0, 0x10, 0x44}, got)

	assert.Equal(t, []byte{0xFE}, AppendTerminatorTLV(nil))
}

func TestScanForNDEFTLV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		want    *NDEFLocation
		name    string
		data    []byte
	}{
		{
			name: "short form",
			data: []byte{0x03, 0x03, 0xD0, 0x00, 0x00, 0xFE},
			want: &NDEFLocation{Offset: 2, Length: 3, HeaderSize: 2},
		},
		{
			name: "long form",
			data: []byte{0x03, 0xFF, 0x01, 0x02, 0xAA},
			want: &NDEFLocation{Offset: 4, Length: 258, HeaderSize: 4},
		},
		{
			name: "after lock control",
			data: []byte{0x01, 0x03, 0xA0, 0x10, 0x44, 0x03, 0x01, 0xD0, 0xFE},
			want: &NDEFLocation{Offset: 7, Length: 1, HeaderSize: 2},
		},
		{
			name: "after NULL and memory control",
			data: []byte{0x00, 0x00, 0x02, 0x03, 0x01, 0x02, 0x03, 0x03, 0x00, 0xFE},
			want: &NDEFLocation{Offset: 9, Length: 0, HeaderSize: 2},
		},
		{
			name:    "terminator first",
			data:    []byte{0xFE, 0x03, 0x01, 0xD0},
			wantErr: ErrTLVNDEFNotFound,
		},
		{
			name:    "only padding",
			data:    []byte{0x00, 0x00, 0x00},
			wantErr: ErrTLVNDEFNotFound,
		},
		{
			name:    "too short",
			data:    []byte{0x03},
			wantErr: ErrTLVDataTooShort,
		},
		{
			name:    "truncated long length",
			data:    []byte{0x03, 0xFF, 0x01},
			wantErr: ErrTLVInvalidLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			loc, err := ScanForNDEFTLV(tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc)
		})
	}
}

func TestExtractNDEFFromTLV(t *testing.T) {
	t.Parallel()

	got, err := ExtractNDEFFromTLV([]byte{0x01, 0x03, 0xA0, 0x10, 0x44, 0x03, 0x02, 0xD0, 0x00, 0xFE})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD0, 0x00}, got)

	_, err = ExtractNDEFFromTLV([]byte{0x03, 0x10, 0xD0, 0x00})
	require.ErrorIs(t, err, ErrTLVInvalidLength)
}

func TestDecodeImage(t *testing.T) {
	t.Parallel()

	image := make([]byte, 16)
	image = append(image, 0x03, 0x02, 0xD0, 0x00, 0xFE)
	got, err := DecodeImage(image)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD0, 0x00}, got)

	blank := make([]byte, 64)
	_, err = DecodeImage(blank)
	require.ErrorIs(t, err, ErrNoNDEF)

	_, err = DecodeImage(make([]byte, 8))
	require.ErrorIs(t, err, ErrTLVDataTooShort)
}

func TestTLVDebugInfo(t *testing.T) {
	t.Parallel()

	info := TLVDebugInfo([]byte{0x00, 0x01, 0x03, 0xA0, 0x10, 0x44, 0x03, 0x01, 0xD0, 0xFD, 0x00, 0xFE})
	assert.Equal(t,
		"[0] NULL\n[1] LOCK_CONTROL len=3\n[6] NDEF len=1\n[9] PROPRIETARY(0xFD) len=0\n[11] TERMINATOR\n",
		info)

	assert.Equal(t, "empty data", TLVDebugInfo(nil))
	assert.Contains(t, TLVDebugInfo([]byte{0x03}), "parse error")
}
