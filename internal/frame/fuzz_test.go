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

package frame

import "testing"

// Malformed input from clone chips or damaged devices must never panic the
// parser.
//
// Run with: go test -fuzz=FuzzParse -fuzztime=30s ./internal/frame/
func FuzzParse(f *testing.F) {
	f.Add([]byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD5, 0x15, 0x16, 0x00})
	f.Add([]byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00})
	f.Add([]byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00})
	f.Add([]byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00})
	f.Add([]byte{})
	f.Add([]byte{0x00, 0xFF})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, buf []byte) {
		data, consumed, err := Parse(buf)
		if consumed < 0 || consumed > len(buf) {
			t.Fatalf("consumed %d of %d bytes", consumed, len(buf))
		}
		if err == nil && len(data) >= len(buf) {
			t.Fatalf("data longer than frame: %d >= %d", len(data), len(buf))
		}
	})
}

func FuzzBuild(f *testing.F) {
	f.Add(byte(0x40), []byte{0x01, 0x30, 0x04})
	f.Add(byte(0x02), []byte{})

	f.Fuzz(func(t *testing.T, cmd byte, args []byte) {
		frm, err := Build(cmd, args)
		if err != nil {
			return
		}
		if Sum(frm[3:5]) != 0 {
			t.Fatal("length checksum does not sum to zero")
		}
		if Sum(frm[5:len(frm)-1]) != 0 {
			t.Fatal("data checksum does not sum to zero")
		}
	})
}
