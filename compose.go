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

// Compose builds the complete tag memory image for an NDEF message:
// a 16 byte header with zeroed UID, internal and lock bytes followed by the
// capability container, an optional Lock Control TLV, the NDEF Message TLV
// and the terminator.
//
// Compose never fails. Images larger than any supported tag are rejected by
// Write, not here.
func Compose(ndef []byte) []byte {
	class := SelectSizeClass(len(ndef))

	size := HeaderSize + ndefTLVOverhead + len(ndef) + terminatorSize
	if class.NeedsLockControl() {
		size += 2 + len(lockControlValue)
	}
	image := make([]byte, ccOffset, size)

	cc := EncodeCC(NewCapabilityContainer(class))
	image = append(image, cc[:]...)

	if class.NeedsLockControl() {
		image = AppendLockControlTLV(image)
	}
	image = AppendNDEFTLV(image, ndef)
	return AppendTerminatorTLV(image)
}
