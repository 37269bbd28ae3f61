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
	"time"
)

// Device is the block level capability the codec drives. Implementations
// report failures as errors; a non-zero device status should be returned
// as a *DeviceError so callers can recover it with StatusCode.
//
// The codec never issues a call before the previous one has returned, and
// callers must not run two operations against the same Device concurrently.
type Device interface {
	// ReadBlock reads 16 bytes (four consecutive blocks) starting at block.
	ReadBlock(ctx context.Context, block uint8) ([]byte, error)

	// WriteBlock writes exactly 4 bytes to block.
	WriteBlock(ctx context.Context, block uint8, data []byte) error

	// EmulateTag presents image to a remote reader until the reader is done
	// with it or timeout elapses.
	EmulateTag(ctx context.Context, image []byte, timeout time.Duration) error
}
