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
	"time"
)

// NDEFSource produces the bytes of an NDEF message. *ndef.Message from
// github.com/hsanjuan/go-ndef satisfies it.
type NDEFSource interface {
	Marshal() ([]byte, error)
}

// Emulate composes an image from src and hands it to the device's
// emulation primitive together with timeout.
func Emulate(ctx context.Context, dev Device, src NDEFSource, timeout time.Duration) error {
	raw, err := marshalNDEF(src)
	if err != nil {
		return err
	}

	image := Compose(raw)
	Debugf("TT2 emulating %d byte image for %v", len(image), timeout)
	if err := dev.EmulateTag(ctx, image, timeout); err != nil {
		return fmt.Errorf("tag emulation failed: %w", err)
	}
	return nil
}

func marshalNDEF(src NDEFSource) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidNDEF)
	}
	raw, err := src.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNDEF, err)
	}
	return raw, nil
}
