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

package pn532

import (
	"context"
	"errors"
	"fmt"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
)

// Target mode parameters for a passive ISO14443A Type 2 target
const (
	tgModePassivePICC = 0x05 // PassiveOnly | PICCOnly
	tgSensRes0        = 0x44 // ATQA 0x0044, LSB first
	tgSensRes1        = 0x00
	tgSelRes          = 0x00 // Type 2 platform
	tgFeliCaLen       = 18
	tgNFCID3Len       = 10
)

// EmulateTag runs the PN532 as a passive Type 2 target serving image.
// READ commands are answered with 16 bytes of the image (zero filled past
// its end). Emulation ends when the initiator sends HALT or releases the
// target, or fails with ErrEmulationTimeout once timeout elapses. A timeout
// of zero waits for the context only.
//
// The target is read-only: WRITE and other commands are answered with a NAK.
func (d *Device) EmulateTag(ctx context.Context, image []byte, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := d.transport.SendCommand(ctx, cmdTgInitAsTarget, d.targetParams())
	if err != nil {
		return emulationError(ctx, fmt.Errorf("TgInitAsTarget command failed: %w", err))
	}
	if err := expectCode(res, cmdTgInitAsTarget); err != nil {
		return err
	}
	if len(res) < 2 {
		return fmt.Errorf("%w: TgInitAsTarget response too short", ErrUnexpectedResponse)
	}
	tt2.Debugf("PN532 activated as target, mode 0x%02X", res[1])

	served := 0
	// The first initiator command can arrive with the activation
	next := res[2:]
	for {
		if len(next) > 0 {
			done, err := d.serve(ctx, image, next)
			if err != nil || done {
				tt2.Debugf("PN532 emulation ended after %d reads", served)
				return err
			}
			served++
		}

		if ctx.Err() != nil {
			return emulationError(ctx, ctx.Err())
		}

		res, err := d.transport.SendCommand(ctx, cmdTgGetInitiatorCommand, nil)
		if err != nil {
			return emulationError(ctx, fmt.Errorf("TgGetInitiatorCommand command failed: %w", err))
		}
		payload, err := statusPayload(res, cmdTgGetInitiatorCommand, "emulate", -1)
		if err != nil {
			var de *tt2.DeviceError
			if errors.As(err, &de) && de.Status == statusReleased {
				tt2.Debugf("PN532 released by initiator after %d reads", served)
				return nil
			}
			return err
		}
		next = payload
	}
}

// serve answers one initiator command. It reports done when the initiator
// halted the tag.
func (d *Device) serve(ctx context.Context, image, cmd []byte) (done bool, err error) {
	var reply []byte
	switch cmd[0] {
	case tagCmdHalt:
		return true, nil
	case tagCmdRead:
		if len(cmd) < 2 {
			reply = []byte{0x00}
			break
		}
		reply = imagePages(image, cmd[1])
		tt2.Debugf("PN532 served READ %d: %X", cmd[1], reply)
	default:
		tt2.Debugf("PN532 NAK for initiator command %X", cmd)
		reply = []byte{0x00}
	}

	res, err := d.transport.SendCommand(ctx, cmdTgResponseToInitiator, reply)
	if err != nil {
		return false, emulationError(ctx, fmt.Errorf("TgResponseToInitiator command failed: %w", err))
	}
	if _, err := statusPayload(res, cmdTgResponseToInitiator, "emulate", -1); err != nil {
		return false, err
	}
	return false, nil
}

// imagePages returns the 16 bytes a READ of page returns from image.
func imagePages(image []byte, page byte) []byte {
	data := make([]byte, tt2.ReadSize)
	start := int(page) * tt2.BlockSize
	if start < len(image) {
		copy(data, image[start:])
	}
	return data
}

// targetParams builds TgInitAsTarget parameters: Mode, MifareParams,
// FeliCaParams, NFCID3t and empty general and historical bytes.
func (d *Device) targetParams() []byte {
	params := make([]byte, 0, 1+6+tgFeliCaLen+tgNFCID3Len+2)
	params = append(params, tgModePassivePICC, tgSensRes0, tgSensRes1)
	params = append(params, d.config.EmulationID[:]...)
	params = append(params, tgSelRes)
	params = append(params, make([]byte, tgFeliCaLen+tgNFCID3Len)...)
	return append(params, 0x00, 0x00)
}

// emulationError reports an expired emulation timeout as ErrEmulationTimeout.
func emulationError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrEmulationTimeout, err)
	}
	return err
}
