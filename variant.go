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
	"errors"
)

// probeBlock exists on Ultralight C (pages 0x10-0x2F) but not on a plain
// Ultralight, whose memory ends at page 0x0F.
const probeBlock = 0x10

// TagVariant identifies the member of the Ultralight family.
type TagVariant int

const (
	// VariantUnclassified means no probe ran or the UID is not NXP.
	VariantUnclassified TagVariant = iota
	// VariantUltralight is a MIFARE Ultralight (MF0ICU1).
	VariantUltralight
	// VariantUltralightC is a MIFARE Ultralight C (MF0ICU2).
	VariantUltralightC
)

func (v TagVariant) String() string {
	switch v {
	case VariantUltralight:
		return "Mifare Ultralight"
	case VariantUltralightC:
		return "Mifare Ultralight C"
	default:
		return "Unclassified"
	}
}

// Manufacturer represents the chip manufacturer identified from the UID.
// The first byte of a 7-byte UID is the manufacturer code per ISO/IEC 7816-6.
type Manufacturer string

const (
	// ManufacturerNXP is NXP Semiconductors (0x04), maker of the Ultralight family.
	ManufacturerNXP Manufacturer = "NXP"
	// ManufacturerST is STMicroelectronics (0x02).
	ManufacturerST Manufacturer = "STMicroelectronics"
	// ManufacturerInfineon is Infineon Technologies (0x05).
	ManufacturerInfineon Manufacturer = "Infineon"
	// ManufacturerTI is Texas Instruments (0x07).
	ManufacturerTI Manufacturer = "Texas Instruments"
	// ManufacturerUnknown indicates an unrecognized manufacturer code.
	ManufacturerUnknown Manufacturer = "Unknown"
)

// GetManufacturer returns the chip manufacturer based on the UID's first byte.
func GetManufacturer(uid []byte) Manufacturer {
	if len(uid) == 0 {
		return ManufacturerUnknown
	}

	switch uid[0] {
	case 0x04:
		return ManufacturerNXP
	case 0x02:
		return ManufacturerST
	case 0x05:
		return ManufacturerInfineon
	case 0x07:
		return ManufacturerTI
	default:
		return ManufacturerUnknown
	}
}

// DetectVariant tells a MIFARE Ultralight from an Ultralight C by reading
// block 0x10, which only the C variant has. Only NXP UIDs are probed; any
// other UID is left unclassified without touching the device.
//
// The probe is best effort: a read failure for any reason classifies the tag
// as a plain Ultralight. Only context errors are returned.
func DetectVariant(ctx context.Context, dev Device, uid []byte) (TagVariant, error) {
	if GetManufacturer(uid) != ManufacturerNXP {
		return VariantUnclassified, nil
	}

	variant := VariantUltralightC
	if _, err := dev.ReadBlock(ctx, probeBlock); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return VariantUnclassified, err
		}
		variant = VariantUltralight
	}

	Debugf("TT2 variant: %s", variant)
	return variant, nil
}
