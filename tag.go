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
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-tt2/internal/syncutil"
	"github.com/hsanjuan/go-ndef"
)

// Tag is one session with a Type 2 tag on a device. It serializes
// operations so that no two block sequences run against the device at the
// same time, and remembers the variant once it has been probed.
type Tag struct {
	device        Device
	uid           []byte
	mu            syncutil.Mutex
	variant       TagVariant
	variantProbed bool
}

// NewTag creates a tag session for the tag with the given UID.
func NewTag(device Device, uid []byte) *Tag {
	return &Tag{
		device: device,
		uid:    append([]byte(nil), uid...),
	}
}

// UID returns the tag's unique identifier as hex string
func (t *Tag) UID() string {
	return hex.EncodeToString(t.uid)
}

// UIDBytes returns the tag's unique identifier as bytes
func (t *Tag) UIDBytes() []byte {
	return t.uid
}

// Manufacturer returns the chip manufacturer identified from the UID.
func (t *Tag) Manufacturer() Manufacturer {
	return GetManufacturer(t.uid)
}

// Variant returns the probed variant, or VariantUnclassified if
// DetectVariant has not run.
func (t *Tag) Variant() TagVariant {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.variant
}

// DetectVariant probes the variant on first use and returns the cached
// result afterwards.
func (t *Tag) DetectVariant(ctx context.Context) (TagVariant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.variantProbed {
		return t.variant, nil
	}

	variant, err := DetectVariant(ctx, t.device, t.uid)
	if err != nil {
		return VariantUnclassified, err
	}
	t.variant = variant
	t.variantProbed = true
	return variant, nil
}

// Read assembles the tag memory, see Read.
func (t *Tag) Read(ctx context.Context) (*ReadResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Read(ctx, t.device)
}

// ReadNDEF returns the NDEF message bytes stored on the tag.
func (t *Tag) ReadNDEF(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ReadNDEF(ctx, t.device)
}

// ReadMessage returns the parsed NDEF message stored on the tag.
func (t *Tag) ReadMessage(ctx context.Context) (*ndef.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ReadMessage(ctx, t.device)
}

// ReadText returns the text of the first text record on the tag.
func (t *Tag) ReadText(ctx context.Context) (string, error) {
	msg, err := t.ReadMessage(ctx)
	if err != nil {
		return "", err
	}

	for _, rec := range msg.Records {
		if rec.TNF() != ndef.NFCForumWellKnownType || rec.Type() != "T" {
			continue
		}
		payload, err := rec.Payload()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidNDEF, err)
		}
		return parseTextPayload(payload.Marshal())
	}
	return "", fmt.Errorf("%w: no text record", ErrNoNDEF)
}

// parseTextPayload strips the status byte and language code from a text
// record payload.
func parseTextPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("%w: text payload too short", ErrInvalidNDEF)
	}

	langLen := int(payload[0] & 0x3F)
	if len(payload) < 1+langLen {
		return "", fmt.Errorf("%w: invalid text payload length", ErrInvalidNDEF)
	}
	return string(payload[1+langLen:]), nil
}

// Write writes raw NDEF message bytes to the tag.
func (t *Tag) Write(ctx context.Context, raw []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Write(ctx, t.device, raw)
}

// WriteMessage writes an NDEF message to the tag.
func (t *Tag) WriteMessage(ctx context.Context, msg *ndef.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return WriteMessage(ctx, t.device, msg)
}

// WriteText writes a single English text record to the tag.
func (t *Tag) WriteText(ctx context.Context, text string) error {
	return t.WriteMessage(ctx, ndef.NewTextMessage(text, "en"))
}

// Emulate presents src through the device's emulation primitive.
func (t *Tag) Emulate(ctx context.Context, src NDEFSource, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Emulate(ctx, t.device, src, timeout)
}

// Summary returns a brief summary of the tag
func (t *Tag) Summary() string {
	return fmt.Sprintf("Tag: %s, UID: %s, Manufacturer: %s", t.Variant(), t.UID(), t.Manufacturer())
}

// DebugInfo returns detailed debug information about the tag, reading its
// memory when possible.
func (t *Tag) DebugInfo(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("=== Tag Debug Info ===\n")
	_, _ = fmt.Fprintf(&sb, "Variant: %s\n", t.Variant())
	_, _ = fmt.Fprintf(&sb, "UID: %s\n", t.UID())
	_, _ = fmt.Fprintf(&sb, "Manufacturer: %s\n", t.Manufacturer())

	result, err := t.Read(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(&sb, "Memory: %v\n", err)
		return sb.String()
	}

	_, _ = fmt.Fprintf(&sb, "%s\n", result.CC)
	_, _ = fmt.Fprintf(&sb, "Memory: %d bytes\n", len(result.Image))
	sb.WriteString(TLVDebugInfo(result.Image[HeaderSize:]))
	return sb.String()
}
