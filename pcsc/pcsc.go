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

// Package pcsc drives Type 2 tags through PC/SC contactless readers using
// the pseudo APDUs most CCID readers (ACR122U, ACR1252, Identiv) accept.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/internal/syncutil"
)

const (
	claPseudo    = 0xFF
	insGetData   = 0xCA
	insReadBin   = 0xB0
	insUpdateBin = 0xD6

	swSuccess = 0x9000
)

var (
	// ErrNoReaders is returned by Open when PC/SC reports no readers.
	ErrNoReaders = errors.New("no PC/SC readers found")
	// ErrReaderIndex is returned by Open for an index past the reader list.
	ErrReaderIndex = errors.New("reader index out of range")
	// ErrShortResponse is returned when a reply lacks the status word.
	ErrShortResponse = errors.New("short response")
)

// Card is the part of *scard.Card the device uses.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Device is a card on a PC/SC reader acting as a Type 2 block device.
type Device struct {
	card Card
	mu   syncutil.Mutex
}

var _ tt2.Device = (*Device)(nil)

// NewDevice wraps a connected card.
func NewDevice(card Card) *Device {
	return &Device{card: card}
}

// Open connects to the card on the reader at readerIndex. The returned
// function disconnects the card and releases the PC/SC context.
func Open(readerIndex int) (*Device, func(), error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, fmt.Errorf("establish PC/SC context: %w", err)
	}

	readers, err := sctx.ListReaders()
	if err != nil {
		_ = sctx.Release()
		return nil, nil, fmt.Errorf("list readers: %w", err)
	}
	if len(readers) == 0 {
		_ = sctx.Release()
		return nil, nil, ErrNoReaders
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		_ = sctx.Release()
		return nil, nil, fmt.Errorf("%w: %d (0..%d)", ErrReaderIndex, readerIndex, len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := sctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		_ = sctx.Release()
		return nil, nil, fmt.Errorf("connect to %s: %w", reader, err)
	}
	tt2.Debugf("pcsc: connected to reader [%d] %s", readerIndex, reader)

	closeFn := func() {
		_ = card.Disconnect(scard.LeaveCard)
		_ = sctx.Release()
	}
	return NewDevice(card), closeFn, nil
}

// transmit sends apdu and splits the reply into data and status word.
func (d *Device) transmit(apdu []byte) (data []byte, sw uint16, err error) {
	resp, err := d.card.Transmit(apdu)
	if err != nil {
		return nil, 0, err
	}
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(resp))
	}
	sw = uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	return resp[:len(resp)-2], sw, nil
}

// UID returns the card identifier reported by GET DATA.
func (d *Device) UID(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data, sw, err := d.transmit([]byte{claPseudo, insGetData, 0x00, 0x00, 0x00})
	if err != nil {
		return nil, fmt.Errorf("get UID: %w", err)
	}
	if sw != swSuccess {
		return nil, fmt.Errorf("get UID: status %04X", sw)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("get UID: %w", ErrShortResponse)
	}
	return data, nil
}

// ReadBlock reads 16 bytes starting at block with READ BINARY.
func (d *Device) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data, sw, err := d.transmit([]byte{claPseudo, insReadBin, 0x00, block, tt2.ReadSize})
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %w", tt2.ErrTagReadFailed, block, err)
	}
	if sw != swSuccess {
		return nil, tt2.NewDeviceError("read", block, int(sw))
	}
	if len(data) < tt2.ReadSize {
		return nil, fmt.Errorf("%w: block %d returned %d bytes", tt2.ErrInvalidBlockData, block, len(data))
	}
	tt2.Debugf("pcsc: read block %d: %X", block, data[:tt2.ReadSize])
	return data[:tt2.ReadSize], nil
}

// WriteBlock writes 4 bytes to block with UPDATE BINARY.
func (d *Device) WriteBlock(ctx context.Context, block uint8, data []byte) error {
	if len(data) != tt2.BlockSize {
		return fmt.Errorf("%w: block data must be %d bytes, got %d",
			tt2.ErrInvalidBlockData, tt2.BlockSize, len(data))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	apdu := make([]byte, 0, 5+tt2.BlockSize)
	apdu = append(apdu, claPseudo, insUpdateBin, 0x00, block, tt2.BlockSize)
	apdu = append(apdu, data...)

	_, sw, err := d.transmit(apdu)
	if err != nil {
		return fmt.Errorf("%w: block %d: %w", tt2.ErrTagWriteFailed, block, err)
	}
	if sw != swSuccess {
		return tt2.NewDeviceError("write", block, int(sw))
	}
	return nil
}

// EmulateTag is not available through PC/SC.
func (*Device) EmulateTag(context.Context, []byte, time.Duration) error {
	return tt2.ErrEmulationUnsupported
}
