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

// Package i2c is the PN532 transport for I2C buses, using periph.io.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/internal/frame"
	"github.com/ZaparooProject/go-tt2/internal/syncutil"
	"github.com/ZaparooProject/go-tt2/pn532"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// PN532 7-bit I2C address (datasheet says 0x48, which is the 8-bit write
	// address including the R/W bit; periph.io and the Linux kernel expect the
	// 7-bit form: 0x48 >> 1 = 0x24).
	pn532Addr = 0x24

	// pn532Ready is the status byte leading every read once a frame is ready
	pn532Ready = 0x01

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	ackTimeout      = 100 * time.Millisecond
	responseTimeout = time.Second
	pollInterval    = time.Millisecond
	maxFrameRetries = 3
)

// Conn is a device on the bus. *i2c.Dev implements it.
type Conn interface {
	Tx(w, r []byte) error
}

// Transport implements pn532.Transport for I2C communication
type Transport struct {
	dev     Conn
	bus     io.Closer // held so Close can release the OS file descriptor
	busName string
	mu      syncutil.Mutex
	closed  bool
}

var _ pn532.Transport = (*Transport)(nil)

// parseI2CPath extracts the bus path from a composite path.
// Accepts "/dev/i2c-1:0x24" or "/dev/i2c-1" (bare bus).
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens busName and creates a transport for the PN532 on it.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	return NewWithConn(&i2c.Dev{Addr: pn532Addr, Bus: bus}, bus, busName), nil
}

// NewWithConn creates a transport on an open device. closer, when not nil,
// is closed by Close.
func NewWithConn(dev Conn, closer io.Closer, busName string) *Transport {
	return &Transport{
		dev:     dev,
		bus:     closer,
		busName: busName,
	}
}

// SendCommand writes a command frame, waits for its ACK and returns the
// response data after the TFI.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, tt2.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, &tt2.TransportError{Op: "sendFrame", Port: t.busName, Err: err, Type: tt2.ErrorTypePermanent}
	}
	if err := t.dev.Tx(frm, nil); err != nil {
		return nil, fmt.Errorf("failed to send I2C frame: %w", err)
	}

	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx)
	if err != nil {
		return nil, err
	}
	tt2.Debugf("I2C %s cmd 0x%02X -> %X", t.busName, cmd, res)
	return res, nil
}

// Close closes the transport connection and releases the I2C bus.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus != nil {
		if err := t.bus.Close(); err != nil {
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
	}
	return nil
}

// sleepCtx performs a context-aware sleep. Returns ctx.Err() if context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deadlineFor returns the earlier of ctx's deadline and now + d.
func deadlineFor(ctx context.Context, d time.Duration) time.Time {
	deadline := time.Now().Add(d)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

// waitReady polls the status byte until the PN532 has a frame for us.
func (t *Transport) waitReady(ctx context.Context, deadline time.Time) (bool, error) {
	status := make([]byte, 1)
	for time.Now().Before(deadline) {
		if err := t.dev.Tx(nil, status); err != nil {
			return false, fmt.Errorf("I2C ready check failed: %w", err)
		}
		if status[0] == pn532Ready {
			return true, nil
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return false, err
		}
	}
	return false, nil
}

// readI2C reads len(buf) bytes, stripping the status byte that the
// hardware prepends to every I2C read transaction.
func (t *Transport) readI2C(buf []byte) error {
	tmp := make([]byte, 1+len(buf))
	if err := t.dev.Tx(nil, tmp); err != nil {
		return fmt.Errorf("I2C read failed: %w", err)
	}
	if tmp[0] != pn532Ready {
		return tt2.NewFrameCorruptedError("readI2C not ready", t.busName)
	}
	copy(buf, tmp[1:])
	return nil
}

func (t *Transport) waitAck(ctx context.Context) error {
	ready, err := t.waitReady(ctx, deadlineFor(ctx, ackTimeout))
	if err != nil {
		return err
	}
	if !ready {
		return tt2.NewNoACKError("waitAck", t.busName)
	}

	ack := make([]byte, len(frame.AckFrame))
	if err := t.readI2C(ack); err != nil {
		return fmt.Errorf("I2C ACK read failed: %w", err)
	}
	if !frame.IsAck(ack) {
		return tt2.NewNoACKError("waitAck", t.busName)
	}
	return nil
}

// receiveFrame reads the response frame, NACKing corrupted frames so the
// PN532 sends them again.
func (t *Transport) receiveFrame(ctx context.Context) ([]byte, error) {
	deadline := deadlineFor(ctx, responseTimeout)
	buf := make([]byte, frame.MaxDataLength+frame.Overhead)

	for retries := 0; ; retries++ {
		ready, err := t.waitReady(ctx, deadline)
		if err != nil {
			return nil, err
		}
		if !ready {
			return nil, tt2.NewTransportTimeoutError("receiveFrame", t.busName)
		}

		if err := t.readI2C(buf); err != nil {
			return nil, err
		}
		data, _, err := frame.Parse(buf)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, frame.ErrIncomplete) {
			err = tt2.NewFrameCorruptedError("receiveFrame truncated", t.busName)
		}
		if !tt2.IsRetryable(err) || retries >= maxFrameRetries {
			return nil, fmt.Errorf("I2C response rejected after %d retries: %w", retries, err)
		}

		tt2.Debugf("I2C %s bad frame (%v), sending NACK", t.busName, err)
		if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
			return nil, fmt.Errorf("failed to send NACK: %w", err)
		}
	}
}
