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

// Package spi is the PN532 transport for SPI buses, using periph.io.
//
// The PN532 shifts bytes LSB first while most SPI controllers are MSB
// first, so every byte crossing the bus is bit reversed.
package spi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/internal/frame"
	"github.com/ZaparooProject/go-tt2/internal/syncutil"
	"github.com/ZaparooProject/go-tt2/pn532"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// SPI operation bytes, sent before every transaction
	spiStatRead  = 0x02
	spiDataWrite = 0x01
	spiDataRead  = 0x03
	spiReady     = 0x01

	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0

	ackTimeout      = 100 * time.Millisecond
	responseTimeout = time.Second
	pollInterval    = time.Millisecond
	maxFrameRetries = 3
)

// Conn is a full duplex SPI connection. spi.Conn implements it.
type Conn interface {
	Tx(w, r []byte) error
}

// Transport implements pn532.Transport for SPI communication
type Transport struct {
	conn     Conn
	port     io.Closer
	portName string
	mu       syncutil.Mutex
	closed   bool
}

var _ pn532.Transport = (*Transport)(nil)

// New opens portName (for example "/dev/spidev0.0") and wakes the PN532.
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := NewWithConn(conn, port, portName)
	t.wakeup()
	return t, nil
}

// NewWithConn creates a transport on an open connection. closer, when not
// nil, is closed by Close.
func NewWithConn(conn Conn, closer io.Closer, portName string) *Transport {
	return &Transport{
		conn:     conn,
		port:     closer,
		portName: portName,
	}
}

// wakeup toggles chip select with a dummy byte
func (t *Transport) wakeup() {
	time.Sleep(time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, make([]byte, 1))
	time.Sleep(time.Millisecond)
}

func reverseBytes(dst, src []byte) {
	for i, b := range src {
		dst[i] = bits.Reverse8(b)
	}
}

// xfer runs one transaction: the operation byte followed by payload,
// returning the n bytes clocked in after the operation byte.
func (t *Transport) xfer(op byte, payload []byte, n int) ([]byte, error) {
	size := 1 + max(len(payload), n)
	w := make([]byte, size)
	r := make([]byte, size)
	w[0] = bits.Reverse8(op)
	reverseBytes(w[1:], payload)

	if err := t.conn.Tx(w, r); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	reverseBytes(out, r[1:1+n])
	return out, nil
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
		return nil, &tt2.TransportError{Op: "sendFrame", Port: t.portName, Err: err, Type: tt2.ErrorTypePermanent}
	}
	if _, err := t.xfer(spiDataWrite, frm, 0); err != nil {
		return nil, fmt.Errorf("failed to send SPI frame: %w", err)
	}

	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx)
	if err != nil {
		return nil, err
	}
	tt2.Debugf("SPI %s cmd 0x%02X -> %X", t.portName, cmd, res)
	return res, nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
	}
	return nil
}

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

func deadlineFor(ctx context.Context, d time.Duration) time.Time {
	deadline := time.Now().Add(d)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

// waitReady polls the status register until the PN532 has a frame for us.
func (t *Transport) waitReady(ctx context.Context, deadline time.Time) (bool, error) {
	for time.Now().Before(deadline) {
		status, err := t.xfer(spiStatRead, nil, 1)
		if err != nil {
			return false, fmt.Errorf("SPI status read failed: %w", err)
		}
		if status[0] == spiReady {
			return true, nil
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (t *Transport) waitAck(ctx context.Context) error {
	ready, err := t.waitReady(ctx, deadlineFor(ctx, ackTimeout))
	if err != nil {
		return err
	}
	if !ready {
		return tt2.NewNoACKError("waitAck", t.portName)
	}

	ack, err := t.xfer(spiDataRead, nil, len(frame.AckFrame))
	if err != nil {
		return fmt.Errorf("SPI ACK read failed: %w", err)
	}
	if !frame.IsAck(ack) {
		return tt2.NewNoACKError("waitAck", t.portName)
	}
	return nil
}

// receiveFrame reads the response frame, NACKing corrupted frames so the
// PN532 sends them again.
func (t *Transport) receiveFrame(ctx context.Context) ([]byte, error) {
	deadline := deadlineFor(ctx, responseTimeout)

	for retries := 0; ; retries++ {
		ready, err := t.waitReady(ctx, deadline)
		if err != nil {
			return nil, err
		}
		if !ready {
			return nil, tt2.NewTransportTimeoutError("receiveFrame", t.portName)
		}

		buf, err := t.xfer(spiDataRead, nil, frame.MaxDataLength+frame.Overhead)
		if err != nil {
			return nil, fmt.Errorf("SPI read failed: %w", err)
		}
		data, _, err := frame.Parse(buf)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, frame.ErrIncomplete) {
			err = tt2.NewFrameCorruptedError("receiveFrame truncated", t.portName)
		}
		if !tt2.IsRetryable(err) || retries >= maxFrameRetries {
			return nil, fmt.Errorf("SPI response rejected after %d retries: %w", retries, err)
		}

		tt2.Debugf("SPI %s bad frame (%v), sending NACK", t.portName, err)
		if _, err := t.xfer(spiDataWrite, frame.NackFrame, 0); err != nil {
			return nil, fmt.Errorf("failed to send NACK: %w", err)
		}
	}
}
