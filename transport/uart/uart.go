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

// Package uart is the PN532 transport for High Speed UART links, including
// USB serial adapters.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/internal/frame"
	"github.com/ZaparooProject/go-tt2/internal/syncutil"
	"github.com/ZaparooProject/go-tt2/pn532"
	"go.bug.st/serial"
)

const (
	baudRate = 115200

	// ackTimeout bounds the wait for the ACK of a command frame
	ackTimeout = 100 * time.Millisecond
	// maxFrameRetries is the number of NACKs sent for a corrupted response
	maxFrameRetries = 3
)

// wakeUpSequence takes the PN532 out of power down: 0x55 followed by
// enough idle bytes for the HSU to come up.
var wakeUpSequence = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Port is the part of a serial port the transport uses. serial.Port
// implements it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	Drain() error
}

// Transport implements pn532.Transport for UART communication.
type Transport struct {
	port     Port
	portName string
	mu       syncutil.Mutex
	closed   bool
}

var _ pn532.Transport = (*Transport)(nil)

// getReadTimeout returns the per read timeout for the platform
func getReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName at 115200 8N1 and creates a transport on it.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort creates a transport on an already open port.
func NewWithPort(port Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(getReadTimeout()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// SendCommand sends a command frame, waits for its ACK and returns the
// response data after the TFI. The response wait is bounded by ctx.
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

	if err := t.write(wakeUpSequence, "wake up"); err != nil {
		return nil, err
	}
	if err := t.write(frm, "send frame"); err != nil {
		return nil, err
	}

	pending, err := t.waitAck(ctx)
	if err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx, pending)
	if err != nil {
		return nil, err
	}
	tt2.Debugf("UART %s cmd 0x%02X -> %X", t.portName, cmd, res)

	if err := t.write(frame.AckFrame, "ACK"); err != nil {
		return nil, err
	}
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
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// write sends data and waits for it to leave the port.
func (t *Transport) write(data []byte, operation string) error {
	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART %s write failed: %w", operation, err)
	}
	if n != len(data) {
		return &tt2.TransportError{
			Op: operation, Port: t.portName,
			Err:       fmt.Errorf("short write: %d of %d bytes", n, len(data)),
			Type:      tt2.ErrorTypeTransient,
			Retryable: true,
		}
	}
	return t.drainWithRetry(operation)
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			return fmt.Errorf("UART %s drain failed: %w", operation, err)
		}
		time.Sleep(baseDelay << attempt) // 2ms, 4ms
	}
	return nil
}

// waitAck reads until an ACK frame arrives and returns whatever followed
// it in the same reads.
func (t *Transport) waitAck(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(ackTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var buf []byte
	chunk := make([]byte, 64)
	for time.Now().Before(deadline) {
		n, err := t.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("UART ACK read failed: %w", err)
		}
		buf = append(buf, chunk[:n]...)

		if off := frame.FindAck(buf); off >= 0 {
			return buf[off:], nil
		}
		if n == 0 && ctx.Err() != nil {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, tt2.NewNoACKError("waitAck", t.portName)
}

// receiveFrame reads the response frame, NACKing corrupted frames so the
// PN532 sends them again.
func (t *Transport) receiveFrame(ctx context.Context, pending []byte) ([]byte, error) {
	buf := pending
	chunk := make([]byte, frame.MaxDataLength+frame.Overhead)

	retries := 0
	for {
		data, _, err := frame.Parse(buf)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			if !tt2.IsRetryable(err) || retries >= maxFrameRetries {
				return nil, fmt.Errorf("UART response rejected after %d retries: %w", retries, err)
			}
			retries++
			tt2.Debugf("UART %s bad frame (%v), sending NACK", t.portName, err)
			buf = nil
			if err := t.write(frame.NackFrame, "NACK"); err != nil {
				return nil, err
			}
		}

		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, tt2.NewTransportTimeoutError("receiveFrame", t.portName)
		}
		n, err := t.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("UART response read failed: %w", err)
		}
		buf = append(buf, chunk[:n]...)
	}
}
