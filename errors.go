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
	"fmt"
)

// StatusImageTooLarge is the status code reported when a composed image
// exceeds the largest tag the writer supports. It is raised before any
// device I/O.
const StatusImageTooLarge = 0xBBB

// Error categories
var (
	// Tag errors
	ErrTagReadFailed    = errors.New("tag read failed")
	ErrTagWriteFailed   = errors.New("tag write failed")
	ErrInvalidBlockData = errors.New("invalid block data")
	ErrDataAreaTooLarge = errors.New("data area exceeds addressable tag memory")
	ErrImageTooLarge    = errors.New("composed image exceeds maximum tag capacity")

	// Data errors
	ErrNoNDEF      = errors.New("no NDEF message found")
	ErrInvalidNDEF = errors.New("invalid NDEF message")

	// Device errors
	ErrEmulationUnsupported = errors.New("device does not support tag emulation")
	ErrTransportTimeout     = errors.New("transport timeout")
	ErrTransportClosed      = errors.New("transport is closed")
	ErrFrameCorrupted       = errors.New("frame corrupted")
	ErrNoACK                = errors.New("no ACK received")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
)

// DeviceError carries a non-zero status reported by a block device.
// The status is passed through unchanged from the device.
type DeviceError struct {
	Op     string // "read", "write", "emulate"
	Block  int    // block index, -1 when not block addressed
	Status int
}

func (e *DeviceError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("device %s block %d: status 0x%X", e.Op, e.Block, e.Status)
	}
	return fmt.Sprintf("device %s: status 0x%X", e.Op, e.Status)
}

// NewDeviceError creates a DeviceError for a block addressed operation.
func NewDeviceError(op string, block uint8, status int) *DeviceError {
	return &DeviceError{Op: op, Block: int(block), Status: status}
}

// CapacityError reports a composed image that no supported tag can hold.
type CapacityError struct {
	ImageLen int // composed image length in bytes
	Limit    int // largest supported image in bytes
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("composed image is %d bytes, larger than %d bytes (more than Ultralight C can provide)",
		e.ImageLen, e.Limit)
}

// Is lets errors.Is match ErrImageTooLarge.
func (*CapacityError) Is(target error) bool {
	return target == ErrImageTooLarge
}

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or bus identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportTimeoutError creates a retryable timeout error.
func NewTransportTimeoutError(op, port string) *TransportError {
	return &TransportError{
		Err:       ErrTransportTimeout,
		Op:        op,
		Port:      port,
		Type:      ErrorTypeTimeout,
		Retryable: true,
	}
}

// NewFrameCorruptedError creates a retryable frame corruption error.
func NewFrameCorruptedError(op, port string) *TransportError {
	return &TransportError{
		Err:       ErrFrameCorrupted,
		Op:        op,
		Port:      port,
		Type:      ErrorTypeTransient,
		Retryable: true,
	}
}

// NewNoACKError creates a retryable missing ACK error.
func NewNoACKError(op, port string) *TransportError {
	return &TransportError{
		Err:       ErrNoACK,
		Op:        op,
		Port:      port,
		Type:      ErrorTypeTransient,
		Retryable: true,
	}
}

// StatusCode maps an operation result to its status code: 0 for success,
// the device status for a device failure, StatusImageTooLarge for a capacity
// failure and -1 for anything else.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}

	var de *DeviceError
	if errors.As(err, &de) {
		return de.Status
	}
	if errors.Is(err, ErrImageTooLarge) {
		return StatusImageTooLarge
	}
	return -1
}

// IsRetryable reports whether a caller may reasonably repeat the operation.
// Core operations never retry on their own.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrImageTooLarge),
		errors.Is(err, ErrDataAreaTooLarge),
		errors.Is(err, ErrInvalidNDEF),
		errors.Is(err, ErrEmulationUnsupported),
		errors.Is(err, ErrTransportClosed):
		return false
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrNoACK):
		return true
	}

	// A device status means the RF exchange failed; the tag may simply have
	// been moved.
	var de *DeviceError
	return errors.As(err, &de)
}
