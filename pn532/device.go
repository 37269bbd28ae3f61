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
	"encoding/hex"
	"fmt"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/internal/syncutil"
)

// Config holds Device settings.
type Config struct {
	// CommandTimeout bounds each command when the caller's context has no
	// deadline. Zero disables it.
	CommandTimeout time.Duration
	// EmulationID is the NFCID1t used in target mode. The PN532 fixes the
	// first UID byte to 0x08 and appends these three.
	EmulationID [3]byte
}

// DefaultConfig returns the default device configuration
func DefaultConfig() *Config {
	return &Config{
		CommandTimeout: time.Second,
		EmulationID:    [3]byte{0x12, 0x34, 0x56},
	}
}

// FirmwareVersion is the answer to GetFirmwareVersion.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// Target is a tag found by DetectTarget.
type Target struct {
	UID    []byte
	ATQA   [2]byte
	Number byte
	SAK    byte
}

// UIDString returns the target UID as hex string
func (t *Target) UIDString() string {
	return hex.EncodeToString(t.UID)
}

// Device is a PN532 acting as a Type 2 block device for the selected target.
type Device struct {
	transport Transport
	config    *Config
	mu        syncutil.Mutex
	target    byte
}

var _ tt2.Device = (*Device)(nil)

// New creates a device on transport. A nil config uses DefaultConfig.
func New(transport Transport, config *Config) *Device {
	if config == nil {
		config = DefaultConfig()
	}
	return &Device{
		transport: transport,
		config:    config,
		target:    1,
	}
}

// Close closes the underlying transport.
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// Init puts the SAM in normal mode so the controller can reach tags.
func (d *Device) Init(ctx context.Context) error {
	res, err := d.send(ctx, cmdSAMConfiguration, []byte{samModeNormal, samTimeout, samUseIRQ})
	if err != nil {
		return fmt.Errorf("SAM configuration command failed: %w", err)
	}
	if err := expectCode(res, cmdSAMConfiguration); err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}
	return nil
}

// FirmwareVersion queries the controller's firmware version.
func (d *Device) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.send(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("GetFirmwareVersion command failed: %w", err)
	}
	if err := expectCode(res, cmdGetFirmwareVersion); err != nil {
		return nil, err
	}
	if len(res) < 5 {
		return nil, fmt.Errorf("%w: firmware version response too short (%d bytes)", ErrUnexpectedResponse, len(res))
	}
	return &FirmwareVersion{IC: res[1], Version: res[2], Revision: res[3], Support: res[4]}, nil
}

// DetectTarget lists one ISO14443A target at 106 kbps and selects it for
// subsequent block operations.
func (d *Device) DetectTarget(ctx context.Context) (*Target, error) {
	// Clear a previous selection, a halted tag would otherwise not answer
	if err := d.Release(ctx); err != nil {
		tt2.Debugf("InRelease failed, continuing anyway: %v", err)
	}

	res, err := d.send(ctx, cmdInListPassiveTarget, []byte{0x01, brTy106TypeA})
	if err != nil {
		return nil, fmt.Errorf("InListPassiveTarget command failed: %w", err)
	}
	tt2.Debugf("InListPassiveTarget response (%d bytes): %X", len(res), res)
	if err := expectCode(res, cmdInListPassiveTarget); err != nil {
		return nil, err
	}

	target, err := parseTarget(res[1:])
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.target = target.Number
	d.mu.Unlock()
	return target, nil
}

// parseTarget decodes NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID1.
func parseTarget(data []byte) (*Target, error) {
	if len(data) == 0 || data[0] == 0 {
		return nil, ErrNoTarget
	}
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: target data too short (%d bytes)", ErrUnexpectedResponse, len(data))
	}

	uidLen := int(data[5])
	if len(data) < 6+uidLen {
		return nil, fmt.Errorf("%w: UID length %d exceeds response", ErrUnexpectedResponse, uidLen)
	}
	return &Target{
		Number: data[1],
		ATQA:   [2]byte{data[2], data[3]},
		SAK:    data[4],
		UID:    append([]byte(nil), data[6:6+uidLen]...),
	}, nil
}

// Release deselects all targets.
func (d *Device) Release(ctx context.Context) error {
	res, err := d.send(ctx, cmdInRelease, []byte{0x00})
	if err != nil {
		return fmt.Errorf("InRelease command failed: %w", err)
	}
	_, err = statusPayload(res, cmdInRelease, "release", -1)
	return err
}

// ReadBlock reads 16 bytes starting at block from the selected target.
func (d *Device) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	data, err := d.exchange(ctx, "read", int(block), []byte{tagCmdRead, block})
	if err != nil {
		return nil, err
	}
	if len(data) < tt2.ReadSize {
		return nil, fmt.Errorf("%w: read block %d returned %d bytes", tt2.ErrInvalidBlockData, block, len(data))
	}
	return data[:tt2.ReadSize], nil
}

// WriteBlock writes 4 bytes to block of the selected target.
func (d *Device) WriteBlock(ctx context.Context, block uint8, data []byte) error {
	if len(data) != tt2.BlockSize {
		return fmt.Errorf("%w: block data must be %d bytes, got %d", tt2.ErrInvalidBlockData, tt2.BlockSize, len(data))
	}

	cmd := make([]byte, 0, 2+tt2.BlockSize)
	cmd = append(cmd, tagCmdWrite, block)
	cmd = append(cmd, data...)
	_, err := d.exchange(ctx, "write", int(block), cmd)
	return err
}

// exchange sends a tag command to the selected target with InDataExchange.
func (d *Device) exchange(ctx context.Context, op string, block int, tagCmd []byte) ([]byte, error) {
	d.mu.Lock()
	target := d.target
	d.mu.Unlock()

	args := make([]byte, 0, 1+len(tagCmd))
	args = append(args, target)
	args = append(args, tagCmd...)

	res, err := d.send(ctx, cmdInDataExchange, args)
	if err != nil {
		return nil, fmt.Errorf("failed to send data exchange command: %w", err)
	}
	return statusPayload(res, cmdInDataExchange, op, block)
}

// send runs one command, bounded by CommandTimeout when ctx has no deadline.
func (d *Device) send(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok && d.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.CommandTimeout)
		defer cancel()
	}
	return d.transport.SendCommand(ctx, cmd, args)
}

// expectCode checks the response code of a reply without a status byte.
func expectCode(res []byte, cmd byte) error {
	if len(res) == 0 {
		return fmt.Errorf("%w: empty response to 0x%02X", ErrUnexpectedResponse, cmd)
	}
	if res[0] == errorTFI {
		return fmt.Errorf("%w: error frame for command 0x%02X", ErrUnexpectedResponse, cmd)
	}
	if res[0] != cmd+1 {
		return fmt.Errorf("%w: response code %02X, expected %02X", ErrUnexpectedResponse, res[0], cmd+1)
	}
	return nil
}

// statusPayload checks a reply of the form code status payload. A non-zero
// status, or an error frame, becomes a *tt2.DeviceError carrying the status.
func statusPayload(res []byte, cmd byte, op string, block int) ([]byte, error) {
	if len(res) > 0 && res[0] == errorTFI {
		status := errorTFI
		if len(res) > 1 {
			status = int(res[1])
		}
		return nil, &tt2.DeviceError{Op: op, Block: block, Status: status}
	}
	if len(res) < 2 || res[0] != cmd+1 {
		return nil, fmt.Errorf("%w: % X", ErrUnexpectedResponse, res)
	}
	if res[1] != 0x00 {
		return nil, &tt2.DeviceError{Op: op, Block: block, Status: int(res[1])}
	}
	return res[2:], nil
}
