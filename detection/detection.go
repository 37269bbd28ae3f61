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

// Package detection finds PN532 readers attached through USB serial
// adapters.
package detection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/pn532"
	"github.com/ZaparooProject/go-tt2/transport/uart"
	"go.bug.st/serial/enumerator"
)

// ErrNoDevicesFound indicates no PN532 answered on any candidate port
var ErrNoDevicesFound = errors.New("no PN532 devices found")

// Port is a serial port with its USB descriptor, when it has one.
type Port struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

func (p Port) String() string {
	if p.VIDPID == "" {
		return p.Path
	}
	return fmt.Sprintf("%s [%s %s]", p.Path, p.VIDPID, p.Product)
}

// Options configures detection
type Options struct {
	// USB VID:PID pairs never probed, e.g. "1234:5678"
	Blocklist []string
	// Device paths never probed
	IgnorePaths []string
	// ProbeTimeout bounds the firmware query on each port
	ProbeTimeout time.Duration
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{ProbeTimeout: 2 * time.Second}
}

// ProbeFunc asks the device at path for its firmware version.
type ProbeFunc func(ctx context.Context, path string) (*pn532.FirmwareVersion, error)

// knownAdapters are USB serial bridges common on PN532 boards
var knownAdapters = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

// SerialPorts lists the serial ports of the host.
func SerialPorts() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		p := Port{Path: d.Name, IsUSB: d.IsUSB, Product: d.Product, SerialNumber: d.SerialNumber}
		if d.IsUSB && d.VID != "" && d.PID != "" {
			p.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// IsLikelyPN532 reports whether the port looks like a PN532 board from its
// descriptor alone.
func IsLikelyPN532(p Port) bool {
	if slices.Contains(knownAdapters, strings.ToUpper(p.VIDPID)) {
		return true
	}
	product := strings.ToLower(p.Product)
	for _, keyword := range []string{"pn532", "nfc", "rfid", "13.56"} {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if strings.ToUpper(strings.TrimSpace(blocked)) == vidpid {
			return true
		}
	}
	return false
}

// IsPathIgnored checks if a device path should be ignored. Paths are
// compared cleaned and case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	normalized := strings.ToLower(filepath.Clean(devicePath))
	for _, ignore := range ignorePaths {
		if ignore != "" && strings.ToLower(filepath.Clean(ignore)) == normalized {
			return true
		}
	}
	return false
}

// Candidates drops blocked, ignored and non-USB ports and puts likely
// PN532 boards first.
func Candidates(ports []Port, opts *Options) []Port {
	var likely, other []Port
	for _, p := range ports {
		if !p.IsUSB || IsBlocked(p.VIDPID, opts.Blocklist) || IsPathIgnored(p.Path, opts.IgnorePaths) {
			continue
		}
		if IsLikelyPN532(p) {
			likely = append(likely, p)
		} else {
			other = append(other, p)
		}
	}
	return append(likely, other...)
}

// Find probes the candidate ports one at a time and returns the first
// that answers. Each port gets a single attempt.
func Find(ctx context.Context, ports []Port, opts *Options, probe ProbeFunc) (Port, *pn532.FirmwareVersion, error) {
	for _, p := range Candidates(ports, opts) {
		if err := ctx.Err(); err != nil {
			return Port{}, nil, err
		}

		probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
		fw, err := probe(probeCtx, p.Path)
		cancel()
		if err != nil {
			tt2.Debugf("detection: %s: %v", p, err)
			continue
		}
		tt2.Debugf("detection: %s answered as %s", p, fw)
		return p, fw, nil
	}
	return Port{}, nil, ErrNoDevicesFound
}

// FindUART enumerates the host's serial ports and returns the first PN532.
func FindUART(ctx context.Context, opts *Options) (Port, *pn532.FirmwareVersion, error) {
	ports, err := SerialPorts()
	if err != nil {
		return Port{}, nil, err
	}
	return Find(ctx, ports, opts, ProbeUART)
}

// ProbeUART opens path, asks for the firmware version and closes it again.
func ProbeUART(ctx context.Context, path string) (*pn532.FirmwareVersion, error) {
	transport, err := uart.New(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = transport.Close() }()

	return pn532.New(transport, nil).FirmwareVersion(ctx)
}
