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

package main

import (
	"context"
	"fmt"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/detection"
	"github.com/ZaparooProject/go-tt2/internal/config"
	"github.com/ZaparooProject/go-tt2/pcsc"
	"github.com/ZaparooProject/go-tt2/pn532"
	"github.com/ZaparooProject/go-tt2/transport/i2c"
	"github.com/ZaparooProject/go-tt2/transport/spi"
	"github.com/ZaparooProject/go-tt2/transport/uart"
)

// reader is a block device that can select the tag in its field.
type reader interface {
	tt2.Device
	SelectTag(ctx context.Context) ([]byte, error)
	Close() error
}

// openReader is replaced in tests.
var openReader = openConfiguredReader

func openConfiguredReader(ctx context.Context, cfg *config.Config) (reader, error) {
	switch cfg.Device.Transport {
	case config.TransportPCSC:
		dev, closeFn, err := pcsc.Open(cfg.Device.ReaderIndex)
		if err != nil {
			return nil, err
		}
		return &pcscReader{Device: dev, closeFn: closeFn}, nil
	case config.TransportUART, config.TransportI2C, config.TransportSPI:
		path := cfg.Device.Path
		if path == "" {
			opts := detection.DefaultOptions()
			port, fw, err := detection.FindUART(ctx, &opts)
			if err != nil {
				return nil, fmt.Errorf("failed to auto-detect PN532: %w", err)
			}
			tt2.Debugf("auto-detected %s at %s", fw, port)
			path = port.Path
		}
		transport, err := newTransport(cfg.Device.Transport, path)
		if err != nil {
			return nil, err
		}
		devCfg := pn532.DefaultConfig()
		devCfg.CommandTimeout = cfg.Timeouts.Command
		dev := pn532.New(transport, devCfg)
		if err := dev.Init(ctx); err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("failed to initialize PN532: %w", err)
		}
		if cfg.Debug {
			if fw, fwErr := dev.FirmwareVersion(ctx); fwErr == nil {
				tt2.Debugf("PN532 firmware: %s", fw)
			}
		}
		return &pn532Reader{Device: dev}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Device.Transport)
	}
}

func newTransport(kind, path string) (pn532.Transport, error) {
	switch kind {
	case config.TransportI2C:
		transport, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
		}
		return transport, nil
	case config.TransportSPI:
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	}
	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

type pn532Reader struct {
	*pn532.Device
}

func (r *pn532Reader) SelectTag(ctx context.Context) ([]byte, error) {
	target, err := r.DetectTarget(ctx)
	if err != nil {
		return nil, err
	}
	tt2.Debugf("target %d: UID=%s SAK=%02X", target.Number, target.UIDString(), target.SAK)
	return target.UID, nil
}

type pcscReader struct {
	*pcsc.Device
	closeFn func()
}

func (r *pcscReader) SelectTag(ctx context.Context) ([]byte, error) {
	return r.UID(ctx)
}

func (r *pcscReader) Close() error {
	r.closeFn()
	return nil
}
