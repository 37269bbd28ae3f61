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

// Package config loads the tt2tool YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in device.transport
const (
	TransportUART = "uart"
	TransportI2C  = "i2c"
	TransportSPI  = "spi"
	TransportPCSC = "pcsc"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the tt2tool configuration.
type Config struct {
	Device     DeviceConfig   `yaml:"device"`
	SessionLog string         `yaml:"session_log"`
	Timeouts   TimeoutsConfig `yaml:"timeouts"`
	Retry      RetryConfig    `yaml:"retry"`
	Debug      bool           `yaml:"debug"`
}

// DeviceConfig selects the reader. An empty path with the uart transport
// means auto-detection.
type DeviceConfig struct {
	Transport   string `yaml:"transport"`
	Path        string `yaml:"path"`
	ReaderIndex int    `yaml:"reader_index"`
}

// TimeoutsConfig holds durations such as "1s" or "500ms".
type TimeoutsConfig struct {
	Command time.Duration `yaml:"command"`
	Emulate time.Duration `yaml:"emulate"`
	// Wait bounds how long commands wait for a tag to be presented
	Wait time.Duration `yaml:"wait"`
}

// RetryConfig controls whole-operation retries in the CLI.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{Transport: TransportUART},
		Timeouts: TimeoutsConfig{
			Command: time.Second,
			Emulate: 30 * time.Second,
			Wait:    30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     50 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected and a
// relative session_log directory is resolved against the file's directory.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.SessionLog = resolvePath(filepath.Dir(path), cfg.SessionLog)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and transport requirements.
func (c *Config) Validate() error {
	c.Device.Transport = strings.ToLower(strings.TrimSpace(c.Device.Transport))
	switch c.Device.Transport {
	case TransportUART, TransportPCSC:
	case TransportI2C, TransportSPI:
		if strings.TrimSpace(c.Device.Path) == "" {
			return fmt.Errorf("%w: device.path is required for %s", ErrInvalid, c.Device.Transport)
		}
	default:
		return fmt.Errorf("%w: device.transport must be uart, i2c, spi or pcsc, got %q",
			ErrInvalid, c.Device.Transport)
	}

	if c.Device.ReaderIndex < 0 {
		return fmt.Errorf("%w: device.reader_index must be >= 0", ErrInvalid)
	}
	if c.Timeouts.Command < 0 || c.Timeouts.Emulate < 0 || c.Timeouts.Wait < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalid)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be >= 1", ErrInvalid)
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("%w: retry.backoff must not be negative", ErrInvalid)
	}
	return nil
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
