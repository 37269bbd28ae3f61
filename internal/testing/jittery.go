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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitteryConnection.
type JitterConfig struct {
	// MaxLatency is the upper bound of the random delay before each read
	MaxLatency time.Duration
	// MaxChunk caps the bytes returned by one read (0 = no cap)
	MaxChunk int
	// Seed makes the jitter reproducible when non-zero
	Seed uint64
}

// DefaultJitterConfig returns a configuration that splits every response
// into reads of one to three bytes with up to 2ms of latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency: 2 * time.Millisecond,
		MaxChunk:   3,
		Seed:       42,
	}
}

// JitteryConnection wraps an io.ReadWriter to behave like a USB-UART bridge
// that delivers data late and in fragments. Writes pass through untouched.
type JitteryConnection struct {
	backend io.ReadWriter
	rng     *rand.Rand
	config  JitterConfig
}

// NewJitteryConnection wraps a backend io.ReadWriter with jitter simulation.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
	}
}

// Write passes writes through to the backend without modification.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read reads at most a random fragment of the pending data after a random
// delay.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if j.config.MaxChunk > 0 && len(buf) > 1 {
		limit := 1 + j.rng.IntN(j.config.MaxChunk)
		if limit < len(buf) {
			buf = buf[:limit]
		}
	}
	return j.backend.Read(buf) //nolint:wrapcheck // Pass-through wrapper
}
