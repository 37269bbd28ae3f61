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
	"context"
	"errors"

	"github.com/ZaparooProject/go-tt2/internal/syncutil"
)

// Call is one command seen by a MockTransport.
type Call struct {
	Args []byte
	Cmd  byte
}

// MockTransport provides a scripted PN532 transport for device tests.
// Responses queued for a command are returned in order; once the queue is
// empty the fixed response for that command is used, then the default
// [cmd+1, 0x00].
type MockTransport struct {
	responses map[byte][]byte
	queued    map[byte][][]byte
	errorMap  map[byte]error
	calls     []Call
	mu        syncutil.Mutex
	closed    bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[byte][]byte),
		queued:    make(map[byte][][]byte),
		errorMap:  make(map[byte]error),
	}
}

// SendCommand records the call and returns the scripted response.
func (m *MockTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("transport not connected")
	}
	m.calls = append(m.calls, Call{Cmd: cmd, Args: append([]byte(nil), args...)})

	if err, ok := m.errorMap[cmd]; ok {
		return nil, err
	}
	if q := m.queued[cmd]; len(q) > 0 {
		m.queued[cmd] = q[1:]
		return append([]byte(nil), q[0]...), nil
	}
	if response, ok := m.responses[cmd]; ok {
		return append([]byte(nil), response...), nil
	}
	return []byte{cmd + 1, 0x00}, nil
}

// Close marks the transport as closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetResponse configures a fixed response for a specific command
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = response
}

// QueueResponse appends a one-shot response for a specific command
func (m *MockTransport) QueueResponse(cmd byte, response []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[cmd] = append(m.queued[cmd], response)
}

// SetError configures an error to be returned for a specific command
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMap[cmd] = err
}

// ClearError removes error injection for a command
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errorMap, cmd)
}

// Calls returns a copy of the recorded calls
func (m *MockTransport) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsFor returns the argument lists of every call to cmd
func (m *MockTransport) CallsFor(cmd byte) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var args [][]byte
	for _, c := range m.calls {
		if c.Cmd == cmd {
			args = append(args, c.Args)
		}
	}
	return args
}

// IsClosed reports whether Close was called
func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
