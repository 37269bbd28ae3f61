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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:paralleltest // modifies the package session log
func TestSessionLog(t *testing.T) {
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "tt2_"))
	assert.Equal(t, path, GetSessionLogPath())

	Debugf("block %d: %X", 4, []byte{0xE1, 0x10})
	Debugln("plain", "message")

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
	require.NoError(t, CloseSessionLog(), "closing twice is a no-op")

	content, err := os.ReadFile(path) //nolint:gosec // test file in TempDir
	require.NoError(t, err)
	log := string(content)
	assert.Contains(t, log, "=== TT2 Debug Session Log ===")
	assert.Contains(t, log, "DEBUG: block 4: E110")
	assert.Contains(t, log, "DEBUG: plainmessage")
	assert.Contains(t, log, "=== Session ended ===")
}

//nolint:paralleltest // modifies the package session log
func TestSetSessionLogWriter(t *testing.T) {
	var buf bytes.Buffer
	SetSessionLogWriter(&buf)

	Debugf("first")
	SetSessionLogWriter(nil)
	Debugf("second")

	assert.Contains(t, buf.String(), "DEBUG: first\n")
	assert.NotContains(t, buf.String(), "second")
}

//nolint:paralleltest // modifies the package session log
func TestInitSessionLog_BadDirectory(t *testing.T) {
	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session log")
}
