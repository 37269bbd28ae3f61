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

package polling

import (
	"encoding/hex"
	"time"
)

// CardState tracks the tag on a reader
type CardState struct {
	LastSeenTime time.Time
	LastUID      string
	Present      bool
}

// seen records a poll that found uid and reports whether it is a new tag.
func (cs *CardState) seen(uid []byte, now time.Time) bool {
	id := hex.EncodeToString(uid)
	isNew := !cs.Present || cs.LastUID != id
	cs.Present = true
	cs.LastUID = id
	cs.LastSeenTime = now
	return isNew
}

// missed records an empty poll and reports whether the tag just counted as
// removed.
func (cs *CardState) missed(now time.Time, removalTimeout time.Duration) bool {
	if !cs.Present || now.Sub(cs.LastSeenTime) < removalTimeout {
		return false
	}
	cs.TransitionToIdle()
	return true
}

// TransitionToIdle resets to idle state
func (cs *CardState) TransitionToIdle() {
	cs.Present = false
	cs.LastUID = ""
	cs.LastSeenTime = time.Time{}
}

// Is reports whether uid is the tag currently present.
func (cs *CardState) Is(uid []byte) bool {
	return cs.Present && cs.LastUID == hex.EncodeToString(uid)
}
