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

// Package polling watches a reader for tags arriving and leaving.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/internal/syncutil"
)

// Selector selects the tag in a reader's field and returns its UID. Any
// error other than a context error means no tag was found this cycle.
type Selector interface {
	SelectTag(ctx context.Context) ([]byte, error)
}

// Session polls a reader and reports tags as they come and go.
type Session struct {
	selector Selector
	config   *Config

	// OnCardDetected runs once per tag arrival. An error stops Start.
	OnCardDetected func(ctx context.Context, uid []byte) error
	// OnCardRemoved runs when the present tag has gone unseen for
	// CardRemovalTimeout.
	OnCardRemoved func()

	state CardState
	mu    syncutil.Mutex
}

// NewSession creates a polling session for selector.
func NewSession(selector Selector, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{selector: selector, config: config}
}

// GetState returns a copy of the current card state.
func (s *Session) GetState() CardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start polls until ctx is done or a callback fails.
func (s *Session) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) poll(ctx context.Context) error {
	uid, err := s.selector.SelectTag(ctx)
	if isContextError(err) {
		return err
	}
	now := time.Now()

	if err != nil {
		s.mu.Lock()
		removed := s.state.missed(now, s.config.CardRemovalTimeout)
		s.mu.Unlock()
		if removed {
			tt2.Debugln("polling: tag removed")
			if s.OnCardRemoved != nil {
				s.OnCardRemoved()
			}
		}
		return nil
	}

	s.mu.Lock()
	isNew := s.state.seen(uid, now)
	s.mu.Unlock()
	if !isNew || s.OnCardDetected == nil {
		return nil
	}

	tt2.Debugf("polling: tag %X detected", uid)
	if err := s.OnCardDetected(ctx, uid); err != nil {
		return fmt.Errorf("card detected callback: %w", err)
	}
	return nil
}

// WaitForTag polls until a tag is present and returns its UID.
func WaitForTag(ctx context.Context, selector Selector, config *Config) ([]byte, error) {
	if config == nil {
		config = DefaultConfig()
	}

	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	for {
		uid, err := selector.SelectTag(ctx)
		if err == nil {
			return uid, nil
		}
		if isContextError(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
