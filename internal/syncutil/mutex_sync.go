//go:build !deadlock

// Package syncutil provides the mutexes used across go-tt2. Builds use the
// standard library types unless the deadlock tag is set.
package syncutil

import "sync"

// Mutex is a sync.Mutex. Build with -tags=deadlock for lock order checking.
//
//nolint:gocritic // embedding exposes Lock/Unlock/TryLock directly
type Mutex struct {
	sync.Mutex
}
