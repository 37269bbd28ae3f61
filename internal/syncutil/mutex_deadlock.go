//go:build deadlock

// Package syncutil provides the mutexes used across go-tt2.
// This file is compiled when building with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is a deadlock.Mutex that reports lock order inversions and
// long-held locks.
type Mutex struct {
	deadlock.Mutex
}
