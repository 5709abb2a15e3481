/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock re-exports the process clock so time-sensitive components
// (pacing, schedule resolution) can run against a mock in tests.
package clock

import "github.com/benbjohnson/clock"

// Clock is the time source used by the engine and pacer.
type Clock = clock.Clock

// New returns the real wall clock.
func New() Clock { return clock.New() }

// NewMock returns a controllable clock for tests.
func NewMock() *clock.Mock { return clock.NewMock() }
