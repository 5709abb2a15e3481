/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sync/atomic"
	"time"

	"github.com/friendsincode/yurets_fm/internal/clock"
	"github.com/friendsincode/yurets_fm/internal/source"
)

// nowPlaying is one track's playback state. A new value is swapped in
// atomically at every track start, and the byte counter lives inside the
// value, so a reader never pairs one track's metadata with another track's
// byte count.
type nowPlaying struct {
	meta      source.Meta
	startedAt time.Time
	rate      float64 // bytes per second
	bytes     atomic.Uint64
}

// Snapshot is the read side of the playback state.
type Snapshot struct {
	Track              source.Meta
	StartedAt          time.Time
	PositionSeconds    float64
	BytesSent          uint64
	BitrateBytesPerSec float64
}

// State is written by the single engine goroutine and read by any number of
// now-playing queries.
type State struct {
	clk     clock.Clock
	cur     atomic.Pointer[nowPlaying]
	started atomic.Uint64 // total tracks started
}

// NewState creates playback state bound to the engine clock.
func NewState(clk clock.Clock) *State {
	return &State{clk: clk}
}

// SetTrack publishes a new current track. The fresh value carries a zeroed
// byte counter.
func (s *State) SetTrack(meta source.Meta, startedAt time.Time, rate float64) {
	s.cur.Store(&nowPlaying{meta: meta, startedAt: startedAt, rate: rate})
	s.started.Add(1)
}

// AddBytes accounts delivered bytes for the current track.
func (s *State) AddBytes(n uint64) {
	if cur := s.cur.Load(); cur != nil {
		cur.bytes.Add(n)
	}
}

// TracksStarted returns how many tracks the engine has started.
func (s *State) TracksStarted() uint64 { return s.started.Load() }

// Snapshot returns the current playback state. ok is false before the
// first track starts. Position is always derived from the clock, never
// stored.
func (s *State) Snapshot() (Snapshot, bool) {
	cur := s.cur.Load()
	if cur == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Track:              cur.meta,
		StartedAt:          cur.startedAt,
		PositionSeconds:    s.clk.Since(cur.startedAt).Seconds(),
		BytesSent:          cur.bytes.Load(),
		BitrateBytesPerSec: cur.rate,
	}, true
}
