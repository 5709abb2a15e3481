/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"time"

	"github.com/friendsincode/yurets_fm/internal/clock"
	"github.com/friendsincode/yurets_fm/internal/source"
)

// Pacer throttles byte delivery to real playback time. Waits are computed
// from total elapsed time versus total expected time, never from
// accumulated per-chunk sleeps, so scheduling jitter cannot drift a long
// track.
type Pacer struct {
	clk         clock.Clock
	assumedKbps float64
}

// NewPacer creates a pacer. assumedKbps is the bitrate used when a track
// carries no usable size/duration metadata.
func NewPacer(clk clock.Clock, assumedKbps float64) *Pacer {
	return &Pacer{clk: clk, assumedKbps: assumedKbps}
}

// BytesPerSecond returns the delivery rate for a track: exact when both
// byte size and duration are known, otherwise derived from the assumed
// bitrate.
func (p *Pacer) BytesPerSecond(meta source.Meta) float64 {
	if meta.ByteSize > 0 && meta.Duration > 0 {
		return float64(meta.ByteSize) / meta.Duration.Seconds()
	}
	return p.assumedKbps * 1000 / 8
}

// Wait blocks until bytesSent bytes "should" have been delivered at rate,
// measured from startedAt. Returns immediately when delivery is on or
// behind schedule. Cancellable via ctx so shutdown never waits out a sleep.
func (p *Pacer) Wait(ctx context.Context, startedAt time.Time, bytesSent uint64, rate float64) error {
	if rate <= 0 {
		return nil
	}

	expected := time.Duration(float64(bytesSent) / rate * float64(time.Second))
	elapsed := p.clk.Since(startedAt)

	delay := expected - elapsed
	if delay <= 0 {
		return nil
	}

	timer := p.clk.Timer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
