/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine drives the master broadcast loop: resolve the active
// schedule slot, pull the next track from its source, pace the bytes to
// real time, and fan them out. The loop never dies; when every source
// fails it stalls silently and retries after a backoff.
package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/clock"
	"github.com/friendsincode/yurets_fm/internal/events"
	"github.com/friendsincode/yurets_fm/internal/schedule"
	"github.com/friendsincode/yurets_fm/internal/source"
	"github.com/friendsincode/yurets_fm/internal/telemetry"
)

// interTrackPause keeps a permanently failing loop from spinning hot even
// before the backoff applies.
const interTrackPause = 50 * time.Millisecond

// Broadcaster is the fan-out the engine publishes paced chunks to.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Options configures the engine.
type Options struct {
	ChunkSize        int
	Backoff          time.Duration
	LocalFallbackKey string // local key used when a slot's source is unusable
}

// Engine is the long-lived producer. One Run loop per process.
type Engine struct {
	resolver    *schedule.Resolver
	sources     map[schedule.SourceKind]source.Source
	pacer       *Pacer
	state       *State
	broadcaster Broadcaster
	bus         *events.Bus
	clk         clock.Clock
	logger      zerolog.Logger
	opts        Options
}

// New wires the engine. The sources map must contain the local variant;
// other variants are optional and fall back to local when absent or
// unavailable.
func New(resolver *schedule.Resolver, sources map[schedule.SourceKind]source.Source, pacer *Pacer, state *State, broadcaster Broadcaster, bus *events.Bus, clk clock.Clock, logger zerolog.Logger, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 65536
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &Engine{
		resolver:    resolver,
		sources:     sources,
		pacer:       pacer,
		state:       state,
		broadcaster: broadcaster,
		bus:         bus,
		clk:         clk,
		logger:      logger.With().Str("component", "engine").Logger(),
		opts:        opts,
	}
}

// State exposes the playback state for the now-playing surface.
func (e *Engine) State() *State { return e.state }

// Run executes the broadcast loop until ctx is cancelled. Always returns
// ctx.Err(); no track or source failure terminates the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("broadcast engine started")

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info().Msg("broadcast engine stopped")
			return err
		}

		slot := e.resolver.Resolve(e.clk.Now())

		track, err := e.load(ctx, slot)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			e.logger.Warn().Err(err).
				Str("source", string(slot.Source)).
				Str("key", slot.Key).
				Time("at", e.clk.Now()).
				Msg("no track available, backing off")
			e.sleep(ctx, e.opts.Backoff)
			continue
		}

		e.stream(ctx, track)
		e.sleep(ctx, interTrackPause)
	}
}

// load picks the slot's source and asks it for a track, falling back to the
// local variant when the requested source is unavailable or fails.
// Transient failures get a couple of in-place retries before the engine
// falls back to loop-level backoff.
func (e *Engine) load(ctx context.Context, slot schedule.Slot) (*source.Track, error) {
	var track *source.Track
	err := retry.Do(
		func() error {
			t, err := e.loadOnce(ctx, slot)
			if err != nil {
				return err
			}
			track = t
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(e.opts.Backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return track, nil
}

func (e *Engine) loadOnce(ctx context.Context, slot schedule.Slot) (*source.Track, error) {
	src, key := e.pick(slot)

	track, err := src.NextTrack(ctx, key)
	if err == nil {
		return track, nil
	}
	if src.Kind() == schedule.SourceLocal {
		return nil, err
	}

	// Last resort: the local variant with its default key.
	e.logger.Warn().Err(err).
		Str("source", string(src.Kind())).
		Str("key", key).
		Msg("source failed, falling back to local")
	e.publish(events.EventSourceFallback, events.Payload{
		"from": string(src.Kind()),
		"key":  key,
	})
	telemetry.SourceFallbacks.WithLabelValues(string(src.Kind())).Inc()

	local, ok := e.sources[schedule.SourceLocal]
	if !ok {
		return nil, err
	}
	return local.NextTrack(ctx, e.opts.LocalFallbackKey)
}

// pick maps a slot to a usable source and key, downgrading unavailable
// sources to the local variant up front so construction-time failures (no
// Telegram session) never cost a track attempt.
func (e *Engine) pick(slot schedule.Slot) (source.Source, string) {
	if src, ok := e.sources[slot.Source]; ok && src.Available() {
		return src, slot.Key
	}

	if slot.Source != schedule.SourceLocal {
		e.logger.Debug().
			Str("source", string(slot.Source)).
			Str("key", slot.Key).
			Msg("slot source unavailable, using local fallback")
	}
	return e.sources[schedule.SourceLocal], e.opts.LocalFallbackKey
}

// stream delivers one track: publish state, then read-broadcast-pace until
// the stream ends. A mid-track read failure aborts the track and returns;
// the caller re-resolves immediately.
func (e *Engine) stream(ctx context.Context, track *source.Track) {
	defer track.Body.Close()

	rate := e.pacer.BytesPerSecond(track.Meta)
	startedAt := e.clk.Now()
	e.state.SetTrack(track.Meta, startedAt, rate)

	e.logger.Info().
		Str("title", track.Title).
		Str("source", string(track.Kind)).
		Str("key", track.Key).
		Float64("rate_bps", rate).
		Msg("track started")
	telemetry.TracksStarted.WithLabelValues(string(track.Kind)).Inc()
	e.publish(events.EventTrackStarted, events.Payload{
		"id":               track.ID,
		"title":            track.Title,
		"source":           string(track.Kind),
		"key":              track.Key,
		"byte_size":        track.ByteSize,
		"duration_seconds": track.Duration.Seconds(),
		"started_at":       startedAt,
	})

	buf := make([]byte, e.opts.ChunkSize)
	var sent uint64

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := track.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			e.broadcaster.Broadcast(chunk)
			e.state.AddBytes(uint64(n))

			// Release first, then block until the chunk "should" have
			// played out. Listeners hear the track start immediately.
			sent += uint64(n)
			if waitErr := e.pacer.Wait(ctx, startedAt, sent, rate); waitErr != nil {
				return // shutting down mid-sleep
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Error().Err(err).
					Str("title", track.Title).
					Str("source", string(track.Kind)).
					Uint64("bytes_sent", sent).
					Msg("mid-track read failure, advancing")
			}
			e.publish(events.EventTrackEnded, events.Payload{
				"id":         track.ID,
				"bytes_sent": sent,
				"clean":      errors.Is(err, io.EOF),
			})
			return
		}
	}
}

// sleep waits on the engine clock, returning early on cancellation.
func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := e.clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (e *Engine) publish(eventType events.EventType, payload events.Payload) {
	if e.bus != nil {
		e.bus.Publish(eventType, payload)
	}
}
