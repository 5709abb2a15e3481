/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package source defines the track source capability the broadcast engine
// consumes: given a key (a directory or a channel), yield the next playable
// track. Variants: local filesystem and Telegram channel.
package source

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/friendsincode/yurets_fm/internal/schedule"
)

var (
	// ErrExhausted indicates the source has no playable item for the key.
	ErrExhausted = errors.New("source exhausted")

	// ErrUnavailable indicates a transient access failure (filesystem error,
	// network error, missing session credentials).
	ErrUnavailable = errors.New("source unavailable")
)

// Meta is track metadata without the byte handle, safe to share with the
// now-playing state and the play history.
type Meta struct {
	ID       string
	Title    string
	Kind     schedule.SourceKind
	Key      string
	ByteSize int64         // 0 when unknown
	Duration time.Duration // 0 when unknown
}

// Track is one playable item. The engine owns it for the duration of its
// playback and must close Body exactly once.
type Track struct {
	Meta
	Body io.ReadCloser
}

// Source yields tracks for a key.
type Source interface {
	Kind() schedule.SourceKind

	// Available reports whether the source can be used at all. An
	// unavailable source (e.g. Telegram without a session) makes the engine
	// fall back to the local variant for slots that requested it.
	Available() bool

	// NextTrack selects and opens the next track for the key. Returns
	// ErrExhausted when no playable item exists and ErrUnavailable on
	// transient failures.
	NextTrack(ctx context.Context, key string) (*Track, error)
}

// ExtensionsForMIME maps the configured stream MIME type to the playable
// file extensions, matching what listeners are told they receive.
func ExtensionsForMIME(mimeType string) map[string]bool {
	if mimeType == "audio/ogg" {
		return map[string]bool{".ogg": true, ".opus": true}
	}
	return map[string]bool{".mp3": true}
}
