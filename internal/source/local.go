/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/schedule"
)

const localListingTTL = 10 * time.Second

// Local serves tracks from a filesystem directory tree. The directory
// listing is cached briefly so a busy engine does not re-walk the tree for
// every track.
type Local struct {
	exts     map[string]bool
	rotation *rotation
	logger   zerolog.Logger

	mu      sync.Mutex
	listing map[string]localListing // key = directory
}

type localListing struct {
	files   []string
	fetched time.Time
}

// NewLocal creates the local source for the configured stream MIME type.
func NewLocal(mimeType string, logger zerolog.Logger) *Local {
	return &Local{
		exts:     ExtensionsForMIME(mimeType),
		rotation: newRotation(),
		logger:   logger.With().Str("component", "source.local").Logger(),
		listing:  make(map[string]localListing),
	}
}

// Kind implements Source.
func (l *Local) Kind() schedule.SourceKind { return schedule.SourceLocal }

// Available implements Source. The local source is always usable; an empty
// or missing directory surfaces as ErrExhausted per key instead.
func (l *Local) Available() bool { return true }

// NextTrack implements Source.
func (l *Local) NextTrack(ctx context.Context, key string) (*Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := l.files(key)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrUnavailable, key, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no audio files under %s", ErrExhausted, key)
	}

	path := files[l.rotation.Pick(key, files)]

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrUnavailable, path, err)
	}

	track := &Track{
		Meta: Meta{
			ID:       path,
			Title:    titleFor(f, path),
			Kind:     schedule.SourceLocal,
			Key:      key,
			ByteSize: info.Size(),
		},
		Body: f,
	}

	l.logger.Debug().Str("path", path).Int64("bytes", track.ByteSize).Msg("selected local track")
	return track, nil
}

func (l *Local) files(dir string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.listing[dir]; ok && time.Since(cached.fetched) < localListingTTL {
		return cached.files, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && l.exts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.listing[dir] = localListing{files: files, fetched: time.Now()}
	return files, nil
}

// titleFor reads embedded tags for a display title, falling back to the
// file stem. The reader is rewound so playback starts at byte zero.
func titleFor(f io.ReadSeeker, path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	m, err := tag.ReadFrom(f)
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		return stem
	}
	if err != nil || m.Title() == "" {
		return stem
	}
	if m.Artist() != "" {
		return m.Artist() + " - " + m.Title()
	}
	return m.Title()
}
