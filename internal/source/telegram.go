/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/cache"
	"github.com/friendsincode/yurets_fm/internal/schedule"
)

// ChannelItem is one audio-bearing message in a channel, as reported by the
// browser. The payload itself stays remote until Download is called.
type ChannelItem struct {
	MessageID int           `json:"message_id"`
	Title     string        `json:"title"`
	Filename  string        `json:"filename"`
	ByteSize  int64         `json:"byte_size"`
	Duration  time.Duration `json:"duration"`
}

// ChannelBrowser is the narrow contract the Telegram source needs from the
// MTProto client: list media messages in a channel and fetch one payload as
// a stream. Implemented by the telegram package; faked in tests.
type ChannelBrowser interface {
	Ready() bool
	ListAudio(ctx context.Context, channel string, limit int) ([]ChannelItem, error)
	Download(ctx context.Context, channel string, messageID int) (io.ReadCloser, error)
	ChannelTitle(ctx context.Context, channel string) (string, error)
}

// Telegram serves tracks from channel media messages. Channel listings are
// cached (memory, plus Redis when configured) and refreshed on a TTL rather
// than per call.
type Telegram struct {
	browser    ChannelBrowser
	exts       map[string]bool
	fetchLimit int
	refresh    time.Duration
	cache      *cache.Cache
	rotation   *rotation
	logger     zerolog.Logger
}

// NewTelegram creates the Telegram source. A nil browser (no credentials or
// failed session) yields a source that reports itself unavailable, which the
// engine treats as "fall back to local".
func NewTelegram(browser ChannelBrowser, mimeType string, fetchLimit int, refresh time.Duration, c *cache.Cache, logger zerolog.Logger) *Telegram {
	return &Telegram{
		browser:    browser,
		exts:       ExtensionsForMIME(mimeType),
		fetchLimit: fetchLimit,
		refresh:    refresh,
		cache:      c,
		rotation:   newRotation(),
		logger:     logger.With().Str("component", "source.telegram").Logger(),
	}
}

// Kind implements Source.
func (t *Telegram) Kind() schedule.SourceKind { return schedule.SourceTelegram }

// Available implements Source.
func (t *Telegram) Available() bool {
	return t.browser != nil && t.browser.Ready()
}

// NextTrack implements Source.
func (t *Telegram) NextTrack(ctx context.Context, key string) (*Track, error) {
	if !t.Available() {
		return nil, fmt.Errorf("%w: telegram session not started", ErrUnavailable)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: slot has no channel key", ErrExhausted)
	}

	items, err := t.candidates(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrUnavailable, key, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no playable messages in %s", ErrExhausted, key)
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = strconv.Itoa(item.MessageID)
	}
	item := items[t.rotation.Pick(key, ids)]

	body, err := t.browser.Download(ctx, key, item.MessageID)
	if err != nil {
		return nil, fmt.Errorf("%w: download message %d from %s: %v", ErrUnavailable, item.MessageID, key, err)
	}

	title := item.Title
	if title == "" {
		title = fmt.Sprintf("Telegram track %d", item.MessageID)
	}

	track := &Track{
		Meta: Meta{
			ID:       fmt.Sprintf("%s/%d", key, item.MessageID),
			Title:    title,
			Kind:     schedule.SourceTelegram,
			Key:      key,
			ByteSize: item.ByteSize,
			Duration: item.Duration,
		},
		Body: body,
	}

	t.logger.Debug().Str("channel", key).Int("message_id", item.MessageID).Msg("selected telegram track")
	return track, nil
}

// DisplayName returns the channel's human title, cached. Falls back to the
// key itself when the channel cannot be resolved.
func (t *Telegram) DisplayName(ctx context.Context, key string) string {
	if key == "" || !t.Available() {
		return key
	}

	cacheKey := "telegram:label:" + key
	var label string
	if t.cache.Get(ctx, cacheKey, &label) && label != "" {
		return label
	}

	label, err := t.browser.ChannelTitle(ctx, key)
	if err != nil || label == "" {
		return key
	}

	t.cache.Set(ctx, cacheKey, label, time.Hour)
	return label
}

func (t *Telegram) candidates(ctx context.Context, channel string) ([]ChannelItem, error) {
	cacheKey := "telegram:listing:" + channel

	var cached []ChannelItem
	if t.cache.Get(ctx, cacheKey, &cached) && len(cached) > 0 {
		return cached, nil
	}

	items, err := t.browser.ListAudio(ctx, channel, t.fetchLimit)
	if err != nil {
		return nil, err
	}

	playable := items[:0]
	for _, item := range items {
		if t.exts[strings.ToLower(filepath.Ext(item.Filename))] {
			playable = append(playable, item)
		}
	}

	if len(playable) > 0 {
		t.cache.Set(ctx, cacheKey, playable, t.refresh)
	}
	return playable, nil
}
