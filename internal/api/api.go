/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the listener-facing HTTP surface: the audio stream,
// the now-playing and schedule queries, and the master debug view.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/broadcast"
	"github.com/friendsincode/yurets_fm/internal/engine"
	"github.com/friendsincode/yurets_fm/internal/history"
	"github.com/friendsincode/yurets_fm/internal/schedule"
)

// PlaybackState is the engine's read side.
type PlaybackState interface {
	Snapshot() (engine.Snapshot, bool)
	TracksStarted() uint64
}

// ChannelLabeler resolves a source key to a human label.
type ChannelLabeler interface {
	DisplayName(ctx context.Context, key string) string
}

// PlayLog is the history read side.
type PlayLog interface {
	Recent(ctx context.Context, limit int) ([]history.PlayRecord, error)
}

// Tunables is the slice of configuration the master debug view reports.
type Tunables struct {
	ChunkSize      int     `json:"chunk_size"`
	QueueChunks    int     `json:"queue_chunks"`
	AssumedBitrate float64 `json:"assumed_bitrate_kbps"`
	MIMEType       string  `json:"mime_type"`
	StationName    string  `json:"station_name"`
	ScheduleTZ     string  `json:"schedule_timezone"`
}

// API holds the HTTP handlers.
type API struct {
	state     PlaybackState
	resolver  *schedule.Resolver
	channel   *broadcast.Channel
	labeler   ChannelLabeler
	playLog   PlayLog
	tunables  Tunables
	startedAt time.Time
	logger    zerolog.Logger
}

// New creates the API. labeler and playLog may be nil; the affected fields
// degrade to raw keys and an empty history.
func New(state PlaybackState, resolver *schedule.Resolver, channel *broadcast.Channel, labeler ChannelLabeler, playLog PlayLog, tunables Tunables, logger zerolog.Logger) *API {
	return &API{
		state:     state,
		resolver:  resolver,
		channel:   channel,
		labeler:   labeler,
		playLog:   playLog,
		tunables:  tunables,
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers all endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Get("/stream", a.handleStream)
	r.Route("/api", func(r chi.Router) {
		r.Get("/now-playing", a.handleNowPlaying)
		r.Get("/schedule", a.handleSchedule)
		r.Get("/master", a.handleMaster)
		r.Get("/stats", a.handleStats)
		r.Get("/history", a.handleHistory)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(a.startedAt).Seconds(),
		"listeners":      a.channel.ListenerCount(),
	})
}

type nowPlayingResponse struct {
	Playing         bool    `json:"playing"`
	Title           string  `json:"title,omitempty"`
	Source          string  `json:"source,omitempty"`
	Key             string  `json:"key,omitempty"`
	ChannelLabel    string  `json:"channel_label,omitempty"`
	StartedAt       string  `json:"started_at,omitempty"`
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ByteSize        int64   `json:"byte_size,omitempty"`
	BitrateBPS      float64 `json:"bitrate_bytes_per_second,omitempty"`
	Listeners       int     `json:"listeners"`
}

func (a *API) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	resp := nowPlayingResponse{Listeners: a.channel.ListenerCount()}

	snap, ok := a.state.Snapshot()
	if ok {
		resp.Playing = true
		resp.Title = snap.Track.Title
		resp.Source = string(snap.Track.Kind)
		resp.Key = snap.Track.Key
		resp.ChannelLabel = a.label(r.Context(), snap.Track.Kind, snap.Track.Key)
		resp.StartedAt = snap.StartedAt.UTC().Format(time.RFC3339)
		resp.PositionSeconds = snap.PositionSeconds
		resp.DurationSeconds = snap.Track.Duration.Seconds()
		resp.ByteSize = snap.Track.ByteSize
		resp.BitrateBPS = snap.BitrateBytesPerSec
	}

	writeJSON(w, http.StatusOK, resp)
}

type slotResponse struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Source  string `json:"source"`
	Key     string `json:"key"`
	Label   string `json:"label"`
}

type windowResponse struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Source  string `json:"source"`
	Key     string `json:"key"`
	Label   string `json:"label"`
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	current := a.resolver.Resolve(now)

	slots := make([]slotResponse, 0, len(a.resolver.Slots()))
	for _, slot := range a.resolver.Slots() {
		slots = append(slots, a.slotResponse(r.Context(), now, slot))
	}

	windows := make([]windowResponse, 0)
	for _, win := range a.resolver.Preview(now, 24*time.Hour) {
		windows = append(windows, windowResponse{
			StartAt: win.Start.In(a.resolver.Location()).Format(time.RFC3339),
			EndAt:   win.End.In(a.resolver.Location()).Format(time.RFC3339),
			Source:  string(win.Slot.Source),
			Key:     win.Slot.Key,
			Label:   a.label(r.Context(), win.Slot.Source, win.Slot.Key),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timezone": a.tunables.ScheduleTZ,
		"current":  a.slotResponse(r.Context(), now, current),
		"slots":    slots,
		"next_24h": windows,
	})
}

func (a *API) handleMaster(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	var snapshot any
	if snap, ok := a.state.Snapshot(); ok {
		snapshot = snap
	}

	windows := make([]windowResponse, 0)
	for _, win := range a.resolver.Preview(now, 24*time.Hour) {
		windows = append(windows, windowResponse{
			StartAt: win.Start.In(a.resolver.Location()).Format(time.RFC3339),
			EndAt:   win.End.In(a.resolver.Location()).Format(time.RFC3339),
			Source:  string(win.Slot.Source),
			Key:     win.Slot.Key,
			Label:   a.label(r.Context(), win.Slot.Source, win.Slot.Key),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"now":            now.In(a.resolver.Location()).Format(time.RFC3339),
		"uptime_seconds": time.Since(a.startedAt).Seconds(),
		"tracks_started": a.state.TracksStarted(),
		"current_slot":   a.slotResponse(r.Context(), now, a.resolver.Resolve(now)),
		"snapshot":       snapshot,
		"plan":           windows,
		"stats":          a.channel.Snapshot(),
		"tunables":       a.tunables,
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": time.Since(a.startedAt).Seconds(),
		"tracks_started": a.state.TracksStarted(),
		"broadcast":      a.channel.Snapshot(),
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.playLog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"plays": []history.PlayRecord{}})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}

	plays, err := a.playLog.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history_unavailable")
		return
	}
	if plays == nil {
		plays = []history.PlayRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plays": plays})
}

func (a *API) slotResponse(ctx context.Context, now time.Time, slot schedule.Slot) slotResponse {
	win := slot.NextWindow(now, a.resolver.Location())
	return slotResponse{
		Start:   slot.Start.String(),
		End:     slot.End.String(),
		StartAt: win.Start.Format(time.RFC3339),
		EndAt:   win.End.Format(time.RFC3339),
		Source:  string(slot.Source),
		Key:     slot.Key,
		Label:   a.label(ctx, slot.Source, slot.Key),
	}
}

// label resolves Telegram keys through the channel labeler. Local keys
// show as the directory base name.
func (a *API) label(ctx context.Context, kind schedule.SourceKind, key string) string {
	if kind == schedule.SourceTelegram && a.labeler != nil {
		return a.labeler.DisplayName(ctx, key)
	}
	if kind == schedule.SourceLocal && key != "" {
		return filepath.Base(key)
	}
	return key
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
