/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
)

// handleStream attaches the client to the live broadcast. No history is
// replayed; the first bytes a listener gets are the chunks produced after
// the subscription, so everyone hears the same moment of the station.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	// Do not set Transfer-Encoding or Content-Length; chunked transfer is
	// negotiated automatically for an unbounded body.
	w.Header().Set("Content-Type", a.channel.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("icy-name", a.tunables.StationName)

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.logger.Error().Msg("response writer does not support flushing")
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	sub := a.channel.Subscribe()
	defer a.channel.Unsubscribe(sub.ID)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	a.logger.Info().
		Stringer("subscriber", sub.ID).
		Str("remote", r.RemoteAddr).
		Int("listeners", a.channel.ListenerCount()).
		Msg("listener connected")

	defer func() {
		a.logger.Info().
			Stringer("subscriber", sub.ID).
			Bool("dropped", sub.Dropped()).
			Msg("listener disconnected")
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case chunk, ok := <-sub.Chunks():
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
