/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast fans the single live audio timeline out to many
// listeners. The stream is strictly live and forward-only: a subscriber only
// sees chunks published after it joined, and a subscriber whose bounded
// queue would overflow is disconnected rather than allowed to slow the
// producer.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/events"
	"github.com/friendsincode/yurets_fm/internal/telemetry"
)

// Subscriber is one listener connection's view of the stream.
type Subscriber struct {
	ID       uuid.UUID
	JoinedAt time.Time

	ch      chan []byte
	done    chan struct{}
	dropped bool
	once    sync.Once
}

// Chunks returns the subscriber's ordered chunk queue.
func (s *Subscriber) Chunks() <-chan []byte { return s.ch }

// Done is closed when the channel drops or shuts down this subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Dropped reports whether the subscriber was disconnected for falling
// behind. Only meaningful after Done is closed.
func (s *Subscriber) Dropped() bool { return s.dropped }

func (s *Subscriber) close(dropped bool) {
	s.once.Do(func() {
		s.dropped = dropped
		close(s.done)
	})
}

// Channel is the single mount point all listeners share.
type Channel struct {
	ContentType string

	queueChunks int
	logger      zerolog.Logger
	bus         *events.Bus

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber

	chunksSent atomic.Uint64
	bytesSent  atomic.Uint64
	dropTotal  atomic.Uint64
}

// NewChannel creates the broadcast channel. queueChunks bounds each
// subscriber's outbound queue.
func NewChannel(contentType string, queueChunks int, logger zerolog.Logger, bus *events.Bus) *Channel {
	if queueChunks <= 0 {
		queueChunks = 128
	}
	return &Channel{
		ContentType: contentType,
		queueChunks: queueChunks,
		logger:      logger.With().Str("component", "broadcast").Logger(),
		bus:         bus,
		subs:        make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a listener. All chunks published from this moment on
// are relayed to it in order.
func (c *Channel) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:       uuid.New(),
		JoinedAt: time.Now(),
		ch:       make(chan []byte, c.queueChunks),
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	c.subs[sub.ID] = sub
	count := len(c.subs)
	c.mu.Unlock()

	telemetry.Listeners.Set(float64(count))
	c.logger.Info().Str("listener", sub.ID.String()).Int("listeners", count).Msg("listener connected")
	c.publishStats(events.EventListenerConnect, count)
	return sub
}

// Unsubscribe removes a listener. Safe to call for an already-dropped or
// unknown subscriber.
func (c *Channel) Unsubscribe(id uuid.UUID) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
	}
	count := len(c.subs)
	c.mu.Unlock()

	if !ok {
		return
	}

	sub.close(false)
	telemetry.Listeners.Set(float64(count))
	c.logger.Info().Str("listener", id.String()).Int("listeners", count).Msg("listener disconnected")
	c.publishStats(events.EventListenerDisconnect, count)
}

// Broadcast relays one chunk to every current subscriber. The caller keeps
// ownership of nothing: data must not be mutated afterwards. Subscribers
// whose queue is already full are dropped, never waited on.
func (c *Channel) Broadcast(data []byte) {
	if len(data) == 0 {
		return
	}

	var victims []*Subscriber

	c.mu.RLock()
	for _, sub := range c.subs {
		select {
		case sub.ch <- data:
		default:
			victims = append(victims, sub)
		}
	}
	c.mu.RUnlock()

	c.chunksSent.Add(1)
	c.bytesSent.Add(uint64(len(data)))
	telemetry.ChunksBroadcast.Inc()
	telemetry.BytesBroadcast.Add(float64(len(data)))

	for _, sub := range victims {
		c.drop(sub)
	}
}

func (c *Channel) drop(sub *Subscriber) {
	c.mu.Lock()
	if _, ok := c.subs[sub.ID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, sub.ID)
	c.dropTotal.Add(1)
	count := len(c.subs)
	c.mu.Unlock()

	sub.close(true)
	telemetry.Listeners.Set(float64(count))
	telemetry.ListenersDropped.Inc()
	c.logger.Warn().Str("listener", sub.ID.String()).Int("listeners", count).Msg("listener dropped: queue overflow")
	c.publishStats(events.EventListenerDropped, count)
}

// ListenerCount returns the number of connected listeners.
func (c *Channel) ListenerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Stats is a point-in-time fan-out counters snapshot.
type Stats struct {
	Listeners        int    `json:"listeners"`
	ChunksBroadcast  uint64 `json:"chunks_broadcast"`
	BytesBroadcast   uint64 `json:"bytes_broadcast"`
	ListenersDropped uint64 `json:"listeners_dropped"`
}

// Snapshot returns current fan-out counters.
func (c *Channel) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Listeners:        len(c.subs),
		ChunksBroadcast:  c.chunksSent.Load(),
		BytesBroadcast:   c.bytesSent.Load(),
		ListenersDropped: c.dropTotal.Load(),
	}
}

// Close disconnects all listeners.
func (c *Channel) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uuid.UUID]*Subscriber)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close(false)
	}
}

func (c *Channel) publishStats(eventType events.EventType, count int) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventType, events.Payload{
		"listeners":    count,
		"content_type": c.ContentType,
	})
}
