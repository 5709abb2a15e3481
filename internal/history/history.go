/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history persists the play log. Every track start becomes one row,
// consumed from the event bus so the broadcast engine never touches the
// database on its hot path.
package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/yurets_fm/internal/events"
)

// PlayRecord is one played track.
type PlayRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TrackID         string    `json:"track_id"`
	Title           string    `json:"title"`
	Source          string    `json:"source"`
	Key             string    `json:"key"`
	ByteSize        int64     `json:"byte_size"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartedAt       time.Time `gorm:"index" json:"started_at"`
}

// Service records and queries the play log.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open creates (or migrates) the history database at path. ":memory:" gives
// a throwaway store for tests.
func Open(path string, log zerolog.Logger) (*Service, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&PlayRecord{}); err != nil {
		return nil, err
	}
	return &Service{
		db:     db,
		logger: log.With().Str("component", "history").Logger(),
	}, nil
}

// Close releases the underlying connection.
func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends one play.
func (s *Service) Record(ctx context.Context, rec PlayRecord) error {
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Recent returns the latest plays, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]PlayRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []PlayRecord
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// Consume writes a play record for every track-start event until ctx ends.
// Run it in its own goroutine.
func (s *Service) Consume(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.EventTrackStarted)
	defer bus.Unsubscribe(events.EventTrackStarted, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			rec := recordFromPayload(payload)
			if err := s.Record(ctx, rec); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Str("title", rec.Title).Msg("recording play failed")
			}
		}
	}
}

func recordFromPayload(payload events.Payload) PlayRecord {
	rec := PlayRecord{StartedAt: time.Now()}
	if v, ok := payload["id"].(string); ok {
		rec.TrackID = v
	}
	if v, ok := payload["title"].(string); ok {
		rec.Title = v
	}
	if v, ok := payload["source"].(string); ok {
		rec.Source = v
	}
	if v, ok := payload["key"].(string); ok {
		rec.Key = v
	}
	if v, ok := payload["byte_size"].(int64); ok {
		rec.ByteSize = v
	}
	if v, ok := payload["duration_seconds"].(float64); ok {
		rec.DurationSeconds = v
	}
	if v, ok := payload["started_at"].(time.Time); ok {
		rec.StartedAt = v
	}
	return rec
}
