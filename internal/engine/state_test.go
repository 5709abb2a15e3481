package engine

import (
	"testing"
	"time"

	"github.com/friendsincode/yurets_fm/internal/clock"
	"github.com/friendsincode/yurets_fm/internal/schedule"
	"github.com/friendsincode/yurets_fm/internal/source"
)

func TestSnapshotBeforeFirstTrack(t *testing.T) {
	s := NewState(clock.NewMock())
	if _, ok := s.Snapshot(); ok {
		t.Fatal("expected no snapshot before the first track")
	}
}

func TestSnapshotPositionDerivedFromClock(t *testing.T) {
	mock := clock.NewMock()
	s := NewState(mock)

	meta := source.Meta{ID: "a", Title: "first", Kind: schedule.SourceLocal}
	s.SetTrack(meta, mock.Now(), 24_000)
	s.AddBytes(48_000)

	mock.Add(5 * time.Second)

	snap, ok := s.Snapshot()
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.Track.Title != "first" {
		t.Fatalf("title = %q", snap.Track.Title)
	}
	if snap.PositionSeconds != 5 {
		t.Fatalf("position = %v, want 5", snap.PositionSeconds)
	}
	if snap.BytesSent != 48_000 {
		t.Fatalf("bytes = %d", snap.BytesSent)
	}
}

func TestSnapshotResetsOnTrackSwitch(t *testing.T) {
	mock := clock.NewMock()
	s := NewState(mock)

	s.SetTrack(source.Meta{ID: "a"}, mock.Now(), 24_000)
	s.AddBytes(1000)
	mock.Add(30 * time.Second)

	s.SetTrack(source.Meta{ID: "b"}, mock.Now(), 10_000)

	snap, _ := s.Snapshot()
	if snap.Track.ID != "b" {
		t.Fatalf("track = %q, want b", snap.Track.ID)
	}
	if snap.PositionSeconds != 0 {
		t.Fatalf("position after switch = %v, want 0", snap.PositionSeconds)
	}
	if snap.BytesSent != 0 {
		t.Fatalf("bytes after switch = %d, want 0", snap.BytesSent)
	}
	if s.TracksStarted() != 2 {
		t.Fatalf("tracks started = %d, want 2", s.TracksStarted())
	}
}

func TestSnapshotNeverMixesTracks(t *testing.T) {
	mock := clock.NewMock()
	s := NewState(mock)

	// Bytes are only ever accounted to track "a". A snapshot that reports
	// track "b" with a nonzero byte count has paired one track's metadata
	// with another track's counter.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			s.SetTrack(source.Meta{ID: "a"}, mock.Now(), 24_000)
			s.AddBytes(4096)
			s.SetTrack(source.Meta{ID: "b"}, mock.Now(), 24_000)
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		if snap, ok := s.Snapshot(); ok && snap.Track.ID == "b" && snap.BytesSent != 0 {
			t.Fatalf("track b snapshot carries %d bytes from track a", snap.BytesSent)
		}
	}
}
