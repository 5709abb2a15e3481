package engine

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/yurets_fm/internal/clock"
	"github.com/friendsincode/yurets_fm/internal/source"
)

func TestBytesPerSecondExactWhenMetadataKnown(t *testing.T) {
	p := NewPacer(clock.New(), 192)
	meta := source.Meta{ByteSize: 1_000_000, Duration: 100 * time.Second}
	if got := p.BytesPerSecond(meta); got != 10_000 {
		t.Fatalf("rate = %v, want 10000", got)
	}
}

func TestBytesPerSecondAssumedWhenMetadataMissing(t *testing.T) {
	p := NewPacer(clock.New(), 192)
	if got := p.BytesPerSecond(source.Meta{}); got != 24_000 {
		t.Fatalf("rate = %v, want 24000", got)
	}

	// Partial metadata is not enough for an exact rate.
	if got := p.BytesPerSecond(source.Meta{ByteSize: 1_000_000}); got != 24_000 {
		t.Fatalf("rate with only size = %v, want 24000", got)
	}
	if got := p.BytesPerSecond(source.Meta{Duration: time.Minute}); got != 24_000 {
		t.Fatalf("rate with only duration = %v, want 24000", got)
	}
}

func TestWaitReturnsImmediatelyWhenBehindSchedule(t *testing.T) {
	mock := clock.NewMock()
	p := NewPacer(mock, 192)

	start := mock.Now()
	mock.Add(10 * time.Second)

	// 1000 bytes at 10000 B/s should have taken 100ms; we are 10s in.
	if err := p.Wait(context.Background(), start, 1000, 10_000); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitCancellable(t *testing.T) {
	mock := clock.NewMock()
	p := NewPacer(mock, 192)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Wait(ctx, mock.Now(), 1_000_000, 1)
	if err == nil {
		t.Fatal("expected cancellation error from wait")
	}
}

// TestFullTrackDeliveryTime verifies the drift-free pacing discipline: a
// 1,000,000 byte track with a 100s duration takes 100s of (simulated) wall
// time to deliver, within 2%.
func TestFullTrackDeliveryTime(t *testing.T) {
	mock := clock.NewMock()
	p := NewPacer(mock, 192)

	meta := source.Meta{ByteSize: 1_000_000, Duration: 100 * time.Second}
	rate := p.BytesPerSecond(meta)

	start := mock.Now()
	done := make(chan struct{})

	go func() {
		defer close(done)
		var sent uint64
		for sent < uint64(meta.ByteSize) {
			n := uint64(65536)
			if remaining := uint64(meta.ByteSize) - sent; n > remaining {
				n = remaining
			}
			sent += n
			if err := p.Wait(context.Background(), start, sent, rate); err != nil {
				t.Errorf("wait: %v", err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			elapsed := mock.Now().Sub(start)
			want := 100 * time.Second
			tolerance := want / 50 // 2%
			if elapsed < want-tolerance || elapsed > want+tolerance {
				t.Fatalf("delivery took %v of simulated time, want %v +/- %v", elapsed, want, tolerance)
			}
			return
		default:
			mock.Add(50 * time.Millisecond)
		}
	}
}
