package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/broadcast"
	"github.com/friendsincode/yurets_fm/internal/engine"
	"github.com/friendsincode/yurets_fm/internal/history"
	"github.com/friendsincode/yurets_fm/internal/schedule"
	"github.com/friendsincode/yurets_fm/internal/source"
)

type fakeState struct {
	snap    engine.Snapshot
	ok      bool
	started uint64
}

func (f *fakeState) Snapshot() (engine.Snapshot, bool) { return f.snap, f.ok }
func (f *fakeState) TracksStarted() uint64             { return f.started }

type fakeLabeler struct{ labels map[string]string }

func (f *fakeLabeler) DisplayName(_ context.Context, key string) string {
	if label, ok := f.labels[key]; ok {
		return label
	}
	return key
}

type fakePlayLog struct {
	recs []history.PlayRecord
	err  error
}

func (f *fakePlayLog) Recent(_ context.Context, limit int) ([]history.PlayRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func testResolver() *schedule.Resolver {
	slots := []schedule.Slot{
		{
			Start:  schedule.TimeOfDay{Hour: 22},
			End:    schedule.TimeOfDay{Hour: 2},
			Source: schedule.SourceTelegram,
			Key:    "nightmusic",
		},
	}
	fallback := schedule.Slot{Source: schedule.SourceLocal, Key: "library"}
	return schedule.NewResolver(slots, fallback, time.UTC)
}

func testAPI(t *testing.T, state PlaybackState, playLog PlayLog) (*API, *broadcast.Channel) {
	t.Helper()
	channel := broadcast.NewChannel("audio/mpeg", 8, zerolog.Nop(), nil)
	t.Cleanup(channel.Close)

	labeler := &fakeLabeler{labels: map[string]string{"nightmusic": "Night Music"}}
	tunables := Tunables{
		ChunkSize:      65536,
		QueueChunks:    8,
		AssumedBitrate: 192,
		MIMEType:       "audio/mpeg",
		StationName:    "Yurets FM",
		ScheduleTZ:     "UTC",
	}
	return New(state, testResolver(), channel, labeler, playLog, tunables, zerolog.Nop()), channel
}

func get(t *testing.T, a *API, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	a.Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	a, _ := testAPI(t, &fakeState{}, nil)

	var body map[string]any
	decode(t, get(t, a, "/health"), &body)

	if body["status"] != "ok" {
		t.Fatalf("status = %v", body["status"])
	}
}

func TestNowPlayingIdle(t *testing.T) {
	a, _ := testAPI(t, &fakeState{ok: false}, nil)

	var body nowPlayingResponse
	decode(t, get(t, a, "/api/now-playing"), &body)

	if body.Playing {
		t.Fatal("nothing is playing yet")
	}
}

func TestNowPlayingWithTrack(t *testing.T) {
	started := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	state := &fakeState{
		ok: true,
		snap: engine.Snapshot{
			Track: source.Meta{
				ID:       "nightmusic/7",
				Title:    "Night Drive",
				Kind:     schedule.SourceTelegram,
				Key:      "nightmusic",
				ByteSize: 4_000_000,
				Duration: 200 * time.Second,
			},
			StartedAt:          started,
			PositionSeconds:    12.5,
			BytesSent:          250_000,
			BitrateBytesPerSec: 20_000,
		},
		started: 3,
	}
	a, _ := testAPI(t, state, nil)

	var body nowPlayingResponse
	decode(t, get(t, a, "/api/now-playing"), &body)

	if !body.Playing || body.Title != "Night Drive" {
		t.Fatalf("body = %+v", body)
	}
	if body.ChannelLabel != "Night Music" {
		t.Fatalf("channel label = %q", body.ChannelLabel)
	}
	if body.PositionSeconds != 12.5 || body.DurationSeconds != 200 {
		t.Fatalf("position/duration = %v/%v", body.PositionSeconds, body.DurationSeconds)
	}
	if body.StartedAt != "2026-03-01T23:00:00Z" {
		t.Fatalf("started at = %q", body.StartedAt)
	}
}

func TestScheduleListsSlotsWithLabels(t *testing.T) {
	a, _ := testAPI(t, &fakeState{}, nil)

	var body struct {
		Timezone string           `json:"timezone"`
		Current  slotResponse     `json:"current"`
		Slots    []slotResponse   `json:"slots"`
		Next24h  []windowResponse `json:"next_24h"`
	}
	decode(t, get(t, a, "/api/schedule"), &body)

	if len(body.Slots) != 1 {
		t.Fatalf("slots = %+v", body.Slots)
	}
	if body.Slots[0].Label != "Night Music" || body.Slots[0].Start != "22:00" {
		t.Fatalf("slot = %+v", body.Slots[0])
	}
	startAt, err := time.Parse(time.RFC3339, body.Slots[0].StartAt)
	if err != nil {
		t.Fatalf("start_at %q: %v", body.Slots[0].StartAt, err)
	}
	endAt, err := time.Parse(time.RFC3339, body.Slots[0].EndAt)
	if err != nil {
		t.Fatalf("end_at %q: %v", body.Slots[0].EndAt, err)
	}
	if startAt.Hour() != 22 || endAt.Hour() != 2 {
		t.Fatalf("absolute times %v / %v, want 22:00 and 02:00 wall clock", startAt, endAt)
	}
	if !endAt.After(startAt) {
		t.Fatalf("end_at %v not after start_at %v", endAt, startAt)
	}
	if len(body.Next24h) == 0 {
		t.Fatal("empty 24h plan")
	}
	// The preview must tile the horizon with no holes.
	for i := 1; i < len(body.Next24h); i++ {
		if body.Next24h[i].StartAt != body.Next24h[i-1].EndAt {
			t.Fatalf("plan gap between %+v and %+v", body.Next24h[i-1], body.Next24h[i])
		}
	}
}

func TestMasterDebugView(t *testing.T) {
	a, _ := testAPI(t, &fakeState{started: 7}, nil)

	var body map[string]any
	decode(t, get(t, a, "/api/master"), &body)

	if body["tracks_started"] != float64(7) {
		t.Fatalf("tracks_started = %v", body["tracks_started"])
	}
	if _, ok := body["plan"]; !ok {
		t.Fatal("missing plan")
	}
	tunables, ok := body["tunables"].(map[string]any)
	if !ok || tunables["chunk_size"] != float64(65536) {
		t.Fatalf("tunables = %v", body["tunables"])
	}
}

func TestHistoryEndpoint(t *testing.T) {
	playLog := &fakePlayLog{recs: []history.PlayRecord{
		{Title: "third"}, {Title: "second"}, {Title: "first"},
	}}
	a, _ := testAPI(t, &fakeState{}, playLog)

	var body struct {
		Plays []history.PlayRecord `json:"plays"`
	}
	decode(t, get(t, a, "/api/history?limit=2"), &body)

	if len(body.Plays) != 2 || body.Plays[0].Title != "third" {
		t.Fatalf("plays = %+v", body.Plays)
	}

	rec := get(t, a, "/api/history?limit=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	a, _ := testAPI(t, &fakeState{}, nil)

	var body struct {
		Plays []history.PlayRecord `json:"plays"`
	}
	decode(t, get(t, a, "/api/history"), &body)

	if len(body.Plays) != 0 {
		t.Fatalf("plays = %+v", body.Plays)
	}
}
