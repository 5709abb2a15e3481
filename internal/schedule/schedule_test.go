package schedule

import (
	"testing"
	"time"
)

func mustTOD(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tod
}

func at(hour, min int) time.Time {
	return time.Date(2026, 8, 30, hour, min, 0, 0, time.UTC)
}

func TestSlotWrapsPastMidnight(t *testing.T) {
	slot := Slot{Start: mustTOD(t, "22:00"), End: mustTOD(t, "02:00"), Source: SourceLocal}

	tests := []struct {
		tod  string
		want bool
	}{
		{"23:30", true},
		{"01:00", true},
		{"22:00", true},
		{"02:00", false},
		{"10:00", false},
	}
	for _, tc := range tests {
		if got := slot.Contains(mustTOD(t, tc.tod)); got != tc.want {
			t.Errorf("Contains(%s) = %v, want %v", tc.tod, got, tc.want)
		}
	}
}

func TestSlotFullDayWhenStartEqualsEnd(t *testing.T) {
	slot := Slot{Start: mustTOD(t, "09:00"), End: mustTOD(t, "09:00"), Source: SourceLocal}
	for _, tod := range []string{"00:00", "09:00", "12:34", "23:59"} {
		if !slot.Contains(mustTOD(t, tod)) {
			t.Errorf("full-day slot should contain %s", tod)
		}
	}
}

func TestResolveFirstMatchWinsOnOverlap(t *testing.T) {
	first := Slot{Start: mustTOD(t, "08:00"), End: mustTOD(t, "12:00"), Source: SourceTelegram, Key: "@a"}
	second := Slot{Start: mustTOD(t, "10:00"), End: mustTOD(t, "14:00"), Source: SourceLocal, Key: "/b"}
	fallback := Slot{Source: SourceLocal, Key: "/music", Start: mustTOD(t, "00:00"), End: mustTOD(t, "00:00")}

	r := NewResolver([]Slot{first, second}, fallback, time.UTC)

	if got := r.Resolve(at(11, 0)); got != first {
		t.Fatalf("11:00 resolved to %+v, want first-declared slot", got)
	}
	if got := r.Resolve(at(13, 0)); got != second {
		t.Fatalf("13:00 resolved to %+v, want second slot", got)
	}
}

func TestResolveGapFallsBackToDefault(t *testing.T) {
	slots := []Slot{{Start: mustTOD(t, "08:00"), End: mustTOD(t, "12:00"), Source: SourceTelegram, Key: "@chan"}}
	fallback := Slot{Source: SourceLocal, Key: "/music", Start: mustTOD(t, "00:00"), End: mustTOD(t, "00:00")}
	r := NewResolver(slots, fallback, time.UTC)

	if got := r.Resolve(at(15, 0)); got != fallback {
		t.Fatalf("gap resolved to %+v, want fallback", got)
	}
}

func TestResolveEndToEndScenario(t *testing.T) {
	// [{00:00-12:00, telegram, "@chan"}, {12:00-00:00, local, "/music"}]
	tg := Slot{Start: mustTOD(t, "00:00"), End: mustTOD(t, "12:00"), Source: SourceTelegram, Key: "@chan"}
	local := Slot{Start: mustTOD(t, "12:00"), End: mustTOD(t, "00:00"), Source: SourceLocal, Key: "/music"}
	fallback := Slot{Source: SourceLocal, Key: "/music", Start: mustTOD(t, "00:00"), End: mustTOD(t, "00:00")}
	r := NewResolver([]Slot{tg, local}, fallback, time.UTC)

	if got := r.Resolve(at(13, 0)); got != local {
		t.Fatalf("13:00 resolved to %+v, want local slot", got)
	}
	if got := r.Resolve(at(5, 0)); got != tg {
		t.Fatalf("05:00 resolved to %+v, want telegram slot", got)
	}
}

func TestResolveHonorsTimezone(t *testing.T) {
	msk := time.FixedZone("+03:00", 3*3600)
	slots := []Slot{{Start: mustTOD(t, "08:00"), End: mustTOD(t, "18:00"), Source: SourceLocal, Key: "/day"}}
	fallback := Slot{Source: SourceLocal, Key: "/night", Start: mustTOD(t, "00:00"), End: mustTOD(t, "00:00")}
	r := NewResolver(slots, fallback, msk)

	// 06:00 UTC is 09:00 in the schedule timezone.
	if got := r.Resolve(at(6, 0)); got.Key != "/day" {
		t.Fatalf("06:00 UTC resolved to %+v, want the daytime slot", got)
	}
	// 16:00 UTC is 19:00 in the schedule timezone.
	if got := r.Resolve(at(16, 0)); got.Key != "/night" {
		t.Fatalf("16:00 UTC resolved to %+v, want fallback", got)
	}
}

func TestPreviewWindowsCoverHorizon(t *testing.T) {
	tg := Slot{Start: mustTOD(t, "00:00"), End: mustTOD(t, "12:00"), Source: SourceTelegram, Key: "@chan"}
	local := Slot{Start: mustTOD(t, "12:00"), End: mustTOD(t, "00:00"), Source: SourceLocal, Key: "/music"}
	fallback := Slot{Source: SourceLocal, Key: "/music", Start: mustTOD(t, "00:00"), End: mustTOD(t, "00:00")}
	r := NewResolver([]Slot{tg, local}, fallback, time.UTC)

	now := at(10, 30)
	windows := r.Preview(now, 6*time.Hour)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d: %+v", len(windows), windows)
	}

	if windows[0].Slot != tg || !windows[0].Start.Equal(now) || !windows[0].End.Equal(at(12, 0)) {
		t.Fatalf("unexpected first window: %+v", windows[0])
	}
	if windows[1].Slot != local || !windows[1].Start.Equal(at(12, 0)) || !windows[1].End.Equal(at(16, 30)) {
		t.Fatalf("unexpected second window: %+v", windows[1])
	}

	// Windows must tile the horizon with no gaps.
	for i := 1; i < len(windows); i++ {
		if !windows[i].Start.Equal(windows[i-1].End) {
			t.Fatalf("gap between windows %d and %d", i-1, i)
		}
	}
}

func TestNextWindow(t *testing.T) {
	day := Slot{Start: mustTOD(t, "08:00"), End: mustTOD(t, "12:00"), Source: SourceLocal, Key: "/day"}
	night := Slot{Start: mustTOD(t, "22:00"), End: mustTOD(t, "02:00"), Source: SourceTelegram, Key: "@night"}

	tests := []struct {
		name      string
		slot      Slot
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"active", day, at(9, 30), at(8, 0), at(12, 0)},
		{"upcoming today", day, at(6, 0), at(8, 0), at(12, 0)},
		{"already over", day, at(14, 0), at(8, 0).AddDate(0, 0, 1), at(12, 0).AddDate(0, 0, 1)},
		{"wrapped, before midnight", night, at(23, 0), at(22, 0), at(2, 0).AddDate(0, 0, 1)},
		{"wrapped, after midnight", night, at(1, 0), at(22, 0).AddDate(0, 0, -1), at(2, 0)},
		{"wrapped, upcoming", night, at(10, 0), at(22, 0), at(2, 0).AddDate(0, 0, 1)},
	}
	for _, tc := range tests {
		win := tc.slot.NextWindow(tc.now, time.UTC)
		if !win.Start.Equal(tc.wantStart) || !win.End.Equal(tc.wantEnd) {
			t.Errorf("%s: window [%v, %v], want [%v, %v]", tc.name, win.Start, win.End, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestNextWindowFullDaySlot(t *testing.T) {
	slot := Slot{Start: mustTOD(t, "08:00"), End: mustTOD(t, "08:00"), Source: SourceLocal}

	win := slot.NextWindow(at(6, 0), time.UTC)
	if !win.Start.Equal(at(8, 0).AddDate(0, 0, -1)) || !win.End.Equal(at(8, 0)) {
		t.Fatalf("window [%v, %v], want the occurrence containing 06:00", win.Start, win.End)
	}
}

func TestPreviewZeroHorizon(t *testing.T) {
	fallback := Slot{Source: SourceLocal, Key: "/music", Start: mustTOD(t, "00:00"), End: mustTOD(t, "00:00")}
	r := NewResolver(nil, fallback, time.UTC)
	if windows := r.Preview(at(10, 0), 0); windows != nil {
		t.Fatalf("expected no windows, got %+v", windows)
	}
}

func TestParseJSON(t *testing.T) {
	slots, err := ParseJSON(`[{"start":"00:00","end":"08:00","source":"telegram","key":"@chan"},{"start":"08:00","end":"00:00","source":"local","key":"/music"}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].Source != SourceTelegram || slots[0].Key != "@chan" {
		t.Fatalf("unexpected first slot: %+v", slots[0])
	}
	if slots[1].End.Minutes() != 0 {
		t.Fatalf("expected midnight end, got %v", slots[1].End)
	}
}

func TestParseJSONRejectsUnknownSource(t *testing.T) {
	if _, err := ParseJSON(`[{"start":"00:00","end":"08:00","source":"spotify"}]`); err == nil {
		t.Fatal("expected parse to fail for unknown source kind")
	}
}

func TestParseTimeOfDayRange(t *testing.T) {
	if _, err := ParseTimeOfDay("24:00"); err == nil {
		t.Fatal("expected 24:00 to be rejected")
	}
	if _, err := ParseTimeOfDay("hello"); err == nil {
		t.Fatal("expected garbage to be rejected")
	}
}
