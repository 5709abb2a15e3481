/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule maps wall-clock time to a track source. Slots are
// time-of-day intervals; an entry whose end is not after its start wraps
// past midnight. Declaration order decides overlaps: first match wins.
package schedule

import (
	"fmt"
	"time"
)

// SourceKind identifies a track source variant.
type SourceKind string

const (
	SourceLocal    SourceKind = "local"
	SourceTelegram SourceKind = "telegram"
)

// TimeOfDay is a wall-clock minute, timezone-agnostic.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Before reports whether t is strictly earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool { return t.Minutes() < other.Minutes() }

// Slot is one schedule entry.
type Slot struct {
	Start  TimeOfDay
	End    TimeOfDay
	Source SourceKind
	Key    string
}

// Contains reports whether the wall-clock minute falls inside the slot.
// End <= Start means the interval wraps past midnight; Start == End covers
// the whole day.
func (s Slot) Contains(t TimeOfDay) bool {
	start, end, cur := s.Start.Minutes(), s.End.Minutes(), t.Minutes()
	if start == end {
		return true
	}
	if start < end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

// Window is a resolved span of absolute time mapped to one slot.
type Window struct {
	Start time.Time
	End   time.Time
	Slot  Slot
}

// NextWindow returns the absolute span of the slot's occurrence that
// contains now, or of the next one when the slot is not active. A wrapped
// slot entered before midnight started yesterday from the early-morning
// side.
func (s Slot) NextWindow(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), s.Start.Hour, s.Start.Minute, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), s.End.Hour, s.End.Minute, 0, 0, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}

	active := s.Contains(TimeOfDay{Hour: local.Hour(), Minute: local.Minute()})
	switch {
	case active && local.Before(start):
		start = start.AddDate(0, 0, -1)
		end = end.AddDate(0, 0, -1)
	case !active && !local.Before(end):
		start = start.AddDate(0, 0, 1)
		end = end.AddDate(0, 0, 1)
	}
	return Window{Start: start, End: end, Slot: s}
}

// Resolver answers "which slot is active at time t".
type Resolver struct {
	slots    []Slot
	fallback Slot
	loc      *time.Location
}

// NewResolver builds a resolver over the ordered slots. The fallback slot is
// returned whenever no entry matches, so resolution never fails.
func NewResolver(slots []Slot, fallback Slot, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{slots: slots, fallback: fallback, loc: loc}
}

// Slots returns the declared schedule in order.
func (r *Resolver) Slots() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// Location returns the schedule timezone.
func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve returns the first declared slot containing now, or the fallback.
func (r *Resolver) Resolve(now time.Time) Slot {
	local := now.In(r.loc)
	tod := TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}

	for _, slot := range r.slots {
		if slot.Contains(tod) {
			return slot
		}
	}
	return r.fallback
}

// Preview walks the schedule forward from now and returns the resolved
// windows covering the horizon. Adjacent windows resolving to the same slot
// are merged. Pure function of the schedule and now.
func (r *Resolver) Preview(now time.Time, horizon time.Duration) []Window {
	if horizon <= 0 {
		return nil
	}

	limit := now.Add(horizon)
	var windows []Window

	// At most two boundaries per slot per day; the extra headroom keeps the
	// walk finite even for degenerate schedules.
	maxSteps := (len(r.slots)*2 + 2) * (int(horizon/(24*time.Hour)) + 2)

	cursor := now
	for i := 0; i < maxSteps && cursor.Before(limit); i++ {
		slot := r.Resolve(cursor)
		end := r.nextBoundary(cursor)
		if end.After(limit) {
			end = limit
		}

		if n := len(windows); n > 0 && windows[n-1].Slot == slot && windows[n-1].End.Equal(cursor) {
			windows[n-1].End = end
		} else {
			windows = append(windows, Window{Start: cursor, End: end, Slot: slot})
		}
		cursor = end
	}

	return windows
}

// nextBoundary returns the earliest instant after t at which any slot starts
// or ends. With no boundaries at all the whole next day is one window.
func (r *Resolver) nextBoundary(t time.Time) time.Time {
	local := t.In(r.loc)
	best := time.Time{}

	consider := func(tod TimeOfDay) {
		candidate := time.Date(local.Year(), local.Month(), local.Day(), tod.Hour, tod.Minute, 0, 0, r.loc)
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}

	for _, slot := range r.slots {
		consider(slot.Start)
		consider(slot.End)
	}

	if best.IsZero() {
		return local.AddDate(0, 0, 1)
	}
	return best
}
