// Package availability computes open pickup slots on the shared pantry
// calendar. It is pure computation over existing appointment rows; booking
// itself is guarded separately by the storage layer's conflict constraint.
package availability

import (
	"context"
	"time"

	"github.com/openpantry/pantryline/services/voice-service/internal/model"
)

// Config fixes the calendar shape. Search and booking share one slot
// duration; the scan step is named separately so the sweep granularity can
// be tuned without changing how long a pickup takes.
type Config struct {
	OpenMinute    int           // minutes after midnight, default 09:00
	CloseMinute   int           // default 17:00
	SlotDuration  time.Duration // default 30m
	SlotStep      time.Duration // default SlotDuration
	SearchWeeks   int           // default 4
	EmptyDayCount int           // reported for a day with no appointments, default 4
}

func (c *Config) applyDefaults() {
	if c.OpenMinute <= 0 {
		c.OpenMinute = 9 * 60
	}
	if c.CloseMinute <= 0 {
		c.CloseMinute = 17 * 60
	}
	if c.SlotDuration <= 0 {
		c.SlotDuration = 30 * time.Minute
	}
	if c.SlotStep <= 0 {
		c.SlotStep = c.SlotDuration
	}
	if c.SearchWeeks <= 0 {
		c.SearchWeeks = 4
	}
	if c.EmptyDayCount <= 0 {
		c.EmptyDayCount = 4
	}
}

// Reader is the slice of the appointment store the engine needs.
type Reader interface {
	// ListByDate returns the day's appointments ordered by start time.
	ListByDate(ctx context.Context, day time.Time) ([]model.Appointment, error)
}

type Engine struct {
	appts Reader
	cfg   Config
}

func NewEngine(appts Reader, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{appts: appts, cfg: cfg}
}

func (e *Engine) SlotDuration() time.Duration { return e.cfg.SlotDuration }

// FindNextDate scans forward from the next occurrence of weekday after
// `from`, one week at a time, and returns the first date with at least one
// open slot plus its open-slot count. ok is false when no date inside the
// search window has capacity.
//
// A day with no appointments at all skips the gap walk and reports the
// configured wide-open count.
func (e *Engine) FindNextDate(ctx context.Context, from time.Time, weekday time.Weekday) (time.Time, int, bool, error) {
	day := nextOccurrence(from, weekday)
	for week := 0; week < e.cfg.SearchWeeks; week++ {
		appts, err := e.appts.ListByDate(ctx, day)
		if err != nil {
			return time.Time{}, 0, false, err
		}
		if len(appts) == 0 {
			return day, e.cfg.EmptyDayCount, true, nil
		}
		if n := len(e.slotStarts(day, appts)); n > 0 {
			return day, n, true, nil
		}
		day = day.AddDate(0, 0, 7)
	}
	return time.Time{}, 0, false, nil
}

// ListTimes returns the ordered open slot start times for one date.
func (e *Engine) ListTimes(ctx context.Context, day time.Time) ([]time.Time, error) {
	appts, err := e.appts.ListByDate(ctx, day)
	if err != nil {
		return nil, err
	}
	return e.slotStarts(day, appts), nil
}

// slotStarts is a linear sweep from opening time in SlotStep increments; a
// start is open when [start, start+SlotDuration) fits inside business hours
// and overlaps no existing appointment. It does not pack around irregular
// appointment lengths.
func (e *Engine) slotStarts(day time.Time, appts []model.Appointment) []time.Time {
	y, m, d := day.UTC().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	open := midnight.Add(time.Duration(e.cfg.OpenMinute) * time.Minute)
	close := midnight.Add(time.Duration(e.cfg.CloseMinute) * time.Minute)

	var starts []time.Time
	for t := open; !t.Add(e.cfg.SlotDuration).After(close); t = t.Add(e.cfg.SlotStep) {
		if !overlapsAny(t, t.Add(e.cfg.SlotDuration), appts) {
			starts = append(starts, t)
		}
	}
	return starts
}

func overlapsAny(start, end time.Time, appts []model.Appointment) bool {
	for _, a := range appts {
		// Half-open intervals: [start,end) overlaps [a.Start,a.End) iff start < a.End && a.Start < end.
		if start.Before(a.End) && a.Start.Before(end) {
			return true
		}
	}
	return false
}

// nextOccurrence returns the next calendar date (strictly after `from`'s day)
// that falls on the requested weekday, at midnight UTC.
func nextOccurrence(from time.Time, weekday time.Weekday) time.Time {
	y, m, d := from.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ahead := (int(weekday) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return today.AddDate(0, 0, ahead)
}

// Nearest picks the open slot whose time of day is closest to wantMinute
// (minutes after midnight). Ties go to the earliest-scanned slot, which the
// strict comparison below guarantees.
func Nearest(slots []time.Time, wantMinute int) (time.Time, bool) {
	if len(slots) == 0 {
		return time.Time{}, false
	}
	best := slots[0]
	bestDiff := absDiff(minuteOfDay(best), wantMinute)
	for _, s := range slots[1:] {
		if d := absDiff(minuteOfDay(s), wantMinute); d < bestDiff {
			best = s
			bestDiff = d
		}
	}
	return best, true
}

func minuteOfDay(t time.Time) int {
	return t.UTC().Hour()*60 + t.UTC().Minute()
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
