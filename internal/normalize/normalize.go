// Package normalize keeps extracted events in the future and away from stale
// placeholder dates a language model may fall back to. Every function takes
// the current instant explicitly.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"voicecal/internal/models"
)

const (
	// DefaultLead is how far ahead of now a past event is moved.
	DefaultLead = time.Hour

	repairStartHour = 9
	repairDuration  = time.Hour
)

// Adjustment records which safety override, if any, changed an event's time.
type Adjustment string

const (
	AdjustmentNone        Adjustment = ""
	AdjustmentPlaceholder Adjustment = "placeholder_repaired"
	AdjustmentShifted     Adjustment = "shifted_to_future"
)

// Adjusted reports whether the system overrode the extracted time.
func (a Adjustment) Adjusted() bool { return a != AdjustmentNone }

// Warning is the user-facing explanation of an override.
func (a Adjustment) Warning() string {
	switch a {
	case AdjustmentPlaceholder:
		return "date replaced by safety override: the extracted date matched a known stale placeholder, moved to tomorrow 09:00"
	case AdjustmentShifted:
		return "date replaced by safety override: the extracted start was in the past, moved ahead keeping its duration"
	default:
		return ""
	}
}

// Placeholder is a year/month pair a model is known to emit when it has no
// real notion of the current date.
type Placeholder struct {
	Year  int
	Month time.Month
}

// ParsePlaceholder reads a "YYYY-MM" placeholder.
func ParsePlaceholder(s string) (Placeholder, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Placeholder{}, fmt.Errorf("placeholder %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(y)
	if err != nil || len(y) != 4 {
		return Placeholder{}, fmt.Errorf("placeholder %q: invalid year", s)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return Placeholder{}, fmt.Errorf("placeholder %q: invalid month", s)
	}
	return Placeholder{Year: year, Month: time.Month(month)}, nil
}

// ParsePlaceholders parses every entry, failing on the first invalid one.
func ParsePlaceholders(values []string) ([]Placeholder, error) {
	out := make([]Placeholder, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		p, err := ParsePlaceholder(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (p Placeholder) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Stale reports whether the placeholder month ended before the month of now
// in loc. Only stale placeholders are safe to guard: repairing the current
// or a later month would rewrite genuine dates and could move an event into
// a guarded month.
func (p Placeholder) Stale(now time.Time, loc *time.Location) bool {
	lt := now.In(zone(loc))
	if p.Year != lt.Year() {
		return p.Year < lt.Year()
	}
	return p.Month < lt.Month()
}

// Matches reports whether t falls in the placeholder month in loc.
func (p Placeholder) Matches(t time.Time, loc *time.Location) bool {
	lt := t.In(zone(loc))
	return lt.Year() == p.Year && lt.Month() == p.Month
}

// IsFuture reports whether t is strictly after now.
func IsFuture(t, now time.Time) bool {
	return t.After(now)
}

// EnsureFuture returns t when it is in the future and now+lead otherwise.
func EnsureFuture(t, now time.Time, lead time.Duration) time.Time {
	if IsFuture(t, now) {
		return t
	}
	return now.Add(lead)
}

// ShiftToFuture moves an event whose start is not in the future to now+lead,
// keeping end-start unchanged. Events without parseable start and end are
// returned as given.
func ShiftToFuture(ev models.StructuredEvent, now time.Time, lead time.Duration, loc *time.Location) (models.StructuredEvent, bool) {
	start, end, ok := bounds(ev, loc)
	if !ok {
		return ev, false
	}
	newStart := EnsureFuture(start, now, lead)
	if newStart.Equal(start) {
		return ev, false
	}
	duration := end.Sub(start)

	out := ev.Clone()
	out.Start = models.NewEventDateTime(newStart, zone(loc))
	out.End = models.NewEventDateTime(newStart.Add(duration), zone(loc))
	return out, true
}

// RepairPlaceholder replaces an event starting inside any placeholder month
// with tomorrow 09:00-10:00 in loc. The extracted time of day is discarded.
func RepairPlaceholder(ev models.StructuredEvent, now time.Time, loc *time.Location, placeholders []Placeholder) (models.StructuredEvent, bool) {
	start, _, ok := bounds(ev, loc)
	if !ok {
		return ev, false
	}
	for _, p := range placeholders {
		if !p.Matches(start, loc) {
			continue
		}
		newStart := Tomorrow(now, loc, repairStartHour)
		out := ev.Clone()
		out.Start = models.NewEventDateTime(newStart, zone(loc))
		out.End = models.NewEventDateTime(newStart.Add(repairDuration), zone(loc))
		return out, true
	}
	return ev, false
}

// Today returns the calendar date of now in loc, at midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(zone(loc)).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, zone(loc))
}

// Tomorrow returns the next calendar day in loc at the given hour.
func Tomorrow(now time.Time, loc *time.Location, hour int) time.Time {
	y, m, d := now.In(zone(loc)).Date()
	return time.Date(y, m, d+1, hour, 0, 0, 0, zone(loc))
}

// Normalizer applies the placeholder guard and the future check in that
// order. It is safe for concurrent use.
type Normalizer struct {
	placeholders []Placeholder
	lead         time.Duration
}

// New creates a Normalizer. A non-positive lead falls back to DefaultLead.
func New(placeholders []Placeholder, lead time.Duration) *Normalizer {
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Normalizer{
		placeholders: append([]Placeholder(nil), placeholders...),
		lead:         lead,
	}
}

// Placeholders returns the configured guard set.
func (n *Normalizer) Placeholders() []Placeholder {
	return append([]Placeholder(nil), n.placeholders...)
}

// Normalize returns an event whose start is after now and outside every
// placeholder month, and the adjustment that was needed to get there.
func (n *Normalizer) Normalize(ev models.StructuredEvent, now time.Time, loc *time.Location) (models.StructuredEvent, Adjustment) {
	if out, ok := RepairPlaceholder(ev, now, loc, n.placeholders); ok {
		return out, AdjustmentPlaceholder
	}
	if out, ok := ShiftToFuture(ev, now, n.lead, loc); ok {
		return out, AdjustmentShifted
	}
	return ev, AdjustmentNone
}

func bounds(ev models.StructuredEvent, loc *time.Location) (time.Time, time.Time, bool) {
	if ev.Start.DateTime == "" || ev.End.DateTime == "" {
		return time.Time{}, time.Time{}, false
	}
	start, err := ev.Start.Time(loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := ev.End.Time(loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func zone(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
