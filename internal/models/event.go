package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// localLayout is accepted when the model omits the UTC offset; the value is
// then read in the event's own time zone.
const localLayout = "2006-01-02T15:04:05"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// EventDateTime is a point in time as the calendar API expresses it:
// an ISO-8601 instant with explicit offset plus the IANA zone it was
// entered in.
type EventDateTime struct {
	DateTime string `json:"dateTime" validate:"required"`
	TimeZone string `json:"timeZone,omitempty" validate:"omitempty,timezone"`
}

// Attendee is an invited participant.
type Attendee struct {
	Email string `json:"email" validate:"required,email"`
}

// ReminderOverride replaces the calendar's default reminder.
type ReminderOverride struct {
	Method  string `json:"method" validate:"oneof=email popup"`
	Minutes int    `json:"minutes" validate:"gte=0,lte=40320"`
}

// Reminders configures notifications for an event.
type Reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides,omitempty" validate:"omitempty,max=5,dive"`
}

// StructuredEvent is the normalized calendar event produced from an utterance.
// The JSON shape follows the Google Calendar API event resource so that the
// model output can be decoded directly.
type StructuredEvent struct {
	Summary     string        `json:"summary" validate:"required"`
	Location    string        `json:"location,omitempty"`
	Description string        `json:"description,omitempty"`
	Start       EventDateTime `json:"start"`
	End         EventDateTime `json:"end"`
	Recurrence  []string      `json:"recurrence,omitempty"` // RRULE lines, passed through untouched
	Attendees   []Attendee    `json:"attendees,omitempty" validate:"omitempty,dive"`
	Reminders   *Reminders    `json:"reminders,omitempty"`
}

// CalendarEntry is an event as stored by a calendar backend.
type CalendarEntry struct {
	ID    string          `json:"id"`
	Link  string          `json:"link,omitempty"`
	Event StructuredEvent `json:"event"`
}

// Time parses the instant. Values without an offset are interpreted in the
// entry's TimeZone, falling back to fallback (or UTC) when none is set.
func (dt EventDateTime) Time(fallback *time.Location) (time.Time, error) {
	s := strings.TrimSpace(dt.DateTime)
	if s == "" {
		return time.Time{}, errors.New("empty dateTime")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	loc := fallback
	if dt.TimeZone != "" {
		l, err := time.LoadLocation(dt.TimeZone)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown time zone %q: %w", dt.TimeZone, err)
		}
		loc = l
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(localLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dateTime %q: %w", dt.DateTime, err)
	}
	return t, nil
}

// Anchored returns dt as an absolute instant: RFC3339 with an explicit
// offset, rendered in dt's own zone when it has one and in fallback
// otherwise. The zone name is always set.
func (dt EventDateTime) Anchored(fallback *time.Location) (EventDateTime, error) {
	t, err := dt.Time(fallback)
	if err != nil {
		return EventDateTime{}, err
	}
	loc := fallback
	if dt.TimeZone != "" {
		// Time already proved the zone loads.
		loc, _ = time.LoadLocation(dt.TimeZone)
	}
	return NewEventDateTime(t, loc), nil
}

// NewEventDateTime renders t in loc with an explicit offset.
func NewEventDateTime(t time.Time, loc *time.Location) EventDateTime {
	if loc == nil {
		loc = time.UTC
	}
	return EventDateTime{DateTime: t.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
}

// Validate checks the event's shape: required fields, enum values, parseable
// times and end strictly after start. Times without an offset are read as
// EventDateTime.Time does with fallback.
func (e StructuredEvent) Validate(fallback *time.Location) error {
	validateOnce.Do(func() { validate = validator.New() })

	if err := validate.Struct(e); err != nil {
		return err
	}
	if strings.TrimSpace(e.Summary) == "" {
		return errors.New("summary is blank")
	}
	start, err := e.Start.Time(fallback)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := e.End.Time(fallback)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("end %s is not after start %s", e.End.DateTime, e.Start.DateTime)
	}
	return nil
}

// Anchored returns a copy of e whose start and end are absolute instants,
// see EventDateTime.Anchored.
func (e StructuredEvent) Anchored(fallback *time.Location) (StructuredEvent, error) {
	start, err := e.Start.Anchored(fallback)
	if err != nil {
		return StructuredEvent{}, fmt.Errorf("start: %w", err)
	}
	end, err := e.End.Anchored(fallback)
	if err != nil {
		return StructuredEvent{}, fmt.Errorf("end: %w", err)
	}
	out := e.Clone()
	out.Start = start
	out.End = end
	return out, nil
}

// Clone returns a deep copy so that batch items never share slices.
func (e StructuredEvent) Clone() StructuredEvent {
	c := e
	if e.Recurrence != nil {
		c.Recurrence = append([]string(nil), e.Recurrence...)
	}
	if e.Attendees != nil {
		c.Attendees = append([]Attendee(nil), e.Attendees...)
	}
	if e.Reminders != nil {
		r := *e.Reminders
		if r.Overrides != nil {
			r.Overrides = append([]ReminderOverride(nil), r.Overrides...)
		}
		c.Reminders = &r
	}
	return c
}
