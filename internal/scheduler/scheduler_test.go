package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"voicecal/internal/models"
	"voicecal/internal/normalize"
	"voicecal/internal/scheduler"
)

type fakeBackend struct {
	mu        sync.Mutex
	inserted  []models.StructuredEvent
	deleted   []string
	failOn    map[string]error // by summary
	deleteErr error
	listed    []string
}

func (f *fakeBackend) Insert(_ context.Context, ev models.StructuredEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, ev)
	if err := f.failOn[ev.Summary]; err != nil {
		return "", err
	}
	return "remote-" + ev.Summary, nil
}

func (f *fakeBackend) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeBackend) List(_ context.Context, _, _ time.Time, tz string) ([]models.CalendarEntry, error) {
	f.listed = append(f.listed, tz)
	return []models.CalendarEntry{{ID: "x"}}, nil
}

func ev(summary, start, end string) models.StructuredEvent {
	return models.StructuredEvent{
		Summary: summary,
		Start:   models.EventDateTime{DateTime: start},
		End:     models.EventDateTime{DateTime: end},
	}
}

func newScheduler(b scheduler.Backend, now time.Time) *scheduler.Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loc, _ := time.LoadLocation("Asia/Karachi")
	n := normalize.New([]normalize.Placeholder{{Year: 2023, Month: time.October}}, time.Hour)
	return scheduler.New(logger, b, n, loc, scheduler.WithClock(func() time.Time { return now }))
}

func TestScheduleOne(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	Convey("Given a scheduler at a fixed time", t, func() {
		b := &fakeBackend{failOn: map[string]error{}}
		s := newScheduler(b, now)

		Convey("A future event is sent at the same instant", func() {
			in := ev("a", "2025-06-02T09:00:00+05:00", "2025-06-02T10:00:00+05:00")
			sub, err := s.ScheduleOne(context.Background(), in)
			So(err, ShouldBeNil)
			So(sub.RemoteID, ShouldEqual, "remote-a")
			So(sub.Adjustment, ShouldEqual, normalize.AdjustmentNone)
			So(b.inserted[0].Summary, ShouldEqual, "a")
			So(b.inserted[0].Start.DateTime, ShouldEqual, in.Start.DateTime)
			So(b.inserted[0].End.DateTime, ShouldEqual, in.End.DateTime)
			So(b.inserted[0].Start.TimeZone, ShouldEqual, "Asia/Karachi")
		})

		Convey("An offsetless time is sent as an instant in the scheduler's zone", func() {
			_, err := s.ScheduleOne(context.Background(), ev("a", "2025-06-02T09:00:00", "2025-06-02T10:00:00"))
			So(err, ShouldBeNil)
			So(b.inserted[0].Start.DateTime, ShouldEqual, "2025-06-02T09:00:00+05:00")
			So(b.inserted[0].End.DateTime, ShouldEqual, "2025-06-02T10:00:00+05:00")
			So(b.inserted[0].Start.TimeZone, ShouldEqual, "Asia/Karachi")
		})

		Convey("An event that went stale while waiting is re-validated before the write", func() {
			in := ev("a", "2025-06-01T14:00:00+05:00", "2025-06-01T14:45:00+05:00") // 09:00 UTC, an hour ago
			sub, err := s.ScheduleOne(context.Background(), in)
			So(err, ShouldBeNil)
			So(sub.Adjustment, ShouldEqual, normalize.AdjustmentShifted)
			start, _ := b.inserted[0].Start.Time(nil)
			end, _ := b.inserted[0].End.Time(nil)
			So(start.After(now), ShouldBeTrue)
			So(end.Sub(start), ShouldEqual, 45*time.Minute)
		})

		Convey("A placeholder date is repaired before the write", func() {
			_, err := s.ScheduleOne(context.Background(), ev("a", "2023-10-15T09:00:00Z", "2023-10-15T10:00:00Z"))
			So(err, ShouldBeNil)
			So(b.inserted[0].Start.DateTime, ShouldEqual, "2025-06-02T09:00:00+05:00")
		})

		Convey("An auth failure is surfaced as is", func() {
			b.failOn["a"] = models.ErrAuth
			_, err := s.ScheduleOne(context.Background(), ev("a", "2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))
			So(errors.Is(err, models.ErrAuth), ShouldBeTrue)
		})

		Convey("Other backend errors become remote service errors", func() {
			b.failOn["a"] = errors.New("connection reset")
			_, err := s.ScheduleOne(context.Background(), ev("a", "2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))
			var remote *models.RemoteServiceError
			So(errors.As(err, &remote), ShouldBeTrue)
			So(remote.Op, ShouldEqual, "insert")
			So(b.inserted, ShouldHaveLength, 1)
		})

		Convey("An invalid event is never sent", func() {
			_, err := s.ScheduleOne(context.Background(), ev("", "2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"))
			So(errors.Is(err, models.ErrInvalidEvent), ShouldBeTrue)
			So(b.inserted, ShouldBeEmpty)
		})
	})
}

func TestScheduleMany(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	Convey("Given three events where the second one fails remotely", t, func() {
		b := &fakeBackend{failOn: map[string]error{"two": &models.RemoteServiceError{Op: "insert", Status: 500, Err: errors.New("boom")}}}
		s := newScheduler(b, now)
		events := []models.StructuredEvent{
			ev("one", "2025-06-02T09:00:00Z", "2025-06-02T10:00:00Z"),
			ev("two", "2025-06-02T11:00:00Z", "2025-06-02T12:00:00Z"),
			ev("three", "2025-05-01T09:00:00Z", "2025-05-01T10:00:00Z"),
		}

		res := s.ScheduleMany(context.Background(), events)

		Convey("Items one and three succeed and two fails", func() {
			So(res.Succeeded, ShouldHaveLength, 2)
			So(res.Succeeded[0].Index, ShouldEqual, 0)
			So(res.Succeeded[0].RemoteID, ShouldEqual, "remote-one")
			So(res.Succeeded[1].Index, ShouldEqual, 2)
			So(res.Failed, ShouldHaveLength, 1)
			So(res.Failed[0].Index, ShouldEqual, 1)
			So(models.IsRemote(res.Failed[0].Err), ShouldBeTrue)
		})

		Convey("Every item was attempted in order", func() {
			So(b.inserted, ShouldHaveLength, 3)
			So(b.inserted[2].Summary, ShouldEqual, "three")
		})

		Convey("The stale third item is counted as adjusted", func() {
			So(res.Adjusted, ShouldEqual, 1)
		})
	})

	Convey("N events with K failures yield N-K successes", t, func() {
		for k := 0; k <= 5; k++ {
			b := &fakeBackend{failOn: map[string]error{}}
			var events []models.StructuredEvent
			for i := 0; i < 5; i++ {
				name := string(rune('a' + i))
				if i < k {
					b.failOn[name] = errors.New("rejected")
				}
				events = append(events, ev(name, "2025-06-03T09:00:00Z", "2025-06-03T10:00:00Z"))
			}
			res := newScheduler(b, now).ScheduleMany(context.Background(), events)
			So(res.Succeeded, ShouldHaveLength, 5-k)
			So(res.Failed, ShouldHaveLength, k)
			So(b.inserted, ShouldHaveLength, 5)
		}
	})
}

func TestDeleteAndList(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	Convey("DeleteOne", t, func() {
		b := &fakeBackend{}
		s := newScheduler(b, now)

		So(s.DeleteOne(context.Background(), "remote-a"), ShouldBeNil)
		So(b.deleted, ShouldResemble, []string{"remote-a"})

		b.deleteErr = errors.New("nope")
		So(models.IsRemote(s.DeleteOne(context.Background(), "remote-a")), ShouldBeTrue)

		So(s.DeleteOne(context.Background(), ""), ShouldNotBeNil)
	})

	Convey("Upcoming lists in the scheduler's zone", t, func() {
		b := &fakeBackend{}
		s := newScheduler(b, now)

		entries, err := s.Upcoming(context.Background(), now, now.Add(24*time.Hour))
		So(err, ShouldBeNil)
		So(entries, ShouldHaveLength, 1)
		So(b.listed, ShouldResemble, []string{"Asia/Karachi"})

		_, err = s.Upcoming(context.Background(), now, now)
		So(err, ShouldNotBeNil)
	})
}
