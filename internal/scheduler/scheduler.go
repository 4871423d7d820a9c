// Package scheduler commits structured events to a calendar backend.
// It is stateless: every write re-runs the date checks against the current
// time, because an event may have sat in a batch long enough to go stale.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicecal/internal/metrics"
	"voicecal/internal/models"
	"voicecal/internal/normalize"
)

// Backend is a remote calendar bound to one calendar id.
type Backend interface {
	Insert(ctx context.Context, event models.StructuredEvent) (string, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, timeMin, timeMax time.Time, timeZone string) ([]models.CalendarEntry, error)
}

// Submission describes one successful insert.
type Submission struct {
	RemoteID   string
	Event      models.StructuredEvent // as sent, after re-validation
	Adjustment normalize.Adjustment
}

// Scheduled is a successful batch entry; Index points into the input slice.
type Scheduled struct {
	Index int
	Submission
}

// Failure is a failed batch entry.
type Failure struct {
	Index int
	Event models.StructuredEvent
	Err   error
}

// BatchResult aggregates ScheduleMany. Adjusted counts succeeded events
// whose time was overridden right before submission.
type BatchResult struct {
	Succeeded []Scheduled
	Failed    []Failure
	Adjusted  int
}

// Scheduler writes events through a Backend.
type Scheduler struct {
	backend    Backend
	normalizer *normalize.Normalizer
	loc        *time.Location
	now        func() time.Time
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// New creates a Scheduler projecting wall-clock times into loc.
func New(logger *slog.Logger, backend Backend, normalizer *normalize.Normalizer, loc *time.Location, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		backend:    backend,
		normalizer: normalizer,
		loc:        loc,
		now:        time.Now,
		recorder:   metrics.NewNoop(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleOne validates and re-normalizes event, then inserts it. Backend
// failures are returned once, without retry, as models.ErrAuth or a
// *models.RemoteServiceError.
func (s *Scheduler) ScheduleOne(ctx context.Context, event models.StructuredEvent) (Submission, error) {
	if err := event.Validate(s.loc); err != nil {
		s.recorder.ScheduleCompleted(metrics.OutcomeError)
		return Submission{}, fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)
	}
	event, err := event.Anchored(s.loc)
	if err != nil {
		s.recorder.ScheduleCompleted(metrics.OutcomeError)
		return Submission{}, fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)
	}

	out, adj := s.normalizer.Normalize(event, s.now(), s.loc)
	if adj.Adjusted() {
		s.recorder.DateAdjusted(string(adj))
		s.logger.Warn("Event date overridden before submission", "title", out.Summary, "reason", adj,
			"previousStart", event.Start.DateTime, "start", out.Start.DateTime)
	}

	started := time.Now()
	id, err := s.backend.Insert(ctx, out)
	s.recorder.StageDuration(metrics.StageSchedule, time.Since(started))
	if err != nil {
		err = remoteError("insert", err)
		s.recorder.ScheduleCompleted(outcome(err))
		return Submission{}, err
	}

	s.recorder.ScheduleCompleted(metrics.OutcomeOK)
	s.logger.Info("Event scheduled", "title", out.Summary, "id", id, "start", out.Start.DateTime)
	return Submission{RemoteID: id, Event: out, Adjustment: adj}, nil
}

// ScheduleMany submits events one after another. A failure is recorded and
// the loop continues; every event is attempted and order is preserved.
func (s *Scheduler) ScheduleMany(ctx context.Context, events []models.StructuredEvent) BatchResult {
	var res BatchResult
	for i, event := range events {
		sub, err := s.ScheduleOne(ctx, event)
		if err != nil {
			s.logger.Error("Failed to schedule event", "title", event.Summary, "index", i, "error", err)
			res.Failed = append(res.Failed, Failure{Index: i, Event: event, Err: err})
			continue
		}
		if sub.Adjustment.Adjusted() {
			res.Adjusted++
		}
		res.Succeeded = append(res.Succeeded, Scheduled{Index: i, Submission: sub})
	}
	s.logger.Info("Batch scheduling finished", "succeeded", len(res.Succeeded), "failed", len(res.Failed), "adjusted", res.Adjusted)
	return res
}

// DeleteOne removes a previously scheduled event.
func (s *Scheduler) DeleteOne(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return errors.New("remote id is empty")
	}
	if err := s.backend.Delete(ctx, remoteID); err != nil {
		err = remoteError("delete", err)
		s.recorder.DeleteCompleted(outcome(err))
		return err
	}
	s.recorder.DeleteCompleted(metrics.OutcomeOK)
	s.logger.Info("Event deleted", "id", remoteID)
	return nil
}

// Upcoming lists backend events in [from, to) rendered in the scheduler's zone.
func (s *Scheduler) Upcoming(ctx context.Context, from, to time.Time) ([]models.CalendarEntry, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid range: %s is not after %s", to, from)
	}
	entries, err := s.backend.List(ctx, from, to, s.loc.String())
	if err != nil {
		return nil, remoteError("list", err)
	}
	return entries, nil
}

// remoteError keeps auth and remote errors as they are and wraps anything
// else the backend returned as a remote service error.
func remoteError(op string, err error) error {
	if errors.Is(err, models.ErrAuth) || models.IsRemote(err) {
		return err
	}
	return &models.RemoteServiceError{Op: op, Err: err}
}

func outcome(err error) string {
	if errors.Is(err, models.ErrAuth) {
		return metrics.OutcomeAuth
	}
	return metrics.OutcomeError
}
