// Package pipeline sequences transcription, extraction and scheduling and
// owns the in-memory batch of extracted events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicecal/internal/extract"
	"voicecal/internal/metrics"
	"voicecal/internal/models"
	"voicecal/internal/normalize"
	"voicecal/internal/scheduler"
)

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error)
}

// Extractor turns a transcript into a normalized event.
type Extractor interface {
	Extract(ctx context.Context, transcript string, now time.Time, loc *time.Location) (extract.Result, error)
}

// Scheduler writes events to the calendar.
type Scheduler interface {
	ScheduleOne(ctx context.Context, event models.StructuredEvent) (scheduler.Submission, error)
	ScheduleMany(ctx context.Context, events []models.StructuredEvent) scheduler.BatchResult
	DeleteOne(ctx context.Context, remoteID string) error
}

// Config wires an Orchestrator. Transcriber may be nil when only text input
// is used.
type Config struct {
	Transcriber Transcriber
	Extractor   Extractor
	Scheduler   Scheduler
	Language    string
	Location    *time.Location
	Recorder    metrics.Recorder
	Clock       func() time.Time
}

// Failure is an item ScheduleAll could not schedule.
type Failure struct {
	ID  string
	Err error
}

// Summary aggregates ScheduleAll. Adjusted counts scheduled items whose
// time was overridden right before submission.
type Summary struct {
	Succeeded []Item
	Failed    []Failure
	Skipped   int // items being edited or with a call in flight
	Adjusted  int
}

// Orchestrator owns the batch. All methods are safe for concurrent use;
// batch entries are only ever replaced whole.
type Orchestrator struct {
	mu       sync.Mutex
	items    map[string]Item
	order    []string
	inflight map[string]struct{}

	transcriber Transcriber
	extractor   Extractor
	scheduler   Scheduler
	language    string
	loc         *time.Location
	now         func() time.Time
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// New creates an Orchestrator with an empty batch.
func New(logger *slog.Logger, cfg Config) *Orchestrator {
	o := &Orchestrator{
		items:       make(map[string]Item),
		inflight:    make(map[string]struct{}),
		transcriber: cfg.Transcriber,
		extractor:   cfg.Extractor,
		scheduler:   cfg.Scheduler,
		language:    cfg.Language,
		loc:         cfg.Location,
		now:         cfg.Clock,
		recorder:    cfg.Recorder,
		logger:      logger,
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.recorder == nil {
		o.recorder = metrics.NewNoop()
	}
	return o
}

// Location is the zone used for extraction and display.
func (o *Orchestrator) Location() *time.Location { return o.loc }

// ProcessAudio transcribes audio and extracts an event from the transcript.
// Zero-length audio fails before any remote call.
func (o *Orchestrator) ProcessAudio(ctx context.Context, audio []byte, filename string) (Item, error) {
	if len(audio) == 0 {
		return Item{}, stageErr(StageTranscription, models.ErrEmptyInput)
	}
	if o.transcriber == nil {
		return Item{}, stageErr(StageTranscription, errors.New("no transcription service configured"))
	}

	started := time.Now()
	text, err := o.transcriber.Transcribe(ctx, audio, filename, o.language)
	o.recorder.StageDuration(metrics.StageTranscription, time.Since(started))
	if err != nil {
		o.logger.Error("Transcription failed", "error", err)
		return Item{}, stageErr(StageTranscription, err)
	}
	o.logger.Debug("Audio transcribed", "bytes", len(audio), "transcriptLength", len(text))

	return o.ProcessTranscript(ctx, text)
}

// ProcessTranscript extracts an event and adds it to the batch.
func (o *Orchestrator) ProcessTranscript(ctx context.Context, transcript string) (Item, error) {
	now := o.now()
	res, err := o.extractor.Extract(ctx, transcript, now, o.loc)
	if err != nil {
		o.logger.Error("Extraction failed", "error", err)
		return Item{}, stageErr(StageExtraction, err)
	}

	item := Item{
		ID:               uuid.NewString(),
		Event:            res.Event,
		SourceTranscript: transcript,
		NeedsAdjustment:  res.Adjustment.Adjusted(),
		Adjustment:       res.Adjustment,
		CreatedAt:        now,
	}

	o.mu.Lock()
	o.items[item.ID] = item
	o.order = append(o.order, item.ID)
	size := len(o.order)
	o.mu.Unlock()

	o.recorder.BatchSizeUpdate(size)
	o.logger.Info("Event added to batch", "id", item.ID, "title", item.Event.Summary, "adjusted", item.NeedsAdjustment)
	return item.clone(), nil
}

// Items returns a snapshot of the batch in insertion order.
func (o *Orchestrator) Items() []Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Item, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.items[id].clone())
	}
	return out
}

// Get returns one item.
func (o *Orchestrator) Get(id string) (Item, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it, ok := o.items[id]
	if !ok {
		return Item{}, models.ErrItemNotFound
	}
	return it.clone(), nil
}

// BeginEdit moves an extracted item into editing.
func (o *Orchestrator) BeginEdit(id string) (Item, error) {
	return o.update(id, func(it Item) (Item, error) {
		if it.Scheduled {
			return it, fmt.Errorf("%w: scheduled items cannot be edited", models.ErrInvalidTransition)
		}
		it.Editing = true
		return it, nil
	})
}

// ApplyEdit replaces the event of an item being edited and returns it to
// the extracted state. The edited time is the user's choice, so any earlier
// adjustment flag is cleared; the scheduler still re-checks it on submit.
func (o *Orchestrator) ApplyEdit(id string, event models.StructuredEvent) (Item, error) {
	if err := event.Validate(o.loc); err != nil {
		return Item{}, fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)
	}
	event, err := event.Anchored(o.loc)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)
	}
	return o.update(id, func(it Item) (Item, error) {
		if !it.Editing {
			return it, fmt.Errorf("%w: item is not being edited", models.ErrInvalidTransition)
		}
		it.Event = event.Clone()
		it.Editing = false
		it.NeedsAdjustment = false
		it.Adjustment = normalize.AdjustmentNone
		return it, nil
	})
}

// CancelEdit leaves editing without changing the event.
func (o *Orchestrator) CancelEdit(id string) (Item, error) {
	return o.update(id, func(it Item) (Item, error) {
		if !it.Editing {
			return it, fmt.Errorf("%w: item is not being edited", models.ErrInvalidTransition)
		}
		it.Editing = false
		return it, nil
	})
}

// Schedule submits one extracted item. The item is only marked scheduled
// after the backend confirmed the insert.
func (o *Orchestrator) Schedule(ctx context.Context, id string) (Item, error) {
	it, _, err := o.schedule(ctx, id)
	return it, err
}

// ScheduleAll submits every extracted item one after another. A failing
// item does not stop the rest. Items being edited or with a call in flight
// are skipped; the rest stay busy until the whole batch has been sent.
func (o *Orchestrator) ScheduleAll(ctx context.Context) Summary {
	var sum Summary

	o.mu.Lock()
	var pending []Item
	for _, id := range o.order {
		it := o.items[id]
		if it.Scheduled {
			continue
		}
		if _, busy := o.inflight[id]; busy || it.Editing {
			sum.Skipped++
			continue
		}
		o.inflight[id] = struct{}{}
		pending = append(pending, it.clone())
	}
	o.mu.Unlock()

	o.logger.Info("Starting batch scheduling", "pending", len(pending), "skipped", sum.Skipped)
	events := make([]models.StructuredEvent, len(pending))
	for i, it := range pending {
		events[i] = it.Event
	}
	res := o.scheduler.ScheduleMany(ctx, events)

	o.mu.Lock()
	for _, done := range res.Succeeded {
		it := pending[done.Index]
		it.Event = done.Event
		it.Scheduled = true
		it.RemoteID = done.RemoteID
		if done.Adjustment.Adjusted() {
			it.NeedsAdjustment = true
			it.Adjustment = done.Adjustment
			sum.Adjusted++
		}
		o.items[it.ID] = it
		sum.Succeeded = append(sum.Succeeded, it.clone())
	}
	for _, failed := range res.Failed {
		sum.Failed = append(sum.Failed, Failure{ID: pending[failed.Index].ID, Err: stageErr(StageScheduling, failed.Err)})
	}
	for _, it := range pending {
		delete(o.inflight, it.ID)
	}
	o.mu.Unlock()

	return sum
}

// Delete discards an item. A scheduled item is deleted remotely first and
// kept locally when that fails.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	it, err := o.acquire(id)
	if err != nil {
		return err
	}

	if it.Scheduled {
		if err := o.scheduler.DeleteOne(ctx, it.RemoteID); err != nil {
			o.release(id)
			o.logger.Error("Failed to delete scheduled event", "id", id, "remoteId", it.RemoteID, "error", err)
			return stageErr(StageDeletion, err)
		}
	}

	o.mu.Lock()
	delete(o.inflight, id)
	delete(o.items, id)
	for i, other := range o.order {
		if other == id {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
	size := len(o.order)
	o.mu.Unlock()

	o.recorder.BatchSizeUpdate(size)
	o.logger.Info("Event removed from batch", "id", id, "wasScheduled", it.Scheduled)
	return nil
}

func (o *Orchestrator) schedule(ctx context.Context, id string) (Item, normalize.Adjustment, error) {
	it, err := o.acquire(id)
	if err != nil {
		return Item{}, normalize.AdjustmentNone, err
	}
	if it.Scheduled || it.Editing {
		o.release(id)
		return Item{}, normalize.AdjustmentNone, fmt.Errorf("%w: item is %s", models.ErrInvalidTransition, it.State())
	}

	sub, err := o.scheduler.ScheduleOne(ctx, it.Event)
	if err != nil {
		o.release(id)
		o.logger.Error("Failed to schedule event", "id", id, "title", it.Event.Summary, "error", err)
		return Item{}, normalize.AdjustmentNone, stageErr(StageScheduling, err)
	}

	it.Event = sub.Event
	it.Scheduled = true
	it.RemoteID = sub.RemoteID
	if sub.Adjustment.Adjusted() {
		it.NeedsAdjustment = true
		it.Adjustment = sub.Adjustment
	}

	o.mu.Lock()
	o.items[id] = it
	delete(o.inflight, id)
	o.mu.Unlock()

	return it.clone(), sub.Adjustment, nil
}

// acquire marks id as having a remote call in flight and returns a copy of
// the item.
func (o *Orchestrator) acquire(id string) (Item, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it, ok := o.items[id]
	if !ok {
		return Item{}, models.ErrItemNotFound
	}
	if _, busy := o.inflight[id]; busy {
		return Item{}, models.ErrItemBusy
	}
	o.inflight[id] = struct{}{}
	return it.clone(), nil
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

// update applies fn to a copy of the item and stores the result.
func (o *Orchestrator) update(id string, fn func(Item) (Item, error)) (Item, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it, ok := o.items[id]
	if !ok {
		return Item{}, models.ErrItemNotFound
	}
	if _, busy := o.inflight[id]; busy {
		return Item{}, models.ErrItemBusy
	}
	next, err := fn(it.clone())
	if err != nil {
		return Item{}, err
	}
	o.items[id] = next
	return next.clone(), nil
}
