// Package extract turns a transcript into a StructuredEvent using a text
// completion service, then re-checks the result against the real clock.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"voicecal/internal/metrics"
	"voicecal/internal/models"
	"voicecal/internal/normalize"
)

// Completer is a language model completion service.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Result is an extracted, normalized event.
type Result struct {
	Event      models.StructuredEvent
	Adjustment normalize.Adjustment
	Raw        string // completion output as received
}

// Extractor extracts events from transcripts.
type Extractor struct {
	completer  Completer
	normalizer *normalize.Normalizer
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// New creates an Extractor. A nil recorder disables metrics.
func New(logger *slog.Logger, completer Completer, normalizer *normalize.Normalizer, recorder metrics.Recorder) *Extractor {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Extractor{
		completer:  completer,
		normalizer: normalizer,
		recorder:   recorder,
		logger:     logger,
	}
}

// Extract builds a prompt anchored to now in loc, asks the completer for an
// event and normalizes the answer. Completion and decode failures are
// returned as is; there is no retry.
func (e *Extractor) Extract(ctx context.Context, transcript string, now time.Time, loc *time.Location) (Result, error) {
	if strings.TrimSpace(transcript) == "" {
		e.recorder.ExtractionCompleted(metrics.OutcomeEmpty)
		return Result{}, fmt.Errorf("transcript is blank: %w", models.ErrEmptyInput)
	}

	system := SystemPrompt(now, loc, e.normalizer.Placeholders())
	e.logger.Debug("Requesting event extraction", "transcriptLength", len(transcript))

	started := time.Now()
	raw, err := e.completer.Complete(ctx, system, transcript)
	e.recorder.StageDuration(metrics.StageExtraction, time.Since(started))
	if err != nil {
		e.recorder.ExtractionCompleted(metrics.OutcomeError)
		return Result{}, fmt.Errorf("completion request failed: %w", err)
	}

	ev, err := Decode(raw, loc)
	if err != nil {
		e.recorder.ExtractionCompleted(metrics.OutcomeMalformed)
		e.logger.Warn("Model output rejected", "error", err)
		return Result{}, err
	}

	// The prompt already forbids past and placeholder dates; the model does
	// not always comply.
	out, adj := e.normalizer.Normalize(ev, now, loc)
	if adj.Adjusted() {
		e.recorder.DateAdjusted(string(adj))
		e.logger.Warn("Extracted date overridden", "title", out.Summary, "reason", adj,
			"extractedStart", ev.Start.DateTime, "start", out.Start.DateTime)
	}

	e.recorder.ExtractionCompleted(metrics.OutcomeOK)
	e.logger.Info("Event extracted", "title", out.Summary, "start", out.Start.DateTime)
	return Result{Event: out, Adjustment: adj, Raw: raw}, nil
}

// Decode parses completion output strictly: exactly one JSON object, no
// markdown fencing, no unknown fields, and a valid event shape. Start and
// end are returned as absolute instants; a value without an offset is read
// in its own timeZone, or in loc when it has none.
func Decode(raw string, loc *time.Location) (models.StructuredEvent, error) {
	var ev models.StructuredEvent

	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return ev, malformed(errors.New("output is not a JSON object"))
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		return models.StructuredEvent{}, malformed(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.StructuredEvent{}, malformed(errors.New("unexpected data after JSON object"))
	}
	if err := ev.Validate(loc); err != nil {
		return models.StructuredEvent{}, malformed(err)
	}
	anchored, err := ev.Anchored(loc)
	if err != nil {
		return models.StructuredEvent{}, malformed(err)
	}
	return anchored, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", models.ErrMalformedModelOutput, err)
}
