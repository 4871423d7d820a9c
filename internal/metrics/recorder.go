package metrics

import "time"

// Recorder receives pipeline measurements.
// Implementations must not block or return errors to the caller.
type Recorder interface {
	// Extraction
	ExtractionCompleted(outcome string)
	DateAdjusted(reason string)

	// Calendar writes
	ScheduleCompleted(outcome string)
	DeleteCompleted(outcome string)

	// Batch
	BatchSizeUpdate(size int)

	StageDuration(stage string, d time.Duration)
}

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeEmpty     = "empty"
	OutcomeMalformed = "malformed"
	OutcomeAuth      = "auth"
)

// Stage labels for StageDuration.
const (
	StageTranscription = "transcription"
	StageExtraction    = "extraction"
	StageSchedule      = "schedule"
)
