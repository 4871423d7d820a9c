package pipeline

import "fmt"

// Stage names a pipeline step.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageExtraction    Stage = "extraction"
	StageScheduling    Stage = "scheduling"
	StageDeletion      Stage = "deletion"
)

// StageError carries the step that failed. The underlying error is kept so
// callers can still match the models sentinels with errors.Is.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
