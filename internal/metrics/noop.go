package metrics

import "time"

// Noop is a Recorder that drops everything.
type Noop struct{}

// NewNoop returns a no-op recorder.
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) ExtractionCompleted(outcome string)          {}
func (n *Noop) DateAdjusted(reason string)                  {}
func (n *Noop) ScheduleCompleted(outcome string)            {}
func (n *Noop) DeleteCompleted(outcome string)              {}
func (n *Noop) BatchSizeUpdate(size int)                    {}
func (n *Noop) StageDuration(stage string, d time.Duration) {}
