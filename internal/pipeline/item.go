package pipeline

import (
	"time"

	"voicecal/internal/models"
	"voicecal/internal/normalize"
)

// State is the lifecycle position of an Item.
type State string

const (
	StateExtracted State = "extracted"
	StateEditing   State = "editing"
	StateScheduled State = "scheduled"
)

// Item is one utterance's event held in the batch. Items are values: the
// orchestrator never hands out a pointer into its own state.
type Item struct {
	ID               string                 `json:"id"`
	Event            models.StructuredEvent `json:"event"`
	SourceTranscript string                 `json:"sourceTranscript"`
	Scheduled        bool                   `json:"scheduled"`
	RemoteID         string                 `json:"remoteId,omitempty"`
	NeedsAdjustment  bool                   `json:"needsAdjustment"`
	Adjustment       normalize.Adjustment   `json:"adjustment,omitempty"`
	Editing          bool                   `json:"editing"`
	CreatedAt        time.Time              `json:"createdAt"`
}

// State derives the lifecycle state from the item's flags.
func (it Item) State() State {
	switch {
	case it.Scheduled:
		return StateScheduled
	case it.Editing:
		return StateEditing
	default:
		return StateExtracted
	}
}

// Warning is the user-facing safety override notice, empty when the time
// is the model's (or the user's) own choice.
func (it Item) Warning() string {
	if !it.NeedsAdjustment {
		return ""
	}
	return it.Adjustment.Warning()
}

func (it Item) clone() Item {
	out := it
	out.Event = it.Event.Clone()
	return out
}
