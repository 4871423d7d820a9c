package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"voicecal/internal/metrics"
)

// Batches keeps a separate Orchestrator, and so a separate batch, per
// caller. Every orchestrator shares the Config; the batch size reported to
// the recorder is the total across callers.
type Batches struct {
	mu      sync.Mutex
	byOwner map[string]*Orchestrator
	sizes   map[string]int

	cfg      Config
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewBatches creates an empty set of batches.
func NewBatches(logger *slog.Logger, cfg Config) *Batches {
	b := &Batches{
		byOwner:  make(map[string]*Orchestrator),
		sizes:    make(map[string]int),
		cfg:      cfg,
		recorder: cfg.Recorder,
		logger:   logger,
	}
	if b.recorder == nil {
		b.recorder = metrics.NewNoop()
	}
	return b
}

// For returns the orchestrator owning owner's batch, creating it on first use.
func (b *Batches) For(owner string) *Orchestrator {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.byOwner[owner]; ok {
		return o
	}
	cfg := b.cfg
	cfg.Recorder = &ownerRecorder{Recorder: b.recorder, batches: b, owner: owner}
	o := New(b.logger.With("caller", owner), cfg)
	b.byOwner[owner] = o
	b.logger.Debug("Batch created", "caller", owner)
	return o
}

// Location is the zone every batch extracts and displays in.
func (b *Batches) Location() *time.Location {
	if b.cfg.Location == nil {
		return time.UTC
	}
	return b.cfg.Location
}

func (b *Batches) resized(owner string, size int) {
	b.mu.Lock()
	b.sizes[owner] = size
	total := 0
	for _, n := range b.sizes {
		total += n
	}
	b.mu.Unlock()
	b.recorder.BatchSizeUpdate(total)
}

// ownerRecorder forwards everything but batch sizes, which it sums across
// owners first.
type ownerRecorder struct {
	metrics.Recorder
	batches *Batches
	owner   string
}

func (r *ownerRecorder) BatchSizeUpdate(size int) {
	r.batches.resized(r.owner, size)
}
