package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder with client_golang collectors.
// Registration failures are logged and never propagated.
type Prometheus struct {
	extractionsTotal *prometheus.CounterVec
	adjustmentsTotal *prometheus.CounterVec
	schedulesTotal   *prometheus.CounterVec
	deletesTotal     *prometheus.CounterVec
	batchSize        prometheus.Gauge
	stageDuration    *prometheus.HistogramVec

	logger *slog.Logger
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(logger *slog.Logger, reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{logger: logger}

	p.extractionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecal_extractions_total",
		Help: "Event extractions by outcome.",
	}, []string{"outcome"})
	p.adjustmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecal_date_adjustments_total",
		Help: "Event times overridden by the normalizer, by reason.",
	}, []string{"reason"})
	p.schedulesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecal_schedule_total",
		Help: "Calendar inserts by outcome.",
	}, []string{"outcome"})
	p.deletesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecal_delete_total",
		Help: "Calendar deletes by outcome.",
	}, []string{"outcome"})
	p.batchSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voicecal_batch_items",
		Help: "Number of items currently held in the batch.",
	})
	p.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicecal_stage_duration_seconds",
		Help:    "Latency of remote pipeline stages in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	p.register(reg, p.extractionsTotal, "voicecal_extractions_total")
	p.register(reg, p.adjustmentsTotal, "voicecal_date_adjustments_total")
	p.register(reg, p.schedulesTotal, "voicecal_schedule_total")
	p.register(reg, p.deletesTotal, "voicecal_delete_total")
	p.register(reg, p.batchSize, "voicecal_batch_items")
	p.register(reg, p.stageDuration, "voicecal_stage_duration_seconds")
	return p
}

func (p *Prometheus) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		p.logger.Warn("Failed to register metric", "name", name, "error", err)
	}
}

func (p *Prometheus) ExtractionCompleted(outcome string) {
	p.extractionsTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) DateAdjusted(reason string) {
	p.adjustmentsTotal.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ScheduleCompleted(outcome string) {
	p.schedulesTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) DeleteCompleted(outcome string) {
	p.deletesTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) BatchSizeUpdate(size int) {
	p.batchSize.Set(float64(size))
}

func (p *Prometheus) StageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
