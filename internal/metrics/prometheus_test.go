package metrics_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"voicecal/internal/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	Convey("Given a Prometheus recorder on a fresh registry", t, func() {
		reg := prometheus.NewRegistry()
		p := metrics.NewPrometheus(logger, reg)

		Convey("Counters and gauges reflect recorded values", func() {
			p.ExtractionCompleted(metrics.OutcomeOK)
			p.ExtractionCompleted(metrics.OutcomeOK)
			p.ExtractionCompleted(metrics.OutcomeMalformed)
			p.DateAdjusted("placeholder_repaired")
			p.ScheduleCompleted(metrics.OutcomeError)
			p.DeleteCompleted(metrics.OutcomeOK)
			p.BatchSizeUpdate(3)
			p.StageDuration(metrics.StageSchedule, 250*time.Millisecond)

			count, err := testutil.GatherAndCount(reg)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 7)

			families, err := reg.Gather()
			So(err, ShouldBeNil)
			byName := map[string]float64{}
			for _, f := range families {
				for _, m := range f.GetMetric() {
					switch {
					case m.GetCounter() != nil:
						byName[f.GetName()] += m.GetCounter().GetValue()
					case m.GetGauge() != nil:
						byName[f.GetName()] += m.GetGauge().GetValue()
					}
				}
			}
			So(byName["voicecal_extractions_total"], ShouldEqual, 3)
			So(byName["voicecal_date_adjustments_total"], ShouldEqual, 1)
			So(byName["voicecal_batch_items"], ShouldEqual, 3)
		})

		Convey("Registering twice logs instead of panicking", func() {
			So(func() { metrics.NewPrometheus(logger, reg) }, ShouldNotPanic)
		})
	})

	Convey("The no-op recorder accepts everything", t, func() {
		var r metrics.Recorder = metrics.NewNoop()
		So(func() {
			r.ExtractionCompleted(metrics.OutcomeOK)
			r.StageDuration(metrics.StageExtraction, time.Second)
			r.BatchSizeUpdate(0)
		}, ShouldNotPanic)
	})
}
