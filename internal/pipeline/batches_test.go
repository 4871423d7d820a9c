package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"voicecal/internal/metrics"
	"voicecal/internal/normalize"
	"voicecal/internal/pipeline"
	"voicecal/internal/scheduler"
)

type sizeRecorder struct {
	metrics.Noop
	sizes []int
}

func (r *sizeRecorder) BatchSizeUpdate(size int) { r.sizes = append(r.sizes, size) }

func TestBatches(t *testing.T) {
	Convey("Given batches for several callers", t, func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		loc, _ := time.LoadLocation("Asia/Karachi")
		clock := func() time.Time { return now }
		backend := &fakeBackend{fail: map[string]error{}}
		rec := &sizeRecorder{}
		n := normalize.New(nil, time.Hour)
		b := pipeline.NewBatches(logger, pipeline.Config{
			Extractor: &fakeExtractor{},
			Scheduler: scheduler.New(logger, backend, n, loc, scheduler.WithClock(clock)),
			Location:  loc,
			Recorder:  rec,
			Clock:     clock,
		})
		ctx := context.Background()

		Convey("Each owner gets one stable batch", func() {
			So(b.For("alice"), ShouldEqual, b.For("alice"))
			So(b.For("alice"), ShouldNotEqual, b.For("bob"))
			So(b.Location(), ShouldEqual, loc)
		})

		Convey("Items stay in their owner's batch", func() {
			it, err := b.For("alice").ProcessTranscript(ctx, "a")
			So(err, ShouldBeNil)
			So(b.For("bob").Items(), ShouldBeEmpty)
			_, err = b.For("bob").Get(it.ID)
			So(err, ShouldNotBeNil)

			So(b.For("bob").ScheduleAll(ctx).Succeeded, ShouldBeEmpty)
			So(backend.inserts, ShouldBeEmpty)
		})

		Convey("The reported batch size is the total across owners", func() {
			_, _ = b.For("alice").ProcessTranscript(ctx, "a")
			_, _ = b.For("bob").ProcessTranscript(ctx, "b")
			bob, _ := b.For("bob").ProcessTranscript(ctx, "c")
			So(b.For("bob").Delete(ctx, bob.ID), ShouldBeNil)
			So(rec.sizes, ShouldResemble, []int{1, 2, 3, 2})
		})
	})
}
