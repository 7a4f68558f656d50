package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads the current value of a counter or gauge.
func value(c prometheus.Metric) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		panic(err)
	}
	if m.Counter != nil {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors are registered on that registry", func() {
				So(m, ShouldNotBeNil)
				m.runsStarted.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_runs_started_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording settlement outcomes", func() {
			before := value(globalManager.settlements.WithLabelValues("settled"))
			RecordSettlement("settled")

			Convey("Then the labelled counter increases", func() {
				So(value(globalManager.settlements.WithLabelValues("settled")), ShouldEqual, before+1)
			})
		})

		Convey("When recording fatal violations", func() {
			before := value(globalManager.fatals.WithLabelValues("max_turn_exceeded"))
			RecordFatal("max_turn_exceeded")

			Convey("Then the kind counter increases", func() {
				So(value(globalManager.fatals.WithLabelValues("max_turn_exceeded")), ShouldEqual, before+1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateLeaderboardSize(42)
			UpdateQueueSize(3)

			Convey("Then they hold the last value", func() {
				So(value(globalManager.leaderboardSize), ShouldEqual, 42)
				So(value(globalManager.queueSize), ShouldEqual, 3)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordRunStarted()
					RecordRunAbandoned()
					RecordUnfinishedPenalty()
					RecordBattleFinished()
					RecordEPDelta(300, 70)
					RecordDuplicateSettlement()
					RecordLeaderboardUpdate()
					RecordStoreLatency("commit", 0.5)
					UpdateQueueCapacity(10)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError("closed")
					RecordWorkerProcessingLatency(1)
					RecordWorkerError()
					RecordHTTPRequest("leaderboard", "GET", "200")
					RecordHTTPRequestDuration("leaderboard", "GET", "200", 2)
					RecordErrorByComponent("worker", "panic")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(8)
				}, ShouldNotPanic)
			})
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
