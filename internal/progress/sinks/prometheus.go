package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/comic-archiver/internal/progress"
)

// PrometheusSink exports run and item progress.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsRunning   prometheus.Gauge
	runDuration   prometheus.Histogram
	itemsTotal    *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	itemsExpected prometheus.Gauge
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_runs_started_total",
			Help: "Archive runs started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_runs_running",
			Help: "Archive runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archiver_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_items_total",
			Help: "Dates reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archiver_item_duration_seconds",
			Help:    "Time from dequeue to terminal state, by outcome.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 15, 60, 600},
		}, []string{"outcome"}),
		itemsExpected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_items_expected",
			Help: "Dates enumerated by the most recent run.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsRunning,
		s.runDuration,
		s.itemsTotal,
		s.itemDuration,
		s.itemsExpected,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			s.runsRunning.Inc()
			s.itemsExpected.Set(float64(evt.Total))
		case progress.StageRunDone:
			s.runsRunning.Dec()
			if evt.Dur > 0 {
				s.runDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageItemDone:
			outcome := string(evt.Outcome)
			s.itemsTotal.WithLabelValues(outcome).Inc()
			if evt.Dur > 0 {
				s.itemDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
