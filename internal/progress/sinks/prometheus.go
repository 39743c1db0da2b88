package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/deck-harvester/internal/progress"
)

// PrometheusSink exports batch-level harvest metrics.
type PrometheusSink struct {
	batchesStarted   prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchesRunning   prometheus.Gauge
	batchRuntime     prometheus.Histogram
	inputDuration    *prometheus.HistogramVec
	inputWarnings    prometheus.Counter

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg, falling back to the
// default registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckharvest_batches_started_total",
			Help: "Total harvest batches started.",
		}),
		batchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deckharvest_batches_completed_total",
			Help: "Total harvest batches completed partitioned by result.",
		}, []string{"result"}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deckharvest_batches_running",
			Help: "Current number of running batches.",
		}),
		batchRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deckharvest_batch_runtime_seconds",
			Help:    "Wall time per completed batch.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		inputDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deckharvest_input_duration_seconds",
			Help:    "Wall time per input partitioned by outcome status.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status"}),
		inputWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckharvest_deck_warnings_total",
			Help: "Normalization warnings attached to harvested decks.",
		}),
		running: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.batchesStarted,
		s.batchesCompleted,
		s.batchesRunning,
		s.batchRuntime,
		s.inputDuration,
		s.inputWarnings,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageBatchStart:
			s.batchesStarted.Inc()
			if s.track(evt.BatchID, true) {
				s.batchesRunning.Inc()
			}
		case progress.StageInputDone:
			s.inputDuration.WithLabelValues(evt.Status).Observe(evt.Dur.Seconds())
			if evt.Warnings > 0 {
				s.inputWarnings.Add(float64(evt.Warnings))
			}
		case progress.StageBatchDone:
			result := evt.Status
			if result == "" {
				result = "completed"
			}
			s.batchesCompleted.WithLabelValues(result).Inc()
			s.batchRuntime.Observe(evt.Dur.Seconds())
			if s.track(evt.BatchID, false) {
				s.batchesRunning.Dec()
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// track records a batch as running or finished and reports whether the state
// changed.
func (s *PrometheusSink) track(id string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		s.running[id] = struct{}{}
		return !ok
	}
	delete(s.running, id)
	return ok
}
