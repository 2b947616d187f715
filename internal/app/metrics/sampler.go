// Package metrics implements the Metrics Aggregator (MA): a periodic gauge
// sampler over the Task Store's counter queries, plus an independent push
// loop to an external Prometheus Pushgateway. Gauge wiring
// follows the prometheus.NewGaugeVec/MustRegister idiom used across the
// retrieval pack's Prometheus-instrumented services.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/shared/logging"
)

// sampleInterval is the gauge refresh cadence ("every 10s").
const sampleInterval = 10 * time.Second

// Sampler periodically reads Task Store counters into Prometheus gauges.
type Sampler struct {
	tasks    task.Store
	logger   logging.Logger
	interval time.Duration

	TasksByState      *prometheus.GaugeVec
	MaxPendingSeconds prometheus.Gauge
	ActiveWorkers     prometheus.Gauge
}

// NewSampler builds a Sampler and registers its gauges with registerer.
func NewSampler(tasks task.Store, registerer prometheus.Registerer, logger logging.Logger) *Sampler {
	s := &Sampler{
		tasks:    tasks,
		logger:   logging.OrNop(logger),
		interval: sampleInterval,
		TasksByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_tasks_state",
			Help: "Number of tasks currently in each lifecycle state.",
		}, []string{"state"}),
		MaxPendingSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_task_pending_time_max_seconds",
			Help: "Age in seconds of the oldest task still Pending.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_workers_active_total",
			Help: "Number of workers that reported liveness within the active window.",
		}),
	}
	registerer.MustRegister(s.TasksByState, s.MaxPendingSeconds, s.ActiveWorkers)
	return s
}

// activeWorkerWindow is how recently a worker must have pinged to count as
// active ("active worker").
const activeWorkerWindow = 10 * time.Minute

// Run samples gauges every interval until ctx is canceled.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	pending, err := s.tasks.PendingCount(ctx)
	if err != nil {
		s.logger.Warn("sample pending count failed", zap.Error(err))
	} else {
		s.TasksByState.WithLabelValues("pending").Set(float64(pending))
	}

	inProgress, err := s.tasks.InProgressCount(ctx)
	if err != nil {
		s.logger.Warn("sample in_progress count failed", zap.Error(err))
	} else {
		s.TasksByState.WithLabelValues("in_progress").Set(float64(inProgress))
	}

	finished, err := s.tasks.FinishedLast24h(ctx)
	if err != nil {
		s.logger.Warn("sample finished count failed", zap.Error(err))
	} else {
		s.TasksByState.WithLabelValues("finished").Set(float64(finished))
	}

	maxAge, hasAge, err := s.tasks.MaxPendingAge(ctx)
	if err != nil {
		s.logger.Warn("sample max pending age failed", zap.Error(err))
	} else if hasAge {
		s.MaxPendingSeconds.Set(maxAge.Seconds())
	} else {
		s.MaxPendingSeconds.Set(0)
	}

	active, err := s.tasks.ActiveWorkerCount(ctx, activeWorkerWindow)
	if err != nil {
		s.logger.Warn("sample active worker count failed", zap.Error(err))
	} else {
		s.ActiveWorkers.Set(float64(active))
	}
}
