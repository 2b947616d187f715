package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/nikitavbv/sandbox/internal/domain/task"
)

type fakeCounters struct {
	pending, inProgress, finished, activeWorkers int64
	maxAge                                       time.Duration
	hasAge                                       bool
}

func (f *fakeCounters) EnsureSchema(context.Context) error { return nil }
func (f *fakeCounters) Create(context.Context, string, *string, task.Params) error {
	return nil
}
func (f *fakeCounters) Get(context.Context, string) (task.WithAssets, error) {
	return task.WithAssets{}, task.ErrNotFound
}
func (f *fakeCounters) ListByUser(context.Context, string) ([]task.WithAssets, error) {
	return nil, nil
}
func (f *fakeCounters) LeaseNext(context.Context, string, time.Duration) (task.LeasedTask, bool, error) {
	return task.LeasedTask{}, false, nil
}
func (f *fakeCounters) SaveStatus(context.Context, string, task.Status) error { return nil }
func (f *fakeCounters) CreateAsset(context.Context, string, string) error    { return nil }
func (f *fakeCounters) PendingCount(context.Context) (int64, error)          { return f.pending, nil }
func (f *fakeCounters) InProgressCount(context.Context) (int64, error)       { return f.inProgress, nil }
func (f *fakeCounters) FinishedLast24h(context.Context) (int64, error)       { return f.finished, nil }
func (f *fakeCounters) MaxPendingAge(context.Context) (time.Duration, bool, error) {
	return f.maxAge, f.hasAge, nil
}
func (f *fakeCounters) ActiveWorkerCount(context.Context, time.Duration) (int64, error) {
	return f.activeWorkers, nil
}
func (f *fakeCounters) TouchWorkerLiveness(context.Context, string) error { return nil }

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestSamplerSampleOnceSetsGauges(t *testing.T) {
	store := &fakeCounters{pending: 3, inProgress: 2, finished: 7, activeWorkers: 4, maxAge: 90 * time.Second, hasAge: true}
	registry := prometheus.NewRegistry()
	sampler := NewSampler(store, registry, nil)

	sampler.sampleOnce(context.Background())

	require.Equal(t, float64(3), gaugeValue(t, sampler.TasksByState.WithLabelValues("pending")))
	require.Equal(t, float64(2), gaugeValue(t, sampler.TasksByState.WithLabelValues("in_progress")))
	require.Equal(t, float64(7), gaugeValue(t, sampler.TasksByState.WithLabelValues("finished")))
	require.Equal(t, float64(90), gaugeValue(t, sampler.MaxPendingSeconds))
	require.Equal(t, float64(4), gaugeValue(t, sampler.ActiveWorkers))
}

func TestSamplerSampleOnceZeroesMaxPendingWhenQueueEmpty(t *testing.T) {
	store := &fakeCounters{hasAge: false}
	registry := prometheus.NewRegistry()
	sampler := NewSampler(store, registry, nil)

	sampler.sampleOnce(context.Background())

	require.Equal(t, float64(0), gaugeValue(t, sampler.MaxPendingSeconds))
}
