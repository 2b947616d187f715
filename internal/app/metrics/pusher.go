package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/nikitavbv/sandbox/internal/shared/logging"
)

// pushInterval is the outbound push cadence, independent of sampleInterval
// ("a second, independent loop pushes the same gauges to an
// external Pushgateway").
const pushInterval = 10 * time.Second

// Pusher periodically POSTs a gauge collector, in text exposition format,
// to an external Prometheus Pushgateway over HTTP basic auth.
type Pusher struct {
	pusher *push.Pusher
	logger logging.Logger
}

// NewPusher builds a Pusher targeting endpoint, authenticating with
// username/password (metrics_push.username / .password).
func NewPusher(endpoint, jobName, username, password string, gatherer prometheus.Gatherer, logger logging.Logger) *Pusher {
	p := push.New(endpoint, jobName).Gatherer(gatherer).Format(expfmt.FmtText)
	if username != "" {
		p = p.BasicAuth(username, password)
	}
	return &Pusher{pusher: p, logger: logging.OrNop(logger)}
}

// Run pushes gauges every pushInterval until ctx is canceled.
func (p *Pusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.pusher.AddContext(ctx); err != nil {
				p.logger.Warn("metrics push failed", zap.Error(err))
			}
		}
	}
}
