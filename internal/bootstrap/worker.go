package bootstrap

import (
	"fmt"
	"strings"

	"github.com/nikitavbv/sandbox/internal/app/worker"
	runtimeconfig "github.com/nikitavbv/sandbox/internal/shared/config"
	"github.com/nikitavbv/sandbox/internal/shared/logging"
)

// BuildWorker wires a Worker Client loop against the dispatcher endpoint
// named in cfg.Worker.Endpoint, using the shared worker secret from
// cfg.Token.WorkerToken as the x-access-token credential.
func BuildWorker(cfg runtimeconfig.Config, ownerID string, logger logging.Logger) (*worker.Loop, error) {
	logger = logging.OrNop(logger)

	endpoint := strings.TrimSpace(cfg.Worker.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("bootstrap: worker.endpoint not configured")
	}
	if cfg.Token.WorkerToken == "" {
		return nil, fmt.Errorf("bootstrap: token.worker_token not configured")
	}

	client := worker.NewHTTPClient(endpoint, cfg.Token.WorkerToken, cfg.Worker.StallThreshold)

	loop := worker.NewLoop(
		client,
		worker.NoopImageModel{},
		worker.NoopChatModel{},
		ownerID,
		cfg.Worker.StallThreshold,
		worker.WithLogger(logger),
	)
	return loop, nil
}
