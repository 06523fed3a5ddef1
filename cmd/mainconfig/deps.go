package mainconfig

import (
	"context"
	"fmt"

	"github.com/wolfman30/legal-triage/internal/app/bootstrap"
	appconfig "github.com/wolfman30/legal-triage/internal/config"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// ConnectDeps opens only the infrastructure clients the configuration uses.
// The returned cleanup closes them in reverse order.
func ConnectDeps(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bootstrap.Deps, func(), error) {
	var deps bootstrap.Deps
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if bootstrap.NeedsRedis(cfg) {
		deps.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if deps.Redis != nil {
			client := deps.Redis
			closers = append(closers, func() { _ = client.Close() })
		}
	}

	if bootstrap.NeedsPostgres(cfg) {
		pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
		if err != nil {
			cleanup()
			return deps, nil, err
		}
		deps.Pool = pool
		closers = append(closers, pool.Close)
	}

	if NeedsAWS(cfg) {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			cleanup()
			return deps, nil, fmt.Errorf("load AWS config: %w", err)
		}
		deps.AWS = &awsCfg
	}

	return deps, cleanup, nil
}
