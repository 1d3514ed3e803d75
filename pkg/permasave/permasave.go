// Package permasave persists immutable, content-addressed snapshots of
// application state ("checkpoints") in an external blob store, and finds
// them again through the store's tag index.
//
// The heavy lifting lives in the subpackages:
//
//   - checkpoint: the save/load/list operations and their selection policy
//   - store: the content-addressed store contract plus HTTP, SQLite, and
//     in-memory implementations
//   - config: environment and file configuration
//   - observability: slog helpers, OpenTelemetry metrics and tracing
//
// This package only wires them together:
//
//	cfg, err := config.FromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr, err := permasave.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = mgr.Save(ctx, owner, "my-game", map[string]any{"level": 3})
package permasave

import (
	"fmt"

	"github.com/permasave/permasave/pkg/permasave/checkpoint"
	"github.com/permasave/permasave/pkg/permasave/config"
	"github.com/permasave/permasave/pkg/permasave/observability"
	"github.com/permasave/permasave/pkg/permasave/store"
)

// Open builds a checkpoint Manager backed by the HTTP store described in cfg.
func Open(cfg config.Config, opts ...checkpoint.Option) (*checkpoint.Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	storeOpts := []store.HTTPOption{store.WithTimeout(cfg.RequestTimeout.Std())}
	if cfg.Retry {
		storeOpts = append(storeOpts, store.WithRetry(cfg.RetryMaxElapsed.Std()))
	}
	httpStore := store.NewHTTPStore(cfg.StoreURL, cfg.StoreToken, storeOpts...)

	managerOpts := []checkpoint.Option{
		checkpoint.WithLogger(observability.NewLogger(cfg.Verbose)),
		checkpoint.WithFetchConcurrency(cfg.FetchConcurrency),
	}
	managerOpts = append(managerOpts, opts...)

	return checkpoint.NewManager(httpStore, managerOpts...), nil
}
