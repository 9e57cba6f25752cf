package cli

import (
	"context"

	"devsess.io/cli/cmd/devsess/cli/engine"
	"devsess.io/cli/cmd/devsess/cli/settings"
	"devsess.io/cli/cmd/devsess/cli/store"
)

// openStore builds the session store from settings. The caller owns the
// returned store and must Close it.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := settings.Load()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, store.Config{
		Backend: cfg.Backend,
		DSN:     cfg.ResolvePostgresURL(store.PostgresURLEnvVar),
	})
}

// newEngine builds the proposal engine over an opened store. No task backend
// is wired in the CLI build; task transitions are skipped.
func newEngine(s *store.Store) *engine.Engine {
	return engine.New(s, nil)
}

// withStore opens the store, runs fn, and closes the store regardless of
// outcome.
func withStore(ctx context.Context, fn func(s *store.Store) error) error {
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}
