package health

import (
	"context"
	"errors"

	"github.com/deirlabs/mentord/internal/history"
	"github.com/deirlabs/mentord/internal/progress"
)

// Progress returns a Checker that verifies the progress backend can serve a
// load. An empty store is healthy; only transport or parse failures count as
// down.
func Progress(backend progress.Backend) Checker {
	return Checker{
		Name: "progress",
		Check: func(ctx context.Context) error {
			_, err := backend.Load(ctx)
			if errors.Is(err, progress.ErrNoSnapshot) {
				return nil
			}
			return err
		},
	}
}

// History returns a Checker that verifies the history backend can serve a
// load.
func History(backend history.Backend) Checker {
	return Checker{
		Name: "history",
		Check: func(ctx context.Context) error {
			_, err := backend.Load(ctx)
			return err
		},
	}
}

// Named wraps an arbitrary probe function as a Checker.
func Named(name string, fn func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: fn}
}
