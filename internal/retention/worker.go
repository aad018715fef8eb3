// Package retention hard-deletes tombstoned messages once their recovery
// window lapses.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/domain"
)

// cycleTimeout bounds one prune cycle.
const cycleTimeout = time.Minute

// Store is the slice of the persistence API the worker drives.
type Store interface {
	PruneTombstones(ctx context.Context, deletedBefore time.Time) (int, error)
}

// Worker prunes expired tombstones on a fixed interval. Construct it only
// when retention is enabled; a disabled deployment never starts one.
type Worker struct {
	store    Store
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewWorker(store Store, interval time.Duration, logger zerolog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Worker{
		store:    store,
		interval: interval,
		logger:   logger.With().Str("component", "retention").Logger(),
		now:      time.Now,
	}
}

// Run blocks until ctx is canceled, pruning once per interval. The first
// cycle runs immediately so restarts do not postpone cleanup.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("retention worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("retention worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single prune cycle. The cycle runs on a detached
// timeout context so a shutdown arriving mid-delete cannot abort it.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cycleTimeout)
	defer cancel()

	cutoff := w.now().Add(-domain.TombstoneRetention).UTC()
	pruned, err := w.store.PruneTombstones(cycleCtx, cutoff)
	if err != nil {
		w.logger.Error().Err(err).Msg("prune cycle failed")
		return 0, err
	}
	if pruned > 0 {
		w.logger.Info().Int("pruned", pruned).Time("cutoff", cutoff).Msg("tombstones pruned")
	} else {
		w.logger.Debug().Time("cutoff", cutoff).Msg("no tombstones due")
	}
	return pruned, nil
}
