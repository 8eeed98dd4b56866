package dispatch

import (
	"context"
	"log/slog"
	"time"
)

const (
	// TerminalRetention is how long completed/failed delegations are kept
	// before the retention sweep removes them.
	TerminalRetention = 24 * time.Hour

	// DispatchLiveness is how long a record may sit in dispatching before
	// it is presumed orphaned by a crash and regressed to failed.
	DispatchLiveness = 2 * time.Minute
)

// SweepStore is the persistence surface the sweeps need.
type SweepStore interface {
	DeleteTerminalDelegationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FailStaleDispatching(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweep runs both maintenance passes: fail orphaned dispatching records,
// then drop terminal records past retention. Run it at startup and on a
// schedule.
func Sweep(ctx context.Context, s SweepStore) {
	failed, err := s.FailStaleDispatching(ctx, time.Now().Add(-DispatchLiveness))
	if err != nil {
		slog.Error("dispatch: stale-dispatch sweep failed", "error", err)
	} else if failed > 0 {
		slog.Warn("dispatch: orphaned dispatching delegations failed", "count", failed)
	}

	removed, err := s.DeleteTerminalDelegationsBefore(ctx, time.Now().Add(-TerminalRetention))
	if err != nil {
		slog.Error("dispatch: retention sweep failed", "error", err)
	} else if removed > 0 {
		slog.Debug("dispatch: terminal delegations removed", "count", removed)
	}
}
