package reveal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
	"github.com/veilpay/veilpay/metrics"
)

// Sweep expires every pending request older than maxAge and releases its
// context so a fresh request can be issued for it. The oracle may simply
// never call back; without the sweep those contexts would stay blocked
// forever. It returns how many requests were expired.
func (e *Engine) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := e.clk.Now().Add(-maxAge)
	stale := e.pending.expire(cutoff)

	var result *multierror.Error
	for _, req := range stale {
		metrics.ExpiredRequestCounter.Inc()
		e.l.Warnw("expiring stale oracle request",
			"request", req.RequestID,
			"kind", req.Kind.String(),
			"issued_at", req.IssuedAt)

		var err error
		switch req.Kind {
		case KindCalculation:
			err = e.store.TransitionContribution(ctx, req.ContributionID,
				ledger.ContributionCalculationRequested, ledger.ContributionSubmitted)
		case KindClaim:
			err = e.store.TransitionDistribution(ctx, req.Contributor,
				ledger.DistributionClaimRequested, ledger.DistributionCreated, nil)
		}
		// a transition mismatch means the context moved on without us,
		// nothing left to release
		if err != nil && !errors.Is(err, ledgererrors.ErrInvalidTransition) {
			result = multierror.Append(result, fmt.Errorf("releasing request %s: %w", req.RequestID, err))
		}
	}
	return len(stale), result.ErrorOrNil()
}

// SweepLoop runs Sweep on every tick until the context is done.
func (e *Engine) SweepLoop(ctx context.Context, period, maxAge time.Duration) {
	ticker := e.clk.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n, err := e.Sweep(ctx, maxAge); err != nil {
				e.l.Errorw("sweep failed", "expired", n, "err", err)
			}
		}
	}
}
