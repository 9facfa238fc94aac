package reveal

import (
	"context"
	"errors"
	"fmt"

	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
	"github.com/veilpay/veilpay/metrics"
	"github.com/veilpay/veilpay/oracle"
)

// RequestClaim asks the oracle to decrypt the claimed flag and payment of a
// contributor's distribution. Moving the distribution to the claim-requested
// state is a compare-and-set, so of two concurrent claims for the same key
// exactly one gets through and the other is rejected here.
func (e *Engine) RequestClaim(ctx context.Context, key ledger.ContributorKey) error {
	d, err := e.store.Distribution(ctx, key)
	if err != nil {
		return err
	}

	err = e.store.TransitionDistribution(ctx, key,
		ledger.DistributionCreated, ledger.DistributionClaimRequested, nil)
	if errors.Is(err, ledgererrors.ErrInvalidTransition) {
		return ledgererrors.ErrAlreadyClaimed
	}
	if err != nil {
		return err
	}

	requestID, err := e.oracle.RequestDecryption(ctx, []ledger.Ciphertext{d.Claimed, d.Payment})
	if err != nil {
		e.releaseClaim(ctx, key)
		return fmt.Errorf("requesting claim decryption: %w", err)
	}

	if err := e.pending.register(&PendingRequest{
		RequestID:   requestID,
		Kind:        KindClaim,
		Contributor: key,
		IssuedAt:    e.clk.Now(),
	}); err != nil {
		e.releaseClaim(ctx, key)
		return err
	}

	metrics.DecryptionRequestCounter.WithLabelValues(KindClaim.String()).Inc()
	e.l.Infow("claim requested", "contributor", key.String(), "request", requestID)
	return nil
}

// OnClaimRevealed is the oracle callback for a claim request. It verifies
// the proof, re-checks that the distribution is still unclaimed and flips the
// claimed flag exactly once. The actual fund transfer is delegated to an
// external payment rail; this only finalizes the bookkeeping.
func (e *Engine) OnClaimRevealed(ctx context.Context, requestID string, cleartext, proof []byte) error {
	req, err := e.pending.consume(requestID, KindClaim)
	if err != nil {
		metrics.RevealCounter.WithLabelValues(KindClaim.String(), "unknown").Inc()
		return err
	}

	// the registry entry is gone now, so a rejected callback must release
	// the distribution or the claim could never be retried
	if err := e.verifier.VerifyReveal(requestID, cleartext, proof); err != nil {
		metrics.RevealCounter.WithLabelValues(KindClaim.String(), "proof_invalid").Inc()
		e.l.Errorw("claim proof rejected", "request", requestID, "err", err)
		e.releaseClaim(ctx, req.Contributor)
		return fmt.Errorf("%w: %v", ledgererrors.ErrProofInvalid, err)
	}

	claimed, payment, err := oracle.DecodeClaim(cleartext)
	if err != nil {
		metrics.RevealCounter.WithLabelValues(KindClaim.String(), "decode_error").Inc()
		e.releaseClaim(ctx, req.Contributor)
		return err
	}
	if claimed {
		// the ciphertext already encodes a settled claim, finalize the
		// ledger side instead of leaving the claim pending
		metrics.RevealCounter.WithLabelValues(KindClaim.String(), "already_claimed").Inc()
		if terr := e.store.TransitionDistribution(ctx, req.Contributor,
			ledger.DistributionClaimRequested, ledger.DistributionClaimed, nil); terr != nil {
			e.l.Warnw("finalizing settled claim failed", "contributor", req.Contributor.String(), "err", terr)
		}
		return ledgererrors.ErrAlreadyClaimed
	}

	encClaimed, err := e.enc.Encrypt(1)
	if err != nil {
		e.releaseClaim(ctx, req.Contributor)
		return fmt.Errorf("encrypting claimed flag: %w", err)
	}
	err = e.store.TransitionDistribution(ctx, req.Contributor,
		ledger.DistributionClaimRequested, ledger.DistributionClaimed, encClaimed)
	if errors.Is(err, ledgererrors.ErrInvalidTransition) {
		metrics.RevealCounter.WithLabelValues(KindClaim.String(), "already_claimed").Inc()
		return ledgererrors.ErrAlreadyClaimed
	}
	if err != nil {
		return err
	}

	metrics.RevealCounter.WithLabelValues(KindClaim.String(), "ok").Inc()
	metrics.ClaimSettledCounter.Inc()
	e.l.Infow("claim settled", "contributor", req.Contributor.String(), "payment", payment)
	return nil
}

// releaseClaim rolls a distribution back to the created state after a failed
// claim issuance or a rejected callback, so the claim can be retried.
func (e *Engine) releaseClaim(ctx context.Context, key ledger.ContributorKey) {
	err := e.store.TransitionDistribution(ctx, key,
		ledger.DistributionClaimRequested, ledger.DistributionCreated, nil)
	if err != nil {
		e.l.Warnw("releasing claim failed", "contributor", key.String(), "err", err)
	}
}
