// Package reveal implements the asynchronous encrypted-reveal state machine:
// it issues decryption requests to the external oracle, correlates the
// callbacks that come back later, computes the deterministic royalty share
// and writes the resulting distributions. All computation happens inside the
// callback handlers; issuing a request never blocks on the oracle.
package reveal

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	clock "github.com/jonboulle/clockwork"

	"github.com/veilpay/veilpay/crypto"
	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
	"github.com/veilpay/veilpay/log"
	"github.com/veilpay/veilpay/metrics"
	"github.com/veilpay/veilpay/oracle"
)

// Share weights in percent. They sum to 100 so the share of a contribution
// with maximal metrics equals the metric ceiling in basis points.
const (
	weightComputeHours = 40
	weightDataQuality  = 35
	weightModelImpact  = 25
)

// shareDenominator expresses shares in basis points of the reward pool.
const shareDenominator = 10000

// Engine drives the reveal and claim flows over a ledger store, an oracle
// and a proof verifier. It is safe for concurrent use; per-contributor
// serialization is enforced through the store's compare-and-set transitions.
type Engine struct {
	l        log.Logger
	store    ledger.Store
	oracle   oracle.Oracle
	enc      oracle.Encrypter
	verifier *crypto.Verifier
	pending  *registry
	clk      clock.Clock
}

// NewEngine returns an Engine wired to the given collaborators.
func NewEngine(l log.Logger, store ledger.Store, orc oracle.Oracle, enc oracle.Encrypter, v *crypto.Verifier, clk clock.Clock) *Engine {
	return &Engine{
		l:        l.Named("reveal"),
		store:    store,
		oracle:   orc,
		enc:      enc,
		verifier: v,
		pending:  newRegistry(),
		clk:      clk,
	}
}

// PendingRequests returns how many oracle requests are awaiting a callback.
func (e *Engine) PendingRequests() int {
	return e.pending.len()
}

// Submit records an encrypted contribution and returns its sequential id.
// The ciphertexts are stored verbatim; nothing about their contents can be
// validated here.
func (e *Engine) Submit(ctx context.Context, m ledger.EncryptedMetrics, key ledger.ContributorKey) (uint64, error) {
	c := &ledger.Contribution{
		Metrics:     m,
		Contributor: key,
		Time:        e.clk.Now(),
	}
	id, err := e.store.AddContribution(ctx, c)
	if err != nil {
		return 0, err
	}
	metrics.ContributionCounter.Inc()
	e.l.Infow("contribution recorded", "id", id, "contributor", key.String())
	return id, nil
}

// RequestCalculation asks the oracle to decrypt the three metric ciphertexts
// of the contribution. It returns immediately; the royalty is computed when
// the callback lands in OnCalculationRevealed. A contribution with a
// calculation already in flight is rejected until the sweep releases it.
func (e *Engine) RequestCalculation(ctx context.Context, contributionID uint64) error {
	c, err := e.store.Contribution(ctx, contributionID)
	if err != nil {
		return err
	}

	_, err = e.store.Distribution(ctx, c.Contributor)
	if err == nil {
		return ledgererrors.ErrAlreadyDistributed
	}
	if !errors.Is(err, ledgererrors.ErrNoDistribution) {
		return err
	}

	err = e.store.TransitionContribution(ctx, contributionID,
		ledger.ContributionSubmitted, ledger.ContributionCalculationRequested)
	if errors.Is(err, ledgererrors.ErrInvalidTransition) {
		if fresh, ferr := e.store.Contribution(ctx, contributionID); ferr == nil && fresh.State == ledger.ContributionRevealed {
			return ledgererrors.ErrAlreadyDistributed
		}
		return ledgererrors.ErrCalculationPending
	}
	if err != nil {
		return err
	}

	requestID, err := e.oracle.RequestDecryption(ctx, []ledger.Ciphertext{
		c.Metrics.ComputeHours,
		c.Metrics.DataQuality,
		c.Metrics.ModelImpact,
	})
	if err != nil {
		e.release(ctx, contributionID)
		return fmt.Errorf("requesting metric decryption: %w", err)
	}

	if err := e.pending.register(&PendingRequest{
		RequestID:      requestID,
		Kind:           KindCalculation,
		ContributionID: contributionID,
		IssuedAt:       e.clk.Now(),
	}); err != nil {
		// the oracle reused a live request id, a fatal integration error
		e.release(ctx, contributionID)
		return err
	}

	metrics.DecryptionRequestCounter.WithLabelValues(KindCalculation.String()).Inc()
	e.l.Infow("calculation requested", "contribution", contributionID, "request", requestID)
	return nil
}

// OnCalculationRevealed is the oracle callback for a calculation request. It
// verifies the proof, decodes the metrics, computes the share and payment
// against the pool observed now, and writes the distribution plus the
// plaintext audit record. A rejected callback writes no royalty and puts the
// contribution back in the submitted state so it can be requested again.
func (e *Engine) OnCalculationRevealed(ctx context.Context, requestID string, cleartext, proof []byte) error {
	req, err := e.pending.consume(requestID, KindCalculation)
	if err != nil {
		metrics.RevealCounter.WithLabelValues(KindCalculation.String(), "unknown").Inc()
		return err
	}

	// the registry entry is gone now, so every failure from here on must
	// release the contribution or no fresh request could ever be issued
	if err := e.verifier.VerifyReveal(requestID, cleartext, proof); err != nil {
		metrics.RevealCounter.WithLabelValues(KindCalculation.String(), "proof_invalid").Inc()
		e.l.Errorw("calculation proof rejected", "request", requestID, "err", err)
		e.release(ctx, req.ContributionID)
		return fmt.Errorf("%w: %v", ledgererrors.ErrProofInvalid, err)
	}

	computeHours, dataQuality, modelImpact, err := oracle.DecodeMetrics(cleartext)
	if err != nil {
		metrics.RevealCounter.WithLabelValues(KindCalculation.String(), "decode_error").Inc()
		e.release(ctx, req.ContributionID)
		return err
	}

	share := (computeHours*weightComputeHours +
		dataQuality*weightDataQuality +
		modelImpact*weightModelImpact) / 100

	// pool is read at callback time, not at request time
	pool, err := e.store.Pool(ctx)
	if err != nil {
		e.release(ctx, req.ContributionID)
		return err
	}
	payment := paymentAmount(pool, share)

	c, err := e.store.Contribution(ctx, req.ContributionID)
	if err != nil {
		e.release(ctx, req.ContributionID)
		return err
	}

	dist, err := e.encryptDistribution(c.Contributor, share, payment)
	if err != nil {
		e.release(ctx, req.ContributionID)
		return err
	}
	if err := e.store.CreateDistribution(ctx, dist); err != nil {
		if errors.Is(err, ledgererrors.ErrAlreadyDistributed) {
			metrics.RevealCounter.WithLabelValues(KindCalculation.String(), "already_distributed").Inc()
			// another contribution of the same contributor won the race;
			// this one is settled for good, not retryable
			e.finalize(ctx, req.ContributionID)
			return err
		}
		e.release(ctx, req.ContributionID)
		return err
	}
	if err := e.store.PutRoyalty(ctx, &ledger.RevealedRoyalty{
		ContributionID: req.ContributionID,
		ShareBps:       share,
		Payment:        payment,
		Revealed:       true,
	}); err != nil {
		// the distribution exists, the contribution must not stay pending
		e.finalize(ctx, req.ContributionID)
		return err
	}
	e.finalize(ctx, req.ContributionID)

	metrics.RevealCounter.WithLabelValues(KindCalculation.String(), "ok").Inc()
	e.l.Infow("royalty revealed",
		"contribution", req.ContributionID,
		"contributor", c.Contributor.String(),
		"share_bps", share,
		"payment", payment)
	return nil
}

func (e *Engine) encryptDistribution(key ledger.ContributorKey, share, payment uint64) (*ledger.Distribution, error) {
	encShare, err := e.enc.Encrypt(share)
	if err != nil {
		return nil, fmt.Errorf("encrypting share: %w", err)
	}
	encPayment, err := e.enc.Encrypt(payment)
	if err != nil {
		return nil, fmt.Errorf("encrypting payment: %w", err)
	}
	encClaimed, err := e.enc.Encrypt(0)
	if err != nil {
		return nil, fmt.Errorf("encrypting claimed flag: %w", err)
	}
	return &ledger.Distribution{
		Contributor: key,
		Share:       encShare,
		Payment:     encPayment,
		Claimed:     encClaimed,
		State:       ledger.DistributionCreated,
	}, nil
}

// release rolls a contribution back to the submitted state after a failed
// request issuance or a rejected callback, so a fresh request can go out.
func (e *Engine) release(ctx context.Context, contributionID uint64) {
	err := e.store.TransitionContribution(ctx, contributionID,
		ledger.ContributionCalculationRequested, ledger.ContributionSubmitted)
	if err != nil {
		e.l.Warnw("releasing contribution failed", "contribution", contributionID, "err", err)
	}
}

// finalize moves a contribution to the terminal revealed state.
func (e *Engine) finalize(ctx context.Context, contributionID uint64) {
	err := e.store.TransitionContribution(ctx, contributionID,
		ledger.ContributionCalculationRequested, ledger.ContributionRevealed)
	if err != nil {
		e.l.Warnw("finalizing contribution failed", "contribution", contributionID, "err", err)
	}
}

// paymentAmount computes floor(pool * share / 10000) without intermediate
// overflow.
func paymentAmount(pool, shareBps uint64) uint64 {
	p := new(big.Int).Mul(new(big.Int).SetUint64(pool), new(big.Int).SetUint64(shareBps))
	p.Div(p, big.NewInt(shareDenominator))
	return p.Uint64()
}

// Deposit grows the reward pool. The new balance is reflected in the pool
// gauge so operators can follow funding.
func (e *Engine) Deposit(ctx context.Context, amount int64) (uint64, error) {
	pool, err := e.store.Deposit(ctx, amount)
	if err != nil {
		return 0, err
	}
	metrics.PoolBalance.Set(float64(pool))
	e.l.Infow("pool deposit", "amount", amount, "balance", pool)
	return pool, nil
}
