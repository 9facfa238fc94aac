// Package ledger defines the records tracked by the royalty daemon: encrypted
// contributions, per-contributor distributions, the plaintext royalty audit
// cache and the reward pool counter. Stores are append-only for contributions
// and enforce the one-distribution-per-contributor rule themselves so that
// every implementation carries the same guarantees.
package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Ciphertext is an opaque encrypted value produced by the external
// homomorphic encryption scheme. The daemon never inspects its contents.
type Ciphertext []byte

// ContributorKey is the fixed-size pseudonym standing in for a contributor
// identity.
type ContributorKey [32]byte

// String returns the hex representation of the key.
func (k ContributorKey) String() string {
	return hex.EncodeToString(k[:])
}

// KeyFromHex parses a contributor key from its hex representation.
func KeyFromHex(s string) (ContributorKey, error) {
	var k ContributorKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("contributor key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// EncryptedMetrics are the three per-contribution performance ciphertexts.
type EncryptedMetrics struct {
	ComputeHours Ciphertext
	DataQuality  Ciphertext
	ModelImpact  Ciphertext
}

// ContributionState tracks where a contribution is in the reveal flow.
type ContributionState uint8

const (
	// ContributionSubmitted means the ciphertexts are stored and no
	// calculation has been requested yet.
	ContributionSubmitted ContributionState = iota
	// ContributionCalculationRequested means a decryption request is in
	// flight with the oracle.
	ContributionCalculationRequested
	// ContributionRevealed is terminal: the royalty was computed.
	ContributionRevealed
)

// Contribution is an immutable record of submitted encrypted metrics.
type Contribution struct {
	ID          uint64
	Metrics     EncryptedMetrics
	Contributor ContributorKey
	Time        time.Time
	State       ContributionState
}

// DistributionState tracks where a distribution is in the claim flow.
type DistributionState uint8

const (
	// DistributionCreated means the royalty is revealed and unclaimed.
	DistributionCreated DistributionState = iota
	// DistributionClaimRequested means a claim decryption is in flight.
	DistributionClaimRequested
	// DistributionClaimed is terminal: settlement is finalized.
	DistributionClaimed
)

// Distribution is the per-contributor settlement record. At most one exists
// per contributor key and its state only ever moves forward.
type Distribution struct {
	Contributor ContributorKey
	Share       Ciphertext
	Payment     Ciphertext
	Claimed     Ciphertext
	State       DistributionState
}

// RevealedRoyalty is the plaintext audit record written alongside a
// distribution when the calculation callback lands. Share is expressed in
// basis points of the reward pool.
type RevealedRoyalty struct {
	ContributionID uint64
	ShareBps       uint64
	Payment        uint64
	Revealed       bool
}

// Store is the persistence boundary shared by the in-memory and boltdb
// backends. Contributions are append-only; distributions are unique per
// contributor; state changes go through compare-and-set transitions so the
// reveal and claim paths can serialize per key.
type Store interface {
	// AddContribution assigns the next sequential id (starting at 1),
	// stores the record verbatim and returns the id.
	AddContribution(ctx context.Context, c *Contribution) (uint64, error)
	// Contribution returns the record for the given id, or
	// errors.ErrNoContribution.
	Contribution(ctx context.Context, id uint64) (*Contribution, error)
	// TransitionContribution moves a contribution from one state to
	// another. It fails with errors.ErrInvalidTransition when the current
	// state differs from the expected one.
	TransitionContribution(ctx context.Context, id uint64, from, to ContributionState) error

	// CreateDistribution writes a new distribution and fails with
	// errors.ErrAlreadyDistributed when one already exists for the
	// contributor. Existing records are never overwritten.
	CreateDistribution(ctx context.Context, d *Distribution) error
	// Distribution returns the record for the given contributor, or
	// errors.ErrNoDistribution.
	Distribution(ctx context.Context, key ContributorKey) (*Distribution, error)
	// TransitionDistribution moves a distribution from one state to
	// another, failing with errors.ErrInvalidTransition on a state
	// mismatch. Moving to DistributionClaimed also replaces the claimed
	// ciphertext with the given one.
	TransitionDistribution(ctx context.Context, key ContributorKey, from, to DistributionState, claimed Ciphertext) error

	// PutRoyalty writes the plaintext audit record.
	PutRoyalty(ctx context.Context, r *RevealedRoyalty) error
	// Royalty returns the audit record for the contribution, or a
	// zero-value record with Revealed=false when nothing was revealed.
	Royalty(ctx context.Context, contributionID uint64) (*RevealedRoyalty, error)

	// Pool returns the current reward pool balance.
	Pool(ctx context.Context) (uint64, error)
	// Deposit increases the pool by amount and returns the new balance.
	// Negative amounts fail with errors.ErrNegativeDeposit; the pool never
	// decreases through this path.
	Deposit(ctx context.Context, amount int64) (uint64, error)

	Close(ctx context.Context) error
}

// IDToBytes provides a sortable big-endian representation of a contribution
// id, suitable as a boltdb key.
func IDToBytes(id uint64) []byte {
	var buff [8]byte
	binary.BigEndian.PutUint64(buff[:], id)
	return buff[:]
}
