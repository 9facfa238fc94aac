// Package memdb provides an in-memory ledger store used by tests and
// ephemeral runs.
package memdb

import (
	"context"
	"sync"

	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
)

// Store keeps every record behind a single RWMutex. Contribution ids are
// assigned under the write lock so they stay unique and strictly increasing.
type Store struct {
	storeMtx *sync.RWMutex

	contributions []ledger.Contribution
	distributions map[ledger.ContributorKey]*ledger.Distribution
	royalties     map[uint64]ledger.RevealedRoyalty
	pool          uint64
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		storeMtx:      &sync.RWMutex{},
		contributions: []ledger.Contribution{},
		distributions: make(map[ledger.ContributorKey]*ledger.Distribution),
		royalties:     make(map[uint64]ledger.RevealedRoyalty),
	}
}

func (m *Store) AddContribution(_ context.Context, c *ledger.Contribution) (uint64, error) {
	m.storeMtx.Lock()
	defer m.storeMtx.Unlock()

	stored := *c
	stored.ID = uint64(len(m.contributions)) + 1
	stored.State = ledger.ContributionSubmitted
	m.contributions = append(m.contributions, stored)
	return stored.ID, nil
}

func (m *Store) Contribution(_ context.Context, id uint64) (*ledger.Contribution, error) {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	if id < 1 || id > uint64(len(m.contributions)) {
		return nil, ledgererrors.ErrNoContribution
	}
	result := m.contributions[id-1]
	return &result, nil
}

func (m *Store) TransitionContribution(_ context.Context, id uint64, from, to ledger.ContributionState) error {
	m.storeMtx.Lock()
	defer m.storeMtx.Unlock()

	if id < 1 || id > uint64(len(m.contributions)) {
		return ledgererrors.ErrNoContribution
	}
	if m.contributions[id-1].State != from {
		return ledgererrors.ErrInvalidTransition
	}
	m.contributions[id-1].State = to
	return nil
}

func (m *Store) CreateDistribution(_ context.Context, d *ledger.Distribution) error {
	m.storeMtx.Lock()
	defer m.storeMtx.Unlock()

	if _, found := m.distributions[d.Contributor]; found {
		return ledgererrors.ErrAlreadyDistributed
	}
	stored := *d
	m.distributions[d.Contributor] = &stored
	return nil
}

func (m *Store) Distribution(_ context.Context, key ledger.ContributorKey) (*ledger.Distribution, error) {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	d, found := m.distributions[key]
	if !found {
		return nil, ledgererrors.ErrNoDistribution
	}
	result := *d
	return &result, nil
}

func (m *Store) TransitionDistribution(
	_ context.Context,
	key ledger.ContributorKey,
	from, to ledger.DistributionState,
	claimed ledger.Ciphertext,
) error {
	m.storeMtx.Lock()
	defer m.storeMtx.Unlock()

	d, found := m.distributions[key]
	if !found {
		return ledgererrors.ErrNoDistribution
	}
	if d.State != from {
		return ledgererrors.ErrInvalidTransition
	}
	d.State = to
	if to == ledger.DistributionClaimed && claimed != nil {
		d.Claimed = claimed
	}
	return nil
}

func (m *Store) PutRoyalty(_ context.Context, r *ledger.RevealedRoyalty) error {
	m.storeMtx.Lock()
	defer m.storeMtx.Unlock()

	m.royalties[r.ContributionID] = *r
	return nil
}

// Royalty returns a zero-value record with Revealed=false when the
// contribution was never revealed. The read API relies on that default.
func (m *Store) Royalty(_ context.Context, contributionID uint64) (*ledger.RevealedRoyalty, error) {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	r, found := m.royalties[contributionID]
	if !found {
		return &ledger.RevealedRoyalty{ContributionID: contributionID}, nil
	}
	result := r
	return &result, nil
}

func (m *Store) Pool(_ context.Context) (uint64, error) {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	return m.pool, nil
}

func (m *Store) Deposit(_ context.Context, amount int64) (uint64, error) {
	if amount < 0 {
		return 0, ledgererrors.ErrNegativeDeposit
	}

	m.storeMtx.Lock()
	defer m.storeMtx.Unlock()

	m.pool += uint64(amount)
	return m.pool, nil
}

// Close is a noop
func (m *Store) Close(_ context.Context) error {
	return nil
}
