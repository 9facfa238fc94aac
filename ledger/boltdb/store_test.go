package boltdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilpay/veilpay/ledger"
	"github.com/veilpay/veilpay/ledger/boltdb"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
	"github.com/veilpay/veilpay/log"
)

func newStore(t *testing.T) *boltdb.BoltStore {
	t.Helper()
	s, err := boltdb.NewBoltStore(context.Background(), log.DefaultLogger(), t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close(context.Background()))
	})
	return s
}

func TestBoltContributionRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var key ledger.ContributorKey
	key[0] = 0x42
	contrib := &ledger.Contribution{
		Metrics: ledger.EncryptedMetrics{
			ComputeHours: []byte{0x01, 0x02},
			DataQuality:  []byte{0x03},
			ModelImpact:  []byte{0x04},
		},
		Contributor: key,
		Time:        time.Unix(1700000000, 0).UTC(),
	}

	id, err := s.AddContribution(ctx, contrib)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	id2, err := s.AddContribution(ctx, contrib)
	require.NoError(t, err)
	require.Equal(t, uint64(2), id2)

	got, err := s.Contribution(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, contrib.Metrics, got.Metrics)
	require.Equal(t, key, got.Contributor)
	require.True(t, contrib.Time.Equal(got.Time))

	_, err = s.Contribution(ctx, 99)
	require.ErrorIs(t, err, ledgererrors.ErrNoContribution)
}

func TestBoltDistributionGuards(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var key ledger.ContributorKey
	key[31] = 0x07

	require.NoError(t, s.CreateDistribution(ctx, &ledger.Distribution{
		Contributor: key,
		Share:       []byte{0x01},
		Payment:     []byte{0x02},
		Claimed:     []byte{0x00},
	}))
	err := s.CreateDistribution(ctx, &ledger.Distribution{Contributor: key})
	require.ErrorIs(t, err, ledgererrors.ErrAlreadyDistributed)

	err = s.TransitionDistribution(ctx, key, ledger.DistributionClaimRequested, ledger.DistributionClaimed, nil)
	require.ErrorIs(t, err, ledgererrors.ErrInvalidTransition)

	require.NoError(t, s.TransitionDistribution(ctx, key, ledger.DistributionCreated, ledger.DistributionClaimRequested, nil))
	require.NoError(t, s.TransitionDistribution(ctx, key, ledger.DistributionClaimRequested, ledger.DistributionClaimed, []byte{0x01}))

	d, err := s.Distribution(ctx, key)
	require.NoError(t, err)
	require.Equal(t, ledger.DistributionClaimed, d.State)
	require.Equal(t, ledger.Ciphertext{0x01}, d.Claimed)
}

func TestBoltRoyaltyAndPool(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	r, err := s.Royalty(ctx, 1)
	require.NoError(t, err)
	require.False(t, r.Revealed)

	require.NoError(t, s.PutRoyalty(ctx, &ledger.RevealedRoyalty{ContributionID: 1, ShareBps: 83, Payment: 8, Revealed: true}))
	r, err = s.Royalty(ctx, 1)
	require.NoError(t, err)
	require.True(t, r.Revealed)
	require.Equal(t, uint64(8), r.Payment)

	balance, err := s.Deposit(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), balance)
	balance, err = s.Deposit(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, uint64(1500), balance)

	_, err = s.Deposit(ctx, -1)
	require.ErrorIs(t, err, ledgererrors.ErrNegativeDeposit)

	pool, err := s.Pool(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1500), pool)
}
