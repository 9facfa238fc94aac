package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilpay/veilpay/ledger"
	"github.com/veilpay/veilpay/ledger/memdb"
)

func TestCallbackStoreNotifies(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewCallbackStore(memdb.NewStore())

	contribs := make(chan *ledger.Contribution, 1)
	royalties := make(chan *ledger.RevealedRoyalty, 1)
	s.AddContributionCallback("test", func(c *ledger.Contribution) { contribs <- c })
	s.AddRoyaltyCallback("test", func(r *ledger.RevealedRoyalty) { royalties <- r })

	id, err := s.AddContribution(ctx, &ledger.Contribution{})
	require.NoError(t, err)

	select {
	case c := <-contribs:
		require.Equal(t, id, c.ID)
	case <-time.After(time.Second):
		t.Fatal("no contribution callback")
	}

	require.NoError(t, s.PutRoyalty(ctx, &ledger.RevealedRoyalty{ContributionID: id, ShareBps: 83, Revealed: true}))
	select {
	case r := <-royalties:
		require.Equal(t, uint64(83), r.ShareBps)
	case <-time.After(time.Second):
		t.Fatal("no royalty callback")
	}
}

func TestCallbackStoreRemove(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewCallbackStore(memdb.NewStore())

	contribs := make(chan *ledger.Contribution, 2)
	s.AddContributionCallback("test", func(c *ledger.Contribution) { contribs <- c })
	s.RemoveCallback("test")

	_, err := s.AddContribution(ctx, &ledger.Contribution{})
	require.NoError(t, err)

	select {
	case <-contribs:
		t.Fatal("removed callback still fired")
	case <-time.After(50 * time.Millisecond):
	}
}
