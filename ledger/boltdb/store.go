// Package boltdb persists the ledger in a single boltdb file. Records are
// stored JSON-encoded, one bucket per record family, plus a small meta bucket
// holding the reward pool balance.
package boltdb

import (
	"context"
	"encoding/binary"
	"path"
	"sync"

	json "github.com/nikkolasg/hexjson"
	bolt "go.etcd.io/bbolt"

	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
	"github.com/veilpay/veilpay/log"
)

// BoltStore implements the ledger.Store interface using the kv storage
// boltdb (native golang implementation).
type BoltStore struct {
	sync.Mutex
	db *bolt.DB

	log log.Logger
}

var (
	contributionBucket = []byte("contributions")
	distributionBucket = []byte("distributions")
	royaltyBucket      = []byte("royalties")
	metaBucket         = []byte("meta")
)

var poolKey = []byte("pool")

// BoltFileName is the name of the file boltdb writes to
const BoltFileName = "veilpay.db"

// BoltStoreOpenPerm is the permission we will use to read the bolt store file
// from disk
const BoltStoreOpenPerm = 0660

// NewBoltStore returns a Store implementation using the boltdb storage
// engine.
func NewBoltStore(ctx context.Context, l log.Logger, folder string, opts *bolt.Options) (*BoltStore, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dbPath := path.Join(folder, BoltFileName)
	db, err := bolt.Open(dbPath, BoltStoreOpenPerm, opts)
	if err != nil {
		return nil, err
	}
	// create the buckets already
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{contributionBucket, distributionBucket, royaltyBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})

	return &BoltStore{
		log: l,
		db:  db,
	}, err
}

func (b *BoltStore) Close(context.Context) error {
	err := b.db.Close()
	if err != nil {
		b.log.Errorw("", "boltdb", "close", "err", err)
	}
	return err
}

// AddContribution assigns the bucket sequence number as the contribution id,
// so ids stay unique and strictly increasing across restarts.
func (b *BoltStore) AddContribution(ctx context.Context, c *ledger.Contribution) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	var id uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(contributionBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		stored := *c
		stored.ID = seq
		stored.State = ledger.ContributionSubmitted
		buff, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		id = seq
		return bucket.Put(ledger.IDToBytes(seq), buff)
	})
	return id, err
}

func (b *BoltStore) Contribution(ctx context.Context, id uint64) (*ledger.Contribution, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	contrib := &ledger.Contribution{}
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(contributionBucket).Get(ledger.IDToBytes(id))
		if v == nil {
			return ledgererrors.ErrNoContribution
		}
		return json.Unmarshal(v, contrib)
	})
	if err != nil {
		return nil, err
	}
	return contrib, nil
}

func (b *BoltStore) TransitionContribution(ctx context.Context, id uint64, from, to ledger.ContributionState) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(contributionBucket)
		v := bucket.Get(ledger.IDToBytes(id))
		if v == nil {
			return ledgererrors.ErrNoContribution
		}
		contrib := &ledger.Contribution{}
		if err := json.Unmarshal(v, contrib); err != nil {
			return err
		}
		if contrib.State != from {
			return ledgererrors.ErrInvalidTransition
		}
		contrib.State = to
		buff, err := json.Marshal(contrib)
		if err != nil {
			return err
		}
		return bucket.Put(ledger.IDToBytes(id), buff)
	})
}

func (b *BoltStore) CreateDistribution(ctx context.Context, d *ledger.Distribution) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(distributionBucket)
		if bucket.Get(d.Contributor[:]) != nil {
			return ledgererrors.ErrAlreadyDistributed
		}
		buff, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return bucket.Put(d.Contributor[:], buff)
	})
}

func (b *BoltStore) Distribution(ctx context.Context, key ledger.ContributorKey) (*ledger.Distribution, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dist := &ledger.Distribution{}
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(distributionBucket).Get(key[:])
		if v == nil {
			return ledgererrors.ErrNoDistribution
		}
		return json.Unmarshal(v, dist)
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

func (b *BoltStore) TransitionDistribution(
	ctx context.Context,
	key ledger.ContributorKey,
	from, to ledger.DistributionState,
	claimed ledger.Ciphertext,
) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(distributionBucket)
		v := bucket.Get(key[:])
		if v == nil {
			return ledgererrors.ErrNoDistribution
		}
		dist := &ledger.Distribution{}
		if err := json.Unmarshal(v, dist); err != nil {
			return err
		}
		if dist.State != from {
			return ledgererrors.ErrInvalidTransition
		}
		dist.State = to
		if to == ledger.DistributionClaimed && claimed != nil {
			dist.Claimed = claimed
		}
		buff, err := json.Marshal(dist)
		if err != nil {
			return err
		}
		return bucket.Put(key[:], buff)
	})
}

func (b *BoltStore) PutRoyalty(ctx context.Context, r *ledger.RevealedRoyalty) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		buff, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return tx.Bucket(royaltyBucket).Put(ledger.IDToBytes(r.ContributionID), buff)
	})
}

func (b *BoltStore) Royalty(ctx context.Context, contributionID uint64) (*ledger.RevealedRoyalty, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	royalty := &ledger.RevealedRoyalty{ContributionID: contributionID}
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(royaltyBucket).Get(ledger.IDToBytes(contributionID))
		if v == nil {
			// never revealed: keep the zero-value default
			return nil
		}
		return json.Unmarshal(v, royalty)
	})
	if err != nil {
		return nil, err
	}
	return royalty, nil
}

func (b *BoltStore) Pool(ctx context.Context) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	var pool uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(poolKey)
		if v != nil {
			pool = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return pool, err
}

func (b *BoltStore) Deposit(ctx context.Context, amount int64) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	if amount < 0 {
		return 0, ledgererrors.ErrNegativeDeposit
	}

	var pool uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(metaBucket)
		if v := bucket.Get(poolKey); v != nil {
			pool = binary.BigEndian.Uint64(v)
		}
		pool += uint64(amount)
		var buff [8]byte
		binary.BigEndian.PutUint64(buff[:], pool)
		return bucket.Put(poolKey, buff[:])
	})
	return pool, err
}
