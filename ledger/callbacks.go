package ledger

import (
	"context"
	"sync"
)

// CallbackStore is a Store that notifies registered observers each time a
// contribution is recorded or a royalty is revealed. External indexers hook
// in here; the core never depends on them.
type CallbackStore interface {
	Store
	AddContributionCallback(id string, fn func(*Contribution))
	AddRoyaltyCallback(id string, fn func(*RevealedRoyalty))
	RemoveCallback(id string)
}

// callbackStore keeps the list of functions to notify on new records
type callbackStore struct {
	Store
	contribCbs map[string]func(*Contribution)
	royaltyCbs map[string]func(*RevealedRoyalty)
	sync.Mutex
}

// NewCallbackStore returns a Store that calls the registered callbacks in a
// goroutine each time a contribution or a revealed royalty is saved into the
// given store. It does not call them if the underlying write failed.
func NewCallbackStore(s Store) CallbackStore {
	return &callbackStore{
		Store:      s,
		contribCbs: make(map[string]func(*Contribution)),
		royaltyCbs: make(map[string]func(*RevealedRoyalty)),
	}
}

func (c *callbackStore) AddContribution(ctx context.Context, contrib *Contribution) (uint64, error) {
	id, err := c.Store.AddContribution(ctx, contrib)
	if err != nil {
		return id, err
	}
	recorded := *contrib
	recorded.ID = id
	go func() {
		c.Lock()
		defer c.Unlock()
		for _, cb := range c.contribCbs {
			cb(&recorded)
		}
	}()
	return id, nil
}

func (c *callbackStore) PutRoyalty(ctx context.Context, r *RevealedRoyalty) error {
	if err := c.Store.PutRoyalty(ctx, r); err != nil {
		return err
	}
	revealed := *r
	go func() {
		c.Lock()
		defer c.Unlock()
		for _, cb := range c.royaltyCbs {
			cb(&revealed)
		}
	}()
	return nil
}

// AddContributionCallback registers a function called on each new contribution
func (c *callbackStore) AddContributionCallback(id string, fn func(*Contribution)) {
	c.Lock()
	defer c.Unlock()
	c.contribCbs[id] = fn
}

// AddRoyaltyCallback registers a function called on each revealed royalty
func (c *callbackStore) AddRoyaltyCallback(id string, fn func(*RevealedRoyalty)) {
	c.Lock()
	defer c.Unlock()
	c.royaltyCbs[id] = fn
}

func (c *callbackStore) RemoveCallback(id string) {
	c.Lock()
	defer c.Unlock()
	delete(c.contribCbs, id)
	delete(c.royaltyCbs, id)
}
