package reveal

import (
	"sync"
	"time"

	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
)

// RequestKind says which operation a pending oracle request resolves.
type RequestKind uint8

const (
	// KindCalculation is a royalty calculation reveal.
	KindCalculation RequestKind = iota
	// KindClaim is a claim settlement reveal.
	KindClaim
)

func (k RequestKind) String() string {
	switch k {
	case KindCalculation:
		return "calculation"
	case KindClaim:
		return "claim"
	default:
		return "unknown"
	}
}

// PendingRequest correlates an oracle request id with the operation that
// issued it. An entry lives from request issuance until its callback is
// consumed or the sweep expires it, and a request id never maps to two live
// contexts.
type PendingRequest struct {
	RequestID      string
	Kind           RequestKind
	ContributionID uint64
	Contributor    ledger.ContributorKey
	IssuedAt       time.Time
}

// registry is the single-consumption map from request id to pending
// operation. Consuming an entry removes it atomically, so a replayed or
// duplicated callback always fails with ErrUnknownRequest.
type registry struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
}

func newRegistry() *registry {
	return &registry{pending: make(map[string]*PendingRequest)}
}

func (r *registry) register(req *PendingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.pending[req.RequestID]; found {
		return ledgererrors.ErrDuplicateRequestID
	}
	r.pending[req.RequestID] = req
	return nil
}

// consume removes and returns the entry for the given id. A kind mismatch
// leaves the entry untouched: the callback reached the wrong handler and the
// real one must still be able to resolve it.
func (r *registry) consume(requestID string, kind RequestKind) (*PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, found := r.pending[requestID]
	if !found || req.Kind != kind {
		return nil, ledgererrors.ErrUnknownRequest
	}
	delete(r.pending, requestID)
	return req, nil
}

// expire removes and returns every entry issued before the cutoff.
func (r *registry) expire(cutoff time.Time) []*PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*PendingRequest
	for id, req := range r.pending {
		if req.IssuedAt.Before(cutoff) {
			stale = append(stale, req)
			delete(r.pending, id)
		}
	}
	return stale
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}
