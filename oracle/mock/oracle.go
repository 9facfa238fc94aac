// Package mock provides an in-process oracle with a real BLS keypair. Tests
// and development runs use it to drive reveal callbacks by hand: a request
// queues the ciphertexts, Emit decrypts them and delivers a signed payload to
// the given callback.
package mock

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	"github.com/google/uuid"

	"github.com/veilpay/veilpay/crypto"
	"github.com/veilpay/veilpay/ledger"
	"github.com/veilpay/veilpay/oracle"
)

// DeliverFunc is the engine callback the oracle invokes with a reveal. It
// matches the engine's On*Revealed signatures so tests can pass those method
// values directly.
type DeliverFunc func(ctx context.Context, requestID string, cleartext, proof []byte) error

// Oracle fake
type Oracle struct {
	l    sync.Mutex
	priv kyber.Scalar
	pub  kyber.Point
	mask [8]byte

	requests map[string][]ledger.Ciphertext
	order    []string
}

// New returns a mock oracle with a freshly picked keypair.
func New() *Oracle {
	priv := crypto.KeyGroup.Scalar().Pick(random.New())
	pub := crypto.KeyGroup.Point().Mul(priv, nil)
	o := &Oracle{
		priv:     priv,
		pub:      pub,
		requests: make(map[string][]ledger.Ciphertext),
	}
	_, _ = rand.Read(o.mask[:])
	return o
}

// PublicKey returns the key reveal proofs verify under.
func (o *Oracle) PublicKey() kyber.Point {
	return o.pub
}

// RequestDecryption implements oracle.Oracle. It queues the ciphertexts and
// returns a fresh request id without delivering anything.
func (o *Oracle) RequestDecryption(_ context.Context, cts []ledger.Ciphertext) (string, error) {
	o.l.Lock()
	defer o.l.Unlock()

	id := uuid.NewString()
	queued := make([]ledger.Ciphertext, len(cts))
	copy(queued, cts)
	o.requests[id] = queued
	o.order = append(o.order, id)
	return id, nil
}

// Encrypt implements oracle.Encrypter. Mock ciphertexts are the big-endian
// value masked with a per-oracle pad, opaque enough that the daemon cannot
// accidentally read them as plaintext.
func (o *Oracle) Encrypt(value uint64) (ledger.Ciphertext, error) {
	var buff [8]byte
	binary.BigEndian.PutUint64(buff[:], value)
	for i := range buff {
		buff[i] ^= o.mask[i]
	}
	return buff[:], nil
}

func (o *Oracle) decrypt(ct ledger.Ciphertext) (uint64, error) {
	if len(ct) != 8 {
		return 0, fmt.Errorf("mock ciphertext must be 8 bytes, got %d", len(ct))
	}
	var buff [8]byte
	copy(buff[:], ct)
	for i := range buff {
		buff[i] ^= o.mask[i]
	}
	return binary.BigEndian.Uint64(buff[:]), nil
}

// LastRequest returns the id of the most recently issued request.
func (o *Oracle) LastRequest() string {
	o.l.Lock()
	defer o.l.Unlock()

	if len(o.order) == 0 {
		return ""
	}
	return o.order[len(o.order)-1]
}

// Pending returns how many requests have not been emitted yet.
func (o *Oracle) Pending() int {
	o.l.Lock()
	defer o.l.Unlock()

	return len(o.requests)
}

func (o *Oracle) take(requestID string) ([]ledger.Ciphertext, error) {
	o.l.Lock()
	defer o.l.Unlock()

	cts, found := o.requests[requestID]
	if !found {
		return nil, fmt.Errorf("no queued request %q", requestID)
	}
	delete(o.requests, requestID)
	return cts, nil
}

// Emit decrypts the queued ciphertexts of the request, signs the payload and
// delivers it to the callback with a background context, the way a transport
// handler would. The deliver error is returned untouched so tests can assert
// on it.
func (o *Oracle) Emit(requestID string, deliver DeliverFunc) error {
	cts, err := o.take(requestID)
	if err != nil {
		return err
	}
	vals := make([]uint64, len(cts))
	for i, ct := range cts {
		v, err := o.decrypt(ct)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	payload := oracle.EncodeValues(vals...)
	proof, err := crypto.AuthScheme.Sign(o.priv, crypto.DigestMessage(requestID, payload))
	if err != nil {
		return err
	}
	return deliver(context.Background(), requestID, payload, proof)
}

// EmitRaw signs and delivers an arbitrary payload for the request, useful to
// exercise decode failures behind a valid proof.
func (o *Oracle) EmitRaw(requestID string, payload []byte, deliver DeliverFunc) error {
	if _, err := o.take(requestID); err != nil {
		return err
	}
	proof, err := crypto.AuthScheme.Sign(o.priv, crypto.DigestMessage(requestID, payload))
	if err != nil {
		return err
	}
	return deliver(context.Background(), requestID, payload, proof)
}

// EmitCorrupt delivers the real payload with a tampered proof.
func (o *Oracle) EmitCorrupt(requestID string, deliver DeliverFunc) error {
	cts, err := o.take(requestID)
	if err != nil {
		return err
	}
	vals := make([]uint64, len(cts))
	for i, ct := range cts {
		v, err := o.decrypt(ct)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	payload := oracle.EncodeValues(vals...)
	proof, err := crypto.AuthScheme.Sign(o.priv, crypto.DigestMessage(requestID, payload))
	if err != nil {
		return err
	}
	proof[0] ^= 0xff
	return deliver(context.Background(), requestID, payload, proof)
}
