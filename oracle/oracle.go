// Package oracle defines the boundary to the external decryption oracle.
// The daemon only ever issues fire-and-forget decryption requests; cleartext
// comes back later through the reveal engine's callback entrypoints, together
// with a proof checked by the crypto package.
package oracle

import (
	"context"

	"github.com/veilpay/veilpay/ledger"
)

// Oracle is the consumed interface of the external decryption service. A
// request returns immediately with the oracle-issued request id; the
// decrypted values arrive at an unspecified later time, at most once per
// request id under correct oracle operation. The correlation registry does
// not rely on that and enforces single consumption itself.
type Oracle interface {
	RequestDecryption(ctx context.Context, cts []ledger.Ciphertext) (requestID string, err error)
}

// Encrypter produces ciphertexts under the external homomorphic scheme. The
// reveal engine uses it to write the encrypted share, payment and claimed
// flag into the distribution ledger.
type Encrypter interface {
	Encrypt(value uint64) (ledger.Ciphertext, error)
}
