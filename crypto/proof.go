// Package crypto verifies the decryption proofs attached to oracle
// callbacks. A proof is a BLS signature over the request id and the revealed
// cleartext, issued by the oracle's long-term key. Verification fails closed:
// any error means the callback is rejected.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	sign "github.com/drand/kyber/sign/bls"
)

// Pairing is the pairing suite used for oracle attestations.
var Pairing = bls.NewBLS12381Suite()

// KeyGroup is the group oracle public keys live in.
var KeyGroup = Pairing.G1()

// AuthScheme is the signature scheme used by the oracle to attest revealed
// cleartext; keys on G1, signatures on G2.
var AuthScheme = sign.NewSchemeOnG2(Pairing)

// Verifier checks oracle proofs against a fixed oracle public key.
type Verifier struct {
	pub kyber.Point
}

// NewVerifier returns a Verifier bound to the given oracle public key.
func NewVerifier(pub kyber.Point) *Verifier {
	return &Verifier{pub: pub}
}

// DigestMessage returns the message the oracle signs alongside a reveal: the
// sha256 hash of the request id followed by the cleartext bytes. Binding the
// request id prevents a valid proof from being replayed on another request.
func DigestMessage(requestID string, cleartext []byte) []byte {
	h := sha256.New()
	_, _ = h.Write([]byte(requestID))
	_, _ = h.Write(cleartext)
	return h.Sum(nil)
}

// VerifyReveal returns an error if the proof does not verify for the given
// request id and cleartext under the oracle public key.
func (v *Verifier) VerifyReveal(requestID string, cleartext, proof []byte) error {
	msg := DigestMessage(requestID, cleartext)
	return AuthScheme.Verify(v.pub, msg, proof)
}

// PublicKeyFromHex parses an oracle public key from its hex representation.
func PublicKeyFromHex(s string) (kyber.Point, error) {
	buff, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding oracle public key: %w", err)
	}
	pub := KeyGroup.Point()
	if err := pub.UnmarshalBinary(buff); err != nil {
		return nil, fmt.Errorf("unmarshalling oracle public key: %w", err)
	}
	return pub, nil
}
