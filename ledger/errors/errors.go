package errors

import "errors"

// ErrNoContribution is returned when a contribution id was never assigned by
// the store.
var ErrNoContribution = errors.New("contribution not found in store")

// ErrUnknownRequest is returned when a callback references a request id that
// was never registered or has already been consumed.
var ErrUnknownRequest = errors.New("unknown or already consumed request id")

// ErrDuplicateRequestID is returned when the oracle hands out a request id
// that is still live. This should not happen under correct oracle operation.
var ErrDuplicateRequestID = errors.New("request id already registered")

// ErrProofInvalid is returned when the oracle attestation over revealed
// cleartext does not verify. The callback is rejected without any mutation.
var ErrProofInvalid = errors.New("oracle proof verification failed")

// ErrDecodePayload is returned when revealed cleartext bytes do not match the
// expected shape for the request kind.
var ErrDecodePayload = errors.New("malformed oracle cleartext payload")

// ErrAlreadyDistributed is returned when a calculation is requested or
// revealed for a contributor that already has a settled distribution.
var ErrAlreadyDistributed = errors.New("distribution already exists for contributor")

// ErrNoDistribution is returned when a claim references a contributor without
// a revealed distribution.
var ErrNoDistribution = errors.New("no distribution for contributor")

// ErrAlreadyClaimed is returned when a claim is requested or finalized for a
// distribution that is already claimed or has a claim in flight.
var ErrAlreadyClaimed = errors.New("distribution already claimed")

// ErrCalculationPending is returned when a calculation is re-requested while
// a previous request for the same contribution is still awaiting its
// callback. The pending sweep releases the contribution after the timeout.
var ErrCalculationPending = errors.New("calculation request already in flight")

// ErrInvalidTransition is returned by stores when a compare-and-set state
// transition observes a different current state than expected.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrNegativeDeposit is returned when a pool deposit carries a negative
// amount. The pool only ever grows through deposits.
var ErrNegativeDeposit = errors.New("deposit amount must be non-negative")
