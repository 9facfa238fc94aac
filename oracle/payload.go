package oracle

import (
	"encoding/binary"
	"fmt"

	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
)

// Cleartext payloads have a fixed shape: a one-byte count tag followed by
// that many big-endian uint64 values. The decoder is strict about both the
// tag and the total length so a malformed oracle response fails explicitly
// instead of being misread as different fields.

// MaxMetric bounds every decoded metric value. Metrics are small performance
// counters; anything above this is a corrupted or hostile payload.
const MaxMetric = 1 << 32

// EncodeValues encodes the given values into a cleartext payload frame.
func EncodeValues(vals ...uint64) []byte {
	buff := make([]byte, 1+8*len(vals))
	buff[0] = byte(len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(buff[1+8*i:], v)
	}
	return buff
}

// DecodeValues decodes a payload frame and checks it carries exactly want
// values.
func DecodeValues(b []byte, want int) ([]uint64, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ledgererrors.ErrDecodePayload)
	}
	count := int(b[0])
	if count != want {
		return nil, fmt.Errorf("%w: got %d values, want %d", ledgererrors.ErrDecodePayload, count, want)
	}
	if len(b) != 1+8*count {
		return nil, fmt.Errorf("%w: payload length %d does not match %d values", ledgererrors.ErrDecodePayload, len(b), count)
	}
	vals := make([]uint64, count)
	for i := range vals {
		vals[i] = binary.BigEndian.Uint64(b[1+8*i:])
	}
	return vals, nil
}

// DecodeMetrics decodes the three calculation metrics and enforces the
// MaxMetric bound on each.
func DecodeMetrics(b []byte) (computeHours, dataQuality, modelImpact uint64, err error) {
	vals, err := DecodeValues(b, 3)
	if err != nil {
		return 0, 0, 0, err
	}
	for i, v := range vals {
		if v > MaxMetric {
			return 0, 0, 0, fmt.Errorf("%w: metric %d out of bounds", ledgererrors.ErrDecodePayload, i)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// DecodeClaim decodes the claimed flag and payment amount of a claim reveal.
// The flag must be a strict boolean.
func DecodeClaim(b []byte) (claimed bool, payment uint64, err error) {
	vals, err := DecodeValues(b, 2)
	if err != nil {
		return false, 0, err
	}
	if vals[0] > 1 {
		return false, 0, fmt.Errorf("%w: claimed flag must be 0 or 1", ledgererrors.ErrDecodePayload)
	}
	return vals[0] == 1, vals[1], nil
}
