package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"

	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
)

func TestValuesRoundtrip(t *testing.T) {
	payload := EncodeValues(100, 80, 60)
	vals, err := DecodeValues(payload, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 80, 60}, vals)
}

func TestDecodeValuesRejectsMalformedFrames(t *testing.T) {
	_, err := DecodeValues(nil, 3)
	require.ErrorIs(t, err, ledgererrors.ErrDecodePayload)

	// wrong count tag
	_, err = DecodeValues(EncodeValues(1, 2), 3)
	require.ErrorIs(t, err, ledgererrors.ErrDecodePayload)

	// truncated body
	payload := EncodeValues(1, 2, 3)
	_, err = DecodeValues(payload[:len(payload)-1], 3)
	require.ErrorIs(t, err, ledgererrors.ErrDecodePayload)

	// trailing bytes
	_, err = DecodeValues(append(payload, 0x00), 3)
	require.ErrorIs(t, err, ledgererrors.ErrDecodePayload)
}

func TestDecodeMetricsBounds(t *testing.T) {
	computeHours, dataQuality, modelImpact, err := DecodeMetrics(EncodeValues(100, 80, 60))
	require.NoError(t, err)
	require.Equal(t, uint64(100), computeHours)
	require.Equal(t, uint64(80), dataQuality)
	require.Equal(t, uint64(60), modelImpact)

	_, _, _, err = DecodeMetrics(EncodeValues(MaxMetric+1, 0, 0))
	require.ErrorIs(t, err, ledgererrors.ErrDecodePayload)
}

func TestDecodeClaim(t *testing.T) {
	claimed, payment, err := DecodeClaim(EncodeValues(0, 500))
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, uint64(500), payment)

	claimed, _, err = DecodeClaim(EncodeValues(1, 500))
	require.NoError(t, err)
	require.True(t, claimed)

	// the claimed flag is a strict boolean
	_, _, err = DecodeClaim(EncodeValues(2, 500))
	require.ErrorIs(t, err, ledgererrors.ErrDecodePayload)

	_, _, err = DecodeClaim(EncodeValues(1))
	require.ErrorIs(t, err, ledgererrors.ErrDecodePayload)
}
