package scale

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPriceRoundTrip(t *testing.T) {
	cases := []string{"50000", "49900.5", "0.000000001", "-12.34"}
	for _, c := range cases {
		d := decimal.RequireFromString(c)
		p, err := PriceFromDecimal(d)
		require.NoError(t, err)
		require.True(t, DecimalFromPrice(p).Equal(d), "round trip mismatch for %s", c)
	}
}

func TestQuantityRoundTrip(t *testing.T) {
	cases := []string{"100000", "0.000001", "0.5"}
	for _, c := range cases {
		d := decimal.RequireFromString(c)
		q, err := QuantityFromDecimal(d)
		require.NoError(t, err)
		require.True(t, DecimalFromQuantity(q).Equal(d), "round trip mismatch for %s", c)
	}
}

func TestPriceFromDecimalRejectsSubTickPrecision(t *testing.T) {
	_, err := PriceFromDecimal(decimal.RequireFromString("0.0000000001"))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPriceFromDecimalRejectsOverflow(t *testing.T) {
	huge := decimal.RequireFromString("99999999999999999999999999")
	_, err := PriceFromDecimal(huge)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
