package scale

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidArgument is returned when a decimal value cannot be represented
// as a fixed-point Price or Quantity without loss or overflow. It maps to
// the InvalidArgument error kind.
var ErrInvalidArgument = errors.New("invalid argument")

var priceScaleDec = decimal.New(PriceScale, 0)
var quantityScaleDec = decimal.New(QuantityScale, 0)

// PriceFromDecimal converts a decimal quoted price into its scaled tick
// representation. Conversion is total over the representable range; values
// that would lose precision or overflow int64 fail with ErrInvalidArgument.
func PriceFromDecimal(d decimal.Decimal) (Price, error) {
	ticks, err := scaledInt64(d, priceScaleDec)
	if err != nil {
		return 0, err
	}
	return Price(ticks), nil
}

// DecimalFromPrice converts a scaled tick Price back into a decimal quoted
// price.
func DecimalFromPrice(p Price) decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Div(priceScaleDec)
}

// QuantityFromDecimal converts a decimal base-unit quantity into its scaled
// representation. Conversion is total over the representable range; values
// that would lose precision or overflow int64 fail with ErrInvalidArgument.
func QuantityFromDecimal(d decimal.Decimal) (Quantity, error) {
	units, err := scaledInt64(d, quantityScaleDec)
	if err != nil {
		return 0, err
	}
	return Quantity(units), nil
}

// DecimalFromQuantity converts a scaled Quantity back into a decimal
// base-unit quantity.
func DecimalFromQuantity(q Quantity) decimal.Decimal {
	return decimal.NewFromInt(int64(q)).Div(quantityScaleDec)
}

// scaledInt64 multiplies d by scale and returns the result as an int64,
// rejecting fractional remainders (sub-tick precision) and values outside
// the int64 range rather than truncating or wrapping silently.
func scaledInt64(d, scale decimal.Decimal) (int64, error) {
	scaled := d.Mul(scale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrInvalidArgument
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, ErrInvalidArgument
	}
	return bi.Int64(), nil
}
