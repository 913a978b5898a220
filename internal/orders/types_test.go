package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemainingQuantityAndIsFilled(t *testing.T) {
	o := &Order{OriginalQuantity: 100, FilledQuantity: 40}
	require.EqualValues(t, 60, o.RemainingQuantity())
	require.False(t, o.IsFilled())

	o.FilledQuantity = 100
	require.EqualValues(t, 0, o.RemainingQuantity())
	require.True(t, o.IsFilled())
}

func TestIsActive(t *testing.T) {
	o := &Order{Status: StatusPending}
	require.True(t, o.IsActive())
	o.Status = StatusPartialFilled
	require.True(t, o.IsActive())
	o.Status = StatusFilled
	require.False(t, o.IsActive())
	o.Status = StatusCancelled
	require.False(t, o.IsActive())
}

func TestFromFillOrdersBuySellByTakerSide(t *testing.T) {
	f := Fill{
		TradeID:      7,
		MakerOrderID: 1,
		TakerOrderID: 2,
		Price:        100,
		Quantity:     10,
		InstrumentID: 1,
		MakerUserID:  10,
		TakerUserID:  20,
		TakerSide:    SideBuy,
	}
	tr := FromFill(f)
	require.EqualValues(t, 2, tr.BuyOrderID)
	require.EqualValues(t, 1, tr.SellOrderID)
	require.EqualValues(t, 20, tr.BuyUserID)
	require.EqualValues(t, 10, tr.SellUserID)
	require.True(t, tr.IsTakerBuy)

	f.TakerSide = SideSell
	tr = FromFill(f)
	require.EqualValues(t, 1, tr.BuyOrderID)
	require.EqualValues(t, 2, tr.SellOrderID)
	require.False(t, tr.IsTakerBuy)
}
