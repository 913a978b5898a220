package shard

import (
	"testing"

	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/stretchr/testify/require"
)

func TestPreCheckRejectsBeyondPositionLimit(t *testing.T) {
	s := New(Config{MaxPositionSize: 100, MaxReservedBalance: 1_000_000_000_000})
	o := &orders.Order{UserID: 1, Side: orders.SideBuy, Price: scale.PriceScale, OriginalQuantity: 200}
	require.False(t, s.PreCheck(o))
}

func TestPreCheckAcceptsWithinLimitsAndReservesBalance(t *testing.T) {
	s := New(DefaultConfig())
	o := &orders.Order{UserID: 1, Side: orders.SideBuy, Price: scale.PriceScale, OriginalQuantity: 10}
	require.True(t, s.PreCheck(o))
	require.EqualValues(t, 10, s.stateFor(1).reservedBalance)
}

func TestPostTradeUpdatesPositionFromTrades(t *testing.T) {
	s := New(DefaultConfig())
	buyer := &orders.Order{UserID: 1, Side: orders.SideBuy, Price: scale.PriceScale, OriginalQuantity: 10, Status: orders.StatusFilled}
	require.True(t, s.PreCheck(buyer))

	trades := []orders.Trade{{BuyUserID: 1, SellUserID: 2, Price: scale.PriceScale, Quantity: 10}}
	s.PostTrade(buyer, trades)

	require.EqualValues(t, 10, s.Position(1))
}

func TestPostTradeReleasesReservationOnCancel(t *testing.T) {
	s := New(DefaultConfig())
	o := &orders.Order{UserID: 1, Side: orders.SideBuy, Price: scale.PriceScale, OriginalQuantity: 10, Status: orders.StatusCancelled}
	require.True(t, s.PreCheck(o))

	s.PostTrade(o, nil)

	st := s.stateFor(1)
	require.EqualValues(t, 0, st.reservedBalance)
}
