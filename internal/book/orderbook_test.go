package book

import (
	"testing"

	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/stretchr/testify/require"
)

func mkOrder(id scale.OrderId, side orders.Side, price scale.Price, qty scale.Quantity) *orders.Order {
	return &orders.Order{
		ID:               id,
		Side:             side,
		Price:            price,
		OriginalQuantity: qty,
		Status:           orders.StatusPending,
	}
}

func TestBestBidAskOrdering(t *testing.T) {
	ob := New(1)
	ob.Insert(mkOrder(1, orders.SideBuy, 100, 10))
	ob.Insert(mkOrder(2, orders.SideBuy, 105, 10))
	ob.Insert(mkOrder(3, orders.SideSell, 110, 10))
	ob.Insert(mkOrder(4, orders.SideSell, 108, 10))

	bid, ok := ob.BestBid()
	require.True(t, ok)
	require.EqualValues(t, 105, bid)

	ask, ok := ob.BestAsk()
	require.True(t, ok)
	require.EqualValues(t, 108, ask)
}

func TestFIFOWithinPriceLevel(t *testing.T) {
	ob := New(1)
	o1 := mkOrder(1, orders.SideBuy, 100, 10)
	o2 := mkOrder(2, orders.SideBuy, 100, 20)
	ob.Insert(o1)
	ob.Insert(o2)

	level := ob.Bids.BestLevel()
	require.Equal(t, o1, level.Front())
	require.EqualValues(t, 30, level.TotalQuantity)
}

func TestRemoveErasesEmptyLevel(t *testing.T) {
	ob := New(1)
	o := mkOrder(1, orders.SideBuy, 100, 10)
	ob.Insert(o)
	require.Equal(t, 1, ob.Bids.LevelCount())

	ob.Remove(o)
	require.Equal(t, 0, ob.Bids.LevelCount())
	require.Nil(t, o.Residency())
}

func TestRemoveKeepsLevelWhenOthersRemain(t *testing.T) {
	ob := New(1)
	o1 := mkOrder(1, orders.SideBuy, 100, 10)
	o2 := mkOrder(2, orders.SideBuy, 100, 20)
	ob.Insert(o1)
	ob.Insert(o2)

	ob.Remove(o1)
	require.Equal(t, 1, ob.Bids.LevelCount())
	require.EqualValues(t, 20, ob.Bids.BestLevel().TotalQuantity)
}

func TestSnapshotDepthOrdersBestToWorst(t *testing.T) {
	ob := New(1)
	ob.Insert(mkOrder(1, orders.SideSell, 110, 5))
	ob.Insert(mkOrder(2, orders.SideSell, 100, 5))
	ob.Insert(mkOrder(3, orders.SideSell, 105, 5))

	_, asks := ob.SnapshotDepth(0)
	require.Len(t, asks, 3)
	require.EqualValues(t, 100, asks[0].Price)
	require.EqualValues(t, 105, asks[1].Price)
	require.EqualValues(t, 110, asks[2].Price)
}

func TestSnapshotDepthRespectsLimit(t *testing.T) {
	ob := New(1)
	for i := scale.Price(100); i < 110; i++ {
		ob.Insert(mkOrder(scale.OrderId(i), orders.SideBuy, i, 1))
	}
	bids, _ := ob.SnapshotDepth(3)
	require.Len(t, bids, 3)
	require.EqualValues(t, 109, bids[0].Price)
}
