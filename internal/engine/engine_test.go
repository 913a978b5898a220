package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rishav/perpetual-matching-core/internal/matching"
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, mode DurabilityMode) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := New(Config{
		InstrumentID:   1,
		WalPath:        filepath.Join(dir, "wal.log"),
		DurabilityMode: mode,
		STPPolicy:      matching.STPAllow,
		SyncInterval:   5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(time.Second) })
	return e
}

func TestProcessOrderMatchesAndPersistsAsync(t *testing.T) {
	e := newTestEngine(t, ModeAsyncBatched)

	sell := &orders.Order{ID: 1, UserID: 100, InstrumentID: 1, Side: orders.SideSell,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10_000}
	res, _, err := e.ProcessOrder(sell, false)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Empty(t, res.Fills)

	buy := &orders.Order{ID: 2, UserID: 200, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10_000}
	res, receipt, err := e.ProcessOrder(buy, true)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Len(t, res.Fills, 1)
	require.Equal(t, orders.StatusFilled, buy.Status)
	require.EqualValues(t, buy.SequenceID, receipt.SequenceID)
}

func TestProcessOrderZeroLossAlwaysConfirmsDurability(t *testing.T) {
	e := newTestEngine(t, ModeZeroLoss)

	o := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 1}
	_, receipt, err := e.ProcessOrder(o, false)
	require.NoError(t, err)
	require.True(t, receipt.DurabilityConfirmed)
}

func TestCancelOrderRemovesFromBookAndIndex(t *testing.T) {
	e := newTestEngine(t, ModeAsyncBatched)

	o := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10}
	_, _, err := e.ProcessOrder(o, false)
	require.NoError(t, err)

	cancelled, _, err := e.CancelOrder(1, 1)
	require.NoError(t, err)
	require.Equal(t, orders.StatusCancelled, cancelled.Status)
	require.Nil(t, e.index.Get(1))

	_, _, err = e.CancelOrder(999, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOrderRejectsMismatchedOwner(t *testing.T) {
	e := newTestEngine(t, ModeAsyncBatched)

	o := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10}
	_, _, err := e.ProcessOrder(o, false)
	require.NoError(t, err)

	_, _, err = e.CancelOrder(1, 2)
	require.ErrorIs(t, err, ErrForbidden)
	require.NotNil(t, e.index.Get(1), "order must still be resident after a rejected cancel")
}

func TestProcessOrderRejectsInvalidArguments(t *testing.T) {
	e := newTestEngine(t, ModeAsyncBatched)

	zeroQty := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 0}
	res, _, err := e.ProcessOrder(zeroQty, false)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.False(t, res.Accepted)
	require.Equal(t, orders.StatusRejected, zeroQty.Status)
	require.Nil(t, e.index.Get(zeroQty.ID), "rejected order must never be inserted")

	noPrice := &orders.Order{ID: 2, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 0, OriginalQuantity: 10}
	_, _, err = e.ProcessOrder(noPrice, false)
	require.ErrorIs(t, err, ErrInvalidArgument)

	wrongInstrument := &orders.Order{ID: 3, UserID: 1, InstrumentID: 2, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10}
	_, _, err = e.ProcessOrder(wrongInstrument, false)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSnapshotDepthReflectsRestingOrders(t *testing.T) {
	e := newTestEngine(t, ModeAsyncBatched)
	o := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10}
	_, _, err := e.ProcessOrder(o, false)
	require.NoError(t, err)

	bids, asks := e.SnapshotDepth(10)
	require.Len(t, bids, 1)
	require.Empty(t, asks)
}

func TestMaxIterationsRejectionDoesNotPersist(t *testing.T) {
	e := newTestEngine(t, ModeAsyncBatched)
	e.kernel.MaxIterations = 1

	for i := scale.OrderId(1); i <= 3; i++ {
		o := &orders.Order{ID: i, UserID: i, InstrumentID: 1, Side: orders.SideSell,
			Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 1}
		_, _, err := e.ProcessOrder(o, false)
		require.NoError(t, err)
	}

	taker := &orders.Order{ID: 99, UserID: 999, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeMarket, OriginalQuantity: 3}
	res, _, err := e.ProcessOrder(taker, false)
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.EqualValues(t, 3, e.pendingSeq.Load(), "rejected order must not reach the persist path")
}
