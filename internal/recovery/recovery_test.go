package recovery

import (
	"path/filepath"
	"testing"

	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/wal"
	"github.com/stretchr/testify/require"
)

func TestReplayRebuildsRestingOrders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(wal.Config{Path: path})
	require.NoError(t, err)

	resting := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10, FilledQuantity: 0,
		Status: orders.StatusPending, SequenceID: 1}
	_, err = w.AppendOrder(resting, 1)
	require.NoError(t, err)

	filled := &orders.Order{ID: 2, UserID: 2, InstrumentID: 1, Side: orders.SideSell,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 5, FilledQuantity: 5,
		Status: orders.StatusFilled, SequenceID: 2}
	_, err = w.AppendOrder(filled, 2)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	result, truncatedAt, err := Replay(path, 1)
	require.NoError(t, err)
	require.Zero(t, truncatedAt)
	require.EqualValues(t, 2, result.LastSequence)
	require.Equal(t, 2, result.RecordsPlayed)

	bids, _ := result.Book.SnapshotDepth(10)
	require.Len(t, bids, 1)
	require.EqualValues(t, 10, bids[0].TotalQuantity)

	require.NotNil(t, result.Index.Get(1))
	require.Nil(t, result.Index.Get(2))
}

func TestReplaySkipsOrderCancelledAfterItFirstRested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(wal.Config{Path: path})
	require.NoError(t, err)

	resting := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10, FilledQuantity: 0,
		Status: orders.StatusPending, SequenceID: 1}
	_, err = w.AppendOrder(resting, 1)
	require.NoError(t, err)

	// Same order id, later record: the order was cancelled. Without
	// dedup-by-id, replay would insert the first (resting) snapshot and
	// never see this one supersede it.
	cancelled := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 10, FilledQuantity: 0,
		Status: orders.StatusCancelled, SequenceID: 2}
	_, err = w.AppendOrder(cancelled, 2)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	result, truncatedAt, err := Replay(path, 1)
	require.NoError(t, err)
	require.Zero(t, truncatedAt)

	bids, _ := result.Book.SnapshotDepth(10)
	require.Empty(t, bids, "cancelled order must not resurrect as resting after replay")
	require.Nil(t, result.Index.Get(1))
}

func TestReplayAppliesMakerUpdateFromLaterFill(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(wal.Config{Path: path})
	require.NoError(t, err)

	maker := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideSell,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 100, FilledQuantity: 0,
		Status: orders.StatusPending, SequenceID: 1}
	_, err = w.AppendOrder(maker, 1)
	require.NoError(t, err)

	// A taker partially fills maker; the engine persists maker's updated
	// snapshot as a second Order record for the same id (§4.H).
	takerFilledMaker := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideSell,
		Type: orders.TypeLimit, Price: 50_000_000_000, OriginalQuantity: 100, FilledQuantity: 40,
		Status: orders.StatusPartialFilled, SequenceID: 3}
	_, err = w.AppendOrder(takerFilledMaker, 2)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	result, truncatedAt, err := Replay(path, 1)
	require.NoError(t, err)
	require.Zero(t, truncatedAt)

	asks, _ := result.Book.SnapshotDepth(10)
	require.Len(t, asks, 1)
	require.EqualValues(t, 60, asks[0].TotalQuantity, "maker must be rebuilt at its post-fill remaining quantity, not its original size")
}

func TestReplayOnEmptyWalReturnsEmptyResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	result, truncatedAt, err := Replay(path, 1)
	require.NoError(t, err)
	require.Zero(t, truncatedAt)
	require.Zero(t, result.LastSequence)
	require.Equal(t, 0, result.RecordsPlayed)
}
