package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadAllRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := Open(Config{Path: path})
	require.NoError(t, err)

	o := &orders.Order{
		ID: 1, UserID: 2, InstrumentID: 3,
		Side: orders.SideBuy, Type: orders.TypeLimit,
		Price: 50_000_000_000, OriginalQuantity: 10_000,
		FilledQuantity: 0, Status: orders.StatusPending, SequenceID: 7,
	}
	_, err = w.AppendOrder(o, 100)
	require.NoError(t, err)

	tr := orders.Trade{SequenceID: 8, BuyOrderID: 1, SellOrderID: 2, InstrumentID: 3,
		Price: 50_000_000_000, Quantity: 10_000, IsTakerBuy: true}
	endOffset, err := w.AppendTrade(tr, 200)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	recs, goodOffset, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, endOffset, goodOffset) // a clean read reports the end of the last good record

	decodedOrder, err := DecodeOrderPayload(recs[0].Payload)
	require.NoError(t, err)
	require.Equal(t, o.ID, decodedOrder.ID)
	require.Equal(t, o.Price, decodedOrder.Price)
	require.Equal(t, o.Status, decodedOrder.Status)

	decodedTrade, err := DecodeTradePayload(recs[1].Payload)
	require.NoError(t, err)
	require.Equal(t, tr.SequenceID, decodedTrade.SequenceID)
	require.Equal(t, tr.Price, decodedTrade.Price)
	require.True(t, decodedTrade.IsTakerBuy)
}

func TestReadAllStopsAtCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := Open(Config{Path: path})
	require.NoError(t, err)
	o := &orders.Order{ID: 1, Status: orders.StatusPending}
	offsetAfterFirst, err := w.AppendOrder(o, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Corrupt the checksum field (bytes 5:9) of the first record.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff, 0xff, 0xff, 0xff}, 5)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, goodOffset, err := ReadAll(path)
	require.ErrorIs(t, err, ErrCorruption)
	require.Empty(t, recs)
	require.Equal(t, int64(0), goodOffset)
	_ = offsetAfterFirst
}

func TestTruncateDropsBytesPastGoodOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := Open(Config{Path: path})
	require.NoError(t, err)
	_, err = w.AppendOrder(&orders.Order{ID: 1, Status: orders.StatusPending}, 1)
	require.NoError(t, err)
	goodOffset := w.LastWrittenOffset()
	_, err = w.AppendOrder(&orders.Order{ID: 2, Status: orders.StatusPending}, 2)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, Truncate(path, goodOffset))

	recs, _, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestReadUncommittedOrdersFiltersBySequence(t *testing.T) {
	recs := []Record{
		{Type: RecordOrder, Payload: EncodeOrderPayload(&orders.Order{ID: 1, SequenceID: 1})},
		{Type: RecordOrder, Payload: EncodeOrderPayload(&orders.Order{ID: 2, SequenceID: 2})},
		{Type: RecordOrder, Payload: EncodeOrderPayload(&orders.Order{ID: 3, SequenceID: 3})},
	}
	uncommitted, err := ReadUncommittedOrders(recs, scale.SequenceId(1))
	require.NoError(t, err)
	require.Len(t, uncommitted, 2)
}

func TestLastCheckpointFindsMostRecent(t *testing.T) {
	recs := []Record{
		{Type: RecordCheckpoint, Payload: EncodeCheckpointPayload(Checkpoint{LastCommittedSequence: 5})},
		{Type: RecordOrder, Payload: EncodeOrderPayload(&orders.Order{ID: 1, SequenceID: 6})},
		{Type: RecordCheckpoint, Payload: EncodeCheckpointPayload(Checkpoint{LastCommittedSequence: 6})},
	}
	cp, ok := LastCheckpoint(recs)
	require.True(t, ok)
	require.EqualValues(t, 6, cp.LastCommittedSequence)
}
