// Package recovery implements the cold-start WAL replay of §4.K: rebuild
// an instrument's in-memory book by replaying every uncommitted Order
// record in sequence order into a fresh book and order-id index, then
// verify the final sequence_id matches the WAL's last record.
//
// Grounded on original_source/include/core/event_sourcing.h's
// replay_events (sequential rebuild, fail on mismatch) and the teacher's
// EventLog.Replay gap-detection idea, rewritten against internal/wal's
// bit-exact record format instead of the teacher's gob encoding.
package recovery

import (
	"errors"
	"fmt"

	"github.com/rishav/perpetual-matching-core/internal/book"
	"github.com/rishav/perpetual-matching-core/internal/matching"
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/rishav/perpetual-matching-core/internal/wal"
)

// ErrRecoveryMismatch is returned when the final sequence_id reached by
// replay does not match the WAL's last record, per §4.K.
var ErrRecoveryMismatch = errors.New("recovery: final sequence_id does not match wal's last record")

// Result is what a successful replay reconstructs.
type Result struct {
	Book          *book.OrderBook
	Index         *matching.Index
	LastSequence  scale.SequenceId
	RecordsPlayed int
}

// Replay opens the WAL at walPath and rebuilds a fresh book for
// instrumentID from the Order records past the last checkpoint: for each
// order id it keeps the latest snapshot and re-inserts its resting residue
// (see applyReplayedOrder), without re-running the matching kernel and
// without re-appending to the WAL. Corruption encountered mid-log
// truncates to the last good record and continues, per §6; a truncation
// warning is reported via truncatedAt (0 if none occurred).
func Replay(walPath string, instrumentID scale.InstrumentId) (Result, int64, error) {
	recs, goodOffset, err := wal.ReadAll(walPath)
	truncatedAt := int64(0)
	if err != nil {
		if !errors.Is(err, wal.ErrCorruption) {
			return Result{}, 0, fmt.Errorf("recovery: read wal: %w", err)
		}
		truncatedAt = goodOffset
		if terr := wal.Truncate(walPath, goodOffset); terr != nil {
			return Result{}, 0, fmt.Errorf("recovery: truncate corrupt wal: %w", terr)
		}
	}

	afterSeq := scale.SequenceId(0)
	if cp, ok := wal.LastCheckpoint(recs); ok {
		afterSeq = cp.LastCommittedSequence
	}

	uncommitted, err := wal.ReadUncommittedOrders(recs, afterSeq)
	if err != nil {
		return Result{}, truncatedAt, fmt.Errorf("recovery: filter uncommitted orders: %w", err)
	}

	ob := book.New(instrumentID)
	idx := matching.NewIndex()
	var lastSeq scale.SequenceId

	// A single order id can appear in multiple Order records — once when
	// it first rests, again for every fill or cancellation that later
	// touches it (§4.H persists an updated snapshot for every maker a
	// match mutates, §4.E for cancellations). uncommitted is chronological,
	// so the last record seen per id is its true final state; order is
	// preserved in seen so the book is rebuilt in the same sequence the
	// orders were originally placed, not in map-iteration order.
	latest := make(map[scale.OrderId]*orders.Order, len(uncommitted))
	var seen []scale.OrderId

	for _, rec := range uncommitted {
		o, derr := wal.DecodeOrderPayload(rec.Payload)
		if derr != nil {
			return Result{}, truncatedAt, fmt.Errorf("recovery: decode order payload: %w", derr)
		}
		if _, ok := latest[o.ID]; !ok {
			seen = append(seen, o.ID)
		}
		latest[o.ID] = o
		if o.SequenceID > lastSeq {
			lastSeq = o.SequenceID
		}
	}

	for _, id := range seen {
		applyReplayedOrder(ob, idx, latest[id])
	}

	expected := lastRecordSequence(recs)
	if expected != 0 && lastSeq != expected {
		return Result{Book: ob, Index: idx, LastSequence: lastSeq, RecordsPlayed: len(uncommitted)},
			truncatedAt, ErrRecoveryMismatch
	}

	return Result{Book: ob, Index: idx, LastSequence: lastSeq, RecordsPlayed: len(uncommitted)}, truncatedAt, nil
}

// applyReplayedOrder re-inserts an order snapshot's book-resident
// residue. A snapshot is only ever written after matching has already
// run, so replay does not re-run the kernel: it simply restores whatever
// quantity was left resting (if the order was active when the snapshot
// was taken) rather than reproducing trades a second time.
func applyReplayedOrder(ob *book.OrderBook, idx *matching.Index, o *orders.Order) {
	if !o.IsActive() || o.RemainingQuantity() == 0 {
		return
	}
	fresh := &orders.Order{
		ID: o.ID, UserID: o.UserID, InstrumentID: o.InstrumentID,
		SequenceID: o.SequenceID, Price: o.Price,
		OriginalQuantity: o.RemainingQuantity(), FilledQuantity: 0,
		Timestamp: o.Timestamp, Side: o.Side, Type: o.Type, Status: o.Status,
	}
	ob.Insert(fresh)
	idx.Add(fresh)
}

// lastRecordSequence returns the sequence_id of the last Order or Trade
// record in recs, 0 if there are none.
func lastRecordSequence(recs []wal.Record) scale.SequenceId {
	for i := len(recs) - 1; i >= 0; i-- {
		switch recs[i].Type {
		case wal.RecordOrder:
			if o, err := wal.DecodeOrderPayload(recs[i].Payload); err == nil {
				return o.SequenceID
			}
		case wal.RecordTrade:
			if tr, err := wal.DecodeTradePayload(recs[i].Payload); err == nil {
				return tr.SequenceID
			}
		}
	}
	return 0
}
