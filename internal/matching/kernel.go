// Package matching implements the matching kernel (§4.E) and the
// process-wide order-id index (§4.F) that backs cancellation and recovery.
//
// Adapted from the teacher's internal/matching/engine.go (matchOrder /
// canFillEntirely), generalized to scale.Price/scale.Quantity, instrument-
// scoped books, and extended with the two things the teacher's version
// didn't have: a MAX_ITERS safety bound and configurable self-trade
// prevention (§4.E, §9 Design Notes).
package matching

import (
	"errors"

	"github.com/rishav/perpetual-matching-core/internal/book"
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// DefaultMaxIterations is the MAX_ITERS safety bound from §4.E.
const DefaultMaxIterations = 10000

// ErrRuntimeLimit is returned when the matching loop exceeds its iteration
// bound. Maps to the RuntimeLimit error kind (§7): the order is rejected,
// never inserted, and no WAL record is produced.
var ErrRuntimeLimit = errors.New("matching kernel exceeded max iterations")

// Clock supplies the kernel with trade timestamps. The engine (§4.H) is the
// sole implementation in production; tests substitute a fixed clock for
// determinism.
type Clock func() scale.Timestamp

// SequenceSource supplies strictly monotonic sequence ids shared by orders
// and trades, owned by the engine (§4.H).
type SequenceSource func() scale.SequenceId

// Kernel is the single-threaded matching core for one instrument's book.
// Per §5, it must only ever be driven by one goroutine; all synchronization
// across goroutines happens upstream, at the ring buffer.
type Kernel struct {
	MaxIterations int
	STPPolicy     STPPolicy
	Now           Clock
	NextSeq       SequenceSource
}

// NewKernel creates a Kernel with the given STP policy and sequencing
// hooks, using DefaultMaxIterations.
func NewKernel(stp STPPolicy, now Clock, nextSeq SequenceSource) *Kernel {
	return &Kernel{
		MaxIterations: DefaultMaxIterations,
		STPPolicy:     stp,
		Now:           now,
		NextSeq:       nextSeq,
	}
}

// Match walks the opposite side of ob against taker, producing fills and
// updating the state of every order touched, per the exact crossing/
// trade-price/trade-quantity rules and self-trade policy of §4.E.
//
// Preconditions (caller-enforced, per §4.E): taker has already been
// validated, assigned a SequenceID, and has Status == StatusPending with
// FilledQuantity == 0.
//
// Match never inserts the taker into the book and never touches idx for
// the taker; the caller (internal/engine) is responsible for book
// insertion and index registration of any remaining limit quantity.
// Makers that Match evicts from ob (fully filled, or cancelled by a
// self-trade-prevention policy) are removed from idx by Match itself.
//
// Besides fills, Match returns touchedMakers: every resting order whose
// state it mutated (partially or fully filled, or cancelled by a
// self-trade-prevention policy), each with its SequenceID bumped to the
// event that just touched it. The caller must persist an updated WAL
// record for each one alongside the taker's — a maker's original
// resting-order snapshot no longer reflects its state once another
// order has matched against it.
func (k *Kernel) Match(taker *orders.Order, ob *book.OrderBook, idx *Index) (fills []orders.Fill, touchedMakers []*orders.Order, err error) {
	if taker.Type == orders.TypeFOK && !k.canFillEntirely(taker, ob) {
		taker.Status = orders.StatusCancelled
		return nil, nil, nil
	}

	// MAX_ITERS is checked against a dry-run count before any mutation, so
	// that an order rejected for exceeding it leaves the book completely
	// untouched (§7's RuntimeLimit contract), rather than discovering the
	// bound midway through a partially-applied match.
	if k.requiredIterations(taker, ob) > k.MaxIterations {
		return nil, nil, ErrRuntimeLimit
	}

	opp := ob.Opposite(taker.Side)

	for taker.RemainingQuantity() > 0 && !opp.IsEmpty() {
		level := opp.BestLevel()
		if !k.crosses(taker, level.Price) {
			break
		}

		maker := level.Front()

		if maker.UserID == taker.UserID && k.STPPolicy != STPAllow {
			switch k.STPPolicy {
			case STPCancelTaker:
				taker.Status = orders.StatusCancelled
				return fills, touchedMakers, nil
			case STPCancelMaker:
				ob.Remove(maker)
				idx.Remove(maker.ID)
				maker.Status = orders.StatusCancelled
				maker.SequenceID = k.NextSeq()
				touchedMakers = append(touchedMakers, maker)
				continue
			case STPCancelBoth:
				ob.Remove(maker)
				idx.Remove(maker.ID)
				maker.Status = orders.StatusCancelled
				maker.SequenceID = k.NextSeq()
				touchedMakers = append(touchedMakers, maker)
				taker.Status = orders.StatusCancelled
				return fills, touchedMakers, nil
			}
		}

		qty := min(taker.RemainingQuantity(), maker.RemainingQuantity())
		price := maker.Price

		taker.FilledQuantity += qty
		maker.FilledQuantity += qty
		ob.ApplyFill(maker, qty)

		fill := orders.Fill{
			TradeID:      k.NextSeq(),
			MakerOrderID: maker.ID,
			TakerOrderID: taker.ID,
			Price:        price,
			Quantity:     qty,
			Timestamp:    k.Now(),
			InstrumentID: ob.InstrumentID,
			MakerUserID:  maker.UserID,
			TakerUserID:  taker.UserID,
			TakerSide:    taker.Side,
		}
		fills = append(fills, fill)

		if maker.RemainingQuantity() == 0 {
			maker.Status = orders.StatusFilled
			ob.Remove(maker)
			idx.Remove(maker.ID)
		} else {
			maker.Status = orders.StatusPartialFilled
		}
		maker.SequenceID = k.NextSeq()
		touchedMakers = append(touchedMakers, maker)
	}

	switch {
	case taker.RemainingQuantity() == 0:
		taker.Status = orders.StatusFilled
	case taker.Type == orders.TypeIOC || taker.Type == orders.TypeFOK || taker.Type == orders.TypeMarket:
		taker.Status = orders.StatusCancelled
	case len(fills) > 0:
		taker.Status = orders.StatusPartialFilled
	default:
		taker.Status = orders.StatusPending
	}

	return fills, touchedMakers, nil
}

// crosses reports whether a taker crosses against a resting price on the
// opposite side, per §4.E's crossing predicate. Market orders always cross.
func (k *Kernel) crosses(taker *orders.Order, makerPrice scale.Price) bool {
	if taker.Type == orders.TypeMarket {
		return true
	}
	if taker.Side == orders.SideBuy {
		return taker.Price >= makerPrice
	}
	return taker.Price <= makerPrice
}

// canFillEntirely implements FoK choice (a): a pre-check pass that sums
// available quantity at acceptable prices on the opposite side, without
// mutating any state, and aborts the whole match before any fill occurs if
// the book cannot satisfy the order in full.
func (k *Kernel) canFillEntirely(taker *orders.Order, ob *book.OrderBook) bool {
	remaining := taker.OriginalQuantity
	opp := ob.Opposite(taker.Side)

	opp.IterBestToWorst(func(level *book.PriceLevel) bool {
		if !k.crosses(taker, level.Price) {
			remaining = -1 // sentinel: price wall hit, cannot fill
			return false
		}
		if level.TotalQuantity >= remaining {
			remaining = 0
			return false
		}
		remaining -= level.TotalQuantity
		return true
	})

	return remaining == 0
}

// requiredIterations dry-runs the same crossing/STP rules Match itself
// applies, counting how many maker orders would need to be visited to
// either exhaust taker's quantity or run out of crossing makers, without
// mutating any state. It stops early (returning a count already over
// MaxIterations) rather than scanning the whole book when the bound is
// clearly exceeded.
func (k *Kernel) requiredIterations(taker *orders.Order, ob *book.OrderBook) int {
	remaining := taker.OriginalQuantity
	opp := ob.Opposite(taker.Side)
	iterations := 0

	opp.IterBestToWorst(func(level *book.PriceLevel) bool {
		if !k.crosses(taker, level.Price) {
			return false
		}
		for _, maker := range level.Orders() {
			iterations++
			if iterations > k.MaxIterations {
				return false
			}
			if maker.UserID == taker.UserID && k.STPPolicy != STPAllow {
				if k.STPPolicy == STPCancelTaker || k.STPPolicy == STPCancelBoth {
					return false
				}
				continue // STPCancelMaker: consumes an iteration, no fill
			}
			remaining -= min(remaining, maker.RemainingQuantity())
			if remaining == 0 {
				return false
			}
		}
		return remaining > 0
	})

	return iterations
}

func min(a, b scale.Quantity) scale.Quantity {
	if a < b {
		return a
	}
	return b
}
