package book

import (
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// OrderBookSide is the ordered price index for one side of one instrument's
// book, per §4.D: a mapping from Price to PriceLevel, traversable
// best-first, backed by a red-black tree for O(log n) insert/erase and O(1)
// best-price lookup.
type OrderBookSide struct {
	tree *rbTree
}

func newOrderBookSide(descending bool) *OrderBookSide {
	return &OrderBookSide{tree: newRBTree(descending)}
}

// BestPrice returns the best resting price on this side, or false if empty.
func (s *OrderBookSide) BestPrice() (scale.Price, bool) {
	level := s.tree.Min()
	if level == nil {
		return 0, false
	}
	return level.Price, true
}

// BestLevel returns the best resting price level, or nil if empty.
func (s *OrderBookSide) BestLevel() *PriceLevel {
	return s.tree.Min()
}

// IsEmpty reports whether the side has no resting orders.
func (s *OrderBookSide) IsEmpty() bool {
	return s.tree.Size() == 0
}

// InsertIfAbsent returns the PriceLevel at price, creating it if necessary.
func (s *OrderBookSide) InsertIfAbsent(price scale.Price) *PriceLevel {
	return s.tree.InsertIfAbsent(price)
}

// Erase removes the price level at price, if present.
func (s *OrderBookSide) Erase(price scale.Price) {
	s.tree.Erase(price)
}

// LevelCount returns the number of distinct price levels on this side.
func (s *OrderBookSide) LevelCount() int {
	return s.tree.Size()
}

// IterBestToWorst iterates price levels from best to worst, stopping early
// if fn returns false. Used by snapshot/depth queries and the matching
// kernel's pre-mutation dry-run passes (FOK and MAX_ITERS checks); never
// called once a match has started mutating state.
func (s *OrderBookSide) IterBestToWorst(fn func(*PriceLevel) bool) {
	s.tree.ForEach(fn)
}

// OrderBook is the pair (bids, asks) for one instrument, per §3's OrderBook
// data model. It owns only book state; the process-wide order-id index
// (§4.F) lives in internal/matching so it can be shared across insert/match/
// cancel without this package depending on matching.
type OrderBook struct {
	InstrumentID scale.InstrumentId
	Bids         *OrderBookSide // descending: highest price first
	Asks         *OrderBookSide // ascending: lowest price first
}

// New creates an empty order book for an instrument.
func New(instrumentID scale.InstrumentId) *OrderBook {
	return &OrderBook{
		InstrumentID: instrumentID,
		Bids:         newOrderBookSide(true),
		Asks:         newOrderBookSide(false),
	}
}

// Side returns the OrderBookSide an order with the given side rests on.
func (ob *OrderBook) Side(side orders.Side) *OrderBookSide {
	if side == orders.SideBuy {
		return ob.Bids
	}
	return ob.Asks
}

// Opposite returns the OrderBookSide an order with the given side matches
// against.
func (ob *OrderBook) Opposite(side orders.Side) *OrderBookSide {
	return ob.Side(side.Opposite())
}

// Insert adds o to its side's price level, creating the level if absent,
// and sets its residency handle. Time complexity: O(log p).
func (ob *OrderBook) Insert(o *orders.Order) {
	level := ob.Side(o.Side).InsertIfAbsent(o.Price)
	level.PushBack(o)
}

// Remove detaches o from its price level via its residency handle,
// erasing the level from the index if it becomes empty. Time complexity:
// O(1), or O(log p) if the level empties.
func (ob *OrderBook) Remove(o *orders.Order) {
	node, ok := o.Residency().(*orderNode)
	if !ok || node == nil {
		return
	}
	level := node.level
	side := ob.Side(o.Side)
	level.remove(node)
	if level.IsEmpty() {
		side.Erase(level.Price)
	}
}

// ApplyFill reduces o's resident price level TotalQuantity by delta,
// without removing o from the book. Called for partially-filled makers.
func (ob *OrderBook) ApplyFill(o *orders.Order, delta scale.Quantity) {
	node, ok := o.Residency().(*orderNode)
	if !ok || node == nil {
		return
	}
	node.level.applyFill(delta)
}

// BestBid returns the best resting bid price, if any.
func (ob *OrderBook) BestBid() (scale.Price, bool) {
	return ob.Bids.BestPrice()
}

// BestAsk returns the best resting ask price, if any.
func (ob *OrderBook) BestAsk() (scale.Price, bool) {
	return ob.Asks.BestPrice()
}

// DepthLevel is a non-mutating snapshot of one price level, used by
// snapshot_depth (§6) and status/HTTP reporting.
type DepthLevel struct {
	Price         scale.Price
	TotalQuantity scale.Quantity
	OrderCount    int
}

// SnapshotDepth returns up to n best-to-worst levels on each side. n <= 0
// means all levels. Non-mutating; never used by the matching hot path.
func (ob *OrderBook) SnapshotDepth(n int) (bids []DepthLevel, asks []DepthLevel) {
	bids = collectDepth(ob.Bids, n)
	asks = collectDepth(ob.Asks, n)
	return
}

func collectDepth(side *OrderBookSide, n int) []DepthLevel {
	result := make([]DepthLevel, 0)
	count := 0
	side.IterBestToWorst(func(level *PriceLevel) bool {
		result = append(result, DepthLevel{
			Price:         level.Price,
			TotalQuantity: level.TotalQuantity,
			OrderCount:    level.Count(),
		})
		count++
		if n > 0 && count >= n {
			return false
		}
		return true
	})
	return result
}
