package matching

import (
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// Index is the process-wide Order-ID Index from §4.F: a map from OrderId to
// the resident order, used by cancel and recovery for O(1) lookup.
// Invariant: membership in the index iff the order is resident on the book.
//
// Adapted out of the teacher's orderbook.OrderBook.orders map (which lived
// inside the book type) into its own component, matching the spec's
// separation of D (price index) from F (order-id index) — the engine (H)
// keeps both in sync on every insert/remove.
//
// Not synchronized: per §5, the book and this index are mutated only by
// the single matching thread for their shard, so no lock belongs on this
// hot path. Callers from other goroutines must go through the engine's
// ring buffer, not this type directly.
type Index struct {
	orders map[scale.OrderId]*orders.Order
}

// NewIndex creates an empty order-id index.
func NewIndex() *Index {
	return &Index{orders: make(map[scale.OrderId]*orders.Order)}
}

// Add registers o under its ID. Called exactly when o is inserted into the
// book.
func (idx *Index) Add(o *orders.Order) {
	idx.orders[o.ID] = o
}

// Remove unregisters id. Called exactly when the corresponding order is
// removed from the book (filled or cancelled).
func (idx *Index) Remove(id scale.OrderId) {
	delete(idx.orders, id)
}

// Get returns the resident order for id, or nil if it is not book-resident.
func (idx *Index) Get(id scale.OrderId) *orders.Order {
	return idx.orders[id]
}

// Len returns the number of resident orders tracked.
func (idx *Index) Len() int {
	return len(idx.orders)
}
