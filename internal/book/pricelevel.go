// Package book implements the ordered price index: per-side, per-instrument
// containers mapping price to a FIFO queue of resident orders.
//
// Adapted from the teacher's internal/orderbook/{pricelevel,rbtree,orderbook}.go,
// generalized from a single-symbol string-keyed book to the
// scale.InstrumentId-scoped, scale.Price/scale.Quantity-typed OrderBook §4.D
// calls for.
package book

import (
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// orderNode is a node in the doubly-linked list of orders at a price level.
// A doubly-linked list gives O(1) removal from anywhere in the queue, which
// is what makes order-id-indexed cancellation O(1).
type orderNode struct {
	order *orders.Order
	prev  *orderNode
	next  *orderNode
	level *PriceLevel
}

// Next returns the next node in the queue, or nil at the tail.
func (n *orderNode) Next() *orderNode {
	return n.next
}

// PriceLevel holds all orders resident at a single price point, per §4.D.
type PriceLevel struct {
	Price scale.Price
	head  *orderNode
	tail  *orderNode
	count int

	// TotalQuantity is the sum of RemainingQuantity() across all resident
	// orders, maintained incrementally so depth queries never walk the
	// list.
	TotalQuantity scale.Quantity
}

func newPriceLevel(price scale.Price) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Count returns the number of orders resident at this level.
func (pl *PriceLevel) Count() int {
	return pl.count
}

// IsEmpty returns true if there are no orders at this level.
func (pl *PriceLevel) IsEmpty() bool {
	return pl.count == 0
}

// Front returns the first (highest-priority) order, or nil if empty.
func (pl *PriceLevel) Front() *orders.Order {
	if pl.head == nil {
		return nil
	}
	return pl.head.order
}

// PushBack appends an order to the tail of the queue (lowest priority at
// this price) and sets its residency handle. Time complexity: O(1).
func (pl *PriceLevel) PushBack(o *orders.Order) {
	node := &orderNode{order: o, level: pl}
	if pl.tail == nil {
		pl.head = node
		pl.tail = node
	} else {
		node.prev = pl.tail
		pl.tail.next = node
		pl.tail = node
	}
	pl.count++
	pl.TotalQuantity += o.RemainingQuantity()
	o.SetResidency(node)
}

// remove detaches node from the queue. Time complexity: O(1).
func (pl *PriceLevel) remove(node *orderNode) {
	if node == nil {
		return
	}
	pl.TotalQuantity -= node.order.RemainingQuantity()
	pl.count--

	if node.prev != nil {
		node.prev.next = node.next
	} else {
		pl.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		pl.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	node.level = nil
	node.order.SetResidency(nil)
}

// PopFront removes and returns the first (highest-priority) order. Returns
// nil if the level is empty. Time complexity: O(1).
func (pl *PriceLevel) PopFront() *orders.Order {
	if pl.head == nil {
		return nil
	}
	node := pl.head
	order := node.order
	pl.remove(node)
	return order
}

// applyFill reduces TotalQuantity by delta without moving the order,
// called when a resident order receives a partial fill in place.
func (pl *PriceLevel) applyFill(delta scale.Quantity) {
	pl.TotalQuantity -= delta
}

// Orders returns a slice of all orders at this level, in FIFO order. This
// allocates; it is intended for snapshot/depth queries and the matching
// kernel's pre-mutation dry-run passes, never the post-pre-check fill
// loop itself.
func (pl *PriceLevel) Orders() []*orders.Order {
	result := make([]*orders.Order, 0, pl.count)
	for n := pl.head; n != nil; n = n.next {
		result = append(result, n.order)
	}
	return result
}
