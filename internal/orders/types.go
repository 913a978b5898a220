// Package orders defines the order, fill, trade, and execution-result value
// types shared by the book and matching layers. Orders are plain heap
// values; there is no pooled allocator.
//
// Adapted from the teacher's internal/orders/types.go: the same field
// layout and doc-comment density, generalized from cents-scaled
// int64/string identifiers to the tick-scaled scale.Price/scale.Quantity
// and numeric scale.OrderId/scale.UserId/scale.InstrumentId types a
// multi-instrument perpetual-futures core requires.
package orders

import "github.com/rishav/perpetual-matching-core/internal/scale"

// Side represents the side of an order (buy or sell).
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type represents the type of order and its execution semantics.
type Type int

const (
	// TypeLimit rests in the book until filled or cancelled. Only executes
	// at the specified price or better.
	TypeLimit Type = iota

	// TypeMarket executes immediately at the best available price. No price
	// protection — will fill at whatever price is available.
	TypeMarket

	// TypeIOC (Immediate-or-Cancel) executes immediately for whatever
	// quantity is available, then cancels any remaining quantity.
	TypeIOC

	// TypeFOK (Fill-or-Kill) must be filled entirely or not at all. If the
	// full quantity cannot be matched immediately, the entire order is
	// cancelled. No partial fills allowed.
	TypeFOK
)

func (t Type) String() string {
	switch t {
	case TypeLimit:
		return "LIMIT"
	case TypeMarket:
		return "MARKET"
	case TypeIOC:
		return "IOC"
	case TypeFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// Status represents the current state of an order.
type Status int

const (
	// StatusPending - order has been accepted but not yet filled at all.
	StatusPending Status = iota

	// StatusPartialFilled - order has been partially executed and still
	// has remaining quantity resting in the book.
	StatusPartialFilled

	// StatusFilled - order has been completely filled.
	StatusFilled

	// StatusCancelled - order was cancelled, by user request or because an
	// IOC/FOK/Market order could not (fully) fill.
	StatusCancelled

	// StatusRejected - order failed validation, or would exceed the
	// matching kernel's iteration bound, before ever reaching the book.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusPartialFilled:
		return "PARTIAL_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order represents a single order in the matching engine.
//
// Memory Layout Considerations:
// - Fields are ordered to minimize padding (largest/most-accessed first).
// - No pointers except Residency (nil unless book-resident), keeping GC
//   pressure low per §4.C.
type Order struct {
	// ID is the unique identifier for this order, assigned by the exchange.
	ID scale.OrderId

	// UserID identifies the account that placed this order.
	UserID scale.UserId

	// InstrumentID identifies which book this order belongs to.
	InstrumentID scale.InstrumentId

	// SequenceID is the global sequence number assigned when the order
	// enters the matching engine. Used for deterministic replay.
	SequenceID scale.SequenceId

	// Price in ticks (fixed-point, see scale.PriceScale). For market
	// orders, this field is ignored.
	Price scale.Price

	// OriginalQuantity is the total quantity requested.
	OriginalQuantity scale.Quantity

	// FilledQuantity is the quantity that has been executed.
	// Invariant: FilledQuantity + RemainingQuantity() == OriginalQuantity.
	FilledQuantity scale.Quantity

	// Timestamp is the time the order was accepted, in nanoseconds since
	// epoch.
	Timestamp scale.Timestamp

	// Side indicates whether this is a buy or sell order.
	Side Side

	// Type indicates the order type (Limit, Market, IOC, FOK).
	Type Type

	// Status is the current state of the order.
	Status Status

	// residency is a non-nil opaque handle into the price level the order
	// currently rests in. Only internal/book may set or clear it; it is
	// nil iff the order is not book-resident.
	residency any
}

// RemainingQuantity returns the unfilled quantity of the order.
func (o *Order) RemainingQuantity() scale.Quantity {
	return o.OriginalQuantity - o.FilledQuantity
}

// IsFilled returns true if the order has been completely filled.
func (o *Order) IsFilled() bool {
	return o.FilledQuantity >= o.OriginalQuantity
}

// IsActive returns true if the order can still be matched or cancelled.
func (o *Order) IsActive() bool {
	return o.Status == StatusPending || o.Status == StatusPartialFilled
}

// Residency returns the order's current book-residency handle, or nil if
// the order is not resident in any price level.
func (o *Order) Residency() any {
	return o.residency
}

// SetResidency is called only by internal/book when inserting into or
// removing from a price level.
func (o *Order) SetResidency(h any) {
	o.residency = h
}

// Fill represents a single execution (trade) between two orders, from the
// matching kernel's perspective before being reshaped into a Trade record.
type Fill struct {
	// TradeID is the unique identifier for this execution; equals the
	// trade's SequenceID.
	TradeID scale.SequenceId

	MakerOrderID scale.OrderId
	TakerOrderID scale.OrderId

	// Price is always the maker's resting price (price improvement for the
	// taker), per §4.E.
	Price scale.Price

	Quantity     scale.Quantity
	Timestamp    scale.Timestamp
	InstrumentID scale.InstrumentId

	MakerUserID scale.UserId
	TakerUserID scale.UserId

	// TakerSide indicates whether the taker was buying or selling.
	TakerSide Side
}

// Trade represents a completed trade from a reporting perspective,
// combining information from both sides of the execution.
type Trade struct {
	SequenceID   scale.SequenceId
	InstrumentID scale.InstrumentId
	BuyOrderID   scale.OrderId
	SellOrderID  scale.OrderId
	BuyUserID    scale.UserId
	SellUserID   scale.UserId
	Price        scale.Price
	Quantity     scale.Quantity
	Timestamp    scale.Timestamp
	IsTakerBuy   bool
}

// FromFill builds the reporting Trade record for a Fill.
func FromFill(f Fill) Trade {
	buyOrderID, sellOrderID := f.TakerOrderID, f.MakerOrderID
	buyUserID, sellUserID := f.TakerUserID, f.MakerUserID
	if f.TakerSide != SideBuy {
		buyOrderID, sellOrderID = f.MakerOrderID, f.TakerOrderID
		buyUserID, sellUserID = f.MakerUserID, f.TakerUserID
	}
	return Trade{
		SequenceID:   f.TradeID,
		InstrumentID: f.InstrumentID,
		BuyOrderID:   buyOrderID,
		SellOrderID:  sellOrderID,
		BuyUserID:    buyUserID,
		SellUserID:   sellUserID,
		Price:        f.Price,
		Quantity:     f.Quantity,
		Timestamp:    f.Timestamp,
		IsTakerBuy:   f.TakerSide == SideBuy,
	}
}

// ExecutionResult contains the outcome of processing an order.
type ExecutionResult struct {
	// Order is the processed order with updated status and filled quantity.
	Order *Order

	// Fills contains all executions that occurred.
	Fills []Fill

	// Accepted indicates if the order was accepted into the system.
	Accepted bool

	// RejectReason explains why the order was rejected (if applicable).
	RejectReason string

	// RestingQuantity is the quantity that was added to the order book (for
	// limit orders that didn't fully match).
	RestingQuantity scale.Quantity
}
