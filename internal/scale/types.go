// Package scale defines the fixed-width scalar types shared by every layer
// of the matching core and the conversion helpers that move values between
// their on-the-wire decimal form and their fixed-point integer form.
//
// Key Design Decisions:
//
// 1. Fixed-Point Arithmetic: Price and Quantity are stored as int64 "ticks"
//    scaled by PriceScale/QuantityScale, never as float64. A price of
//    $50,000.00 at PriceScale=1e9 is stored as 50_000_000_000_000. This is
//    the same rationale the teacher's cents-scaled Order.Price used, carried
//    to the finer tick resolution a perpetual-futures instrument needs.
//
// 2. Sequence Numbers: every accepted order and every trade receives a
//    strictly monotonic SequenceId, assigned by a single matching engine.
//
// 3. Time Representation: Timestamp is nanoseconds since Unix epoch (int64).
package scale

// OrderId identifies an order, assigned by the matching engine.
type OrderId uint64

// UserId identifies the owning account of an order.
type UserId uint64

// InstrumentId identifies the traded instrument a book belongs to.
type InstrumentId uint32

// Price is a fixed-point tick count. One unit is 1/PriceScale of the quoted
// currency.
type Price int64

// Quantity is a fixed-point base-unit count. One unit is 1/QuantityScale of
// the traded asset.
type Quantity int64

// Timestamp is nanoseconds since the Unix epoch.
type Timestamp int64

// SequenceId is a strictly monotonic per-engine counter shared by orders and
// trades, used for ordering, replay, and gap detection.
type SequenceId uint64

const (
	// PriceScale is the number of Price ticks per quoted unit.
	PriceScale = 1_000_000_000

	// QuantityScale is the number of Quantity units per base unit.
	QuantityScale = 1_000_000
)
