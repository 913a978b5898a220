package engine

import "github.com/rishav/perpetual-matching-core/internal/scale"

// DurabilityMode selects how aggressively an Engine fsyncs the WAL before
// acknowledging an order, per §4.H.
type DurabilityMode int

const (
	// ModeAsyncBatched is the default, high-throughput mode: ProcessOrder
	// publishes to the WAL ring buffer and returns without waiting for the
	// WAL writer or fsync worker.
	ModeAsyncBatched DurabilityMode = iota

	// ModeSyncCritical writes and fsyncs synchronously, under the WAL
	// mutex, for orders crossing the critical quantity/price thresholds or
	// that produced a trade; all other orders still take the async path.
	ModeSyncCritical

	// ModeZeroLoss synchronously writes and fsyncs every order, trading
	// throughput for zero acknowledged-but-unpersisted orders.
	ModeZeroLoss
)

func (m DurabilityMode) String() string {
	switch m {
	case ModeAsyncBatched:
		return "ASYNC_BATCHED"
	case ModeSyncCritical:
		return "SYNC_CRITICAL"
	case ModeZeroLoss:
		return "ZERO_LOSS"
	default:
		return "UNKNOWN"
	}
}

// DurabilityReceipt is returned alongside every processed order, per §6's
// sharded-front-end submit() contract and §5's "durability_confirmed"
// field.
type DurabilityReceipt struct {
	SequenceID          scale.SequenceId
	DurabilityConfirmed bool
}

// CriticalThresholds configures the sync-critical escalation predicate of
// §4.H: an order synchronously persisted if its quantity or price meets
// or exceeds either threshold, or if it produced any trade.
type CriticalThresholds struct {
	Quantity scale.Quantity
	Price    scale.Price
}

// isCritical reports whether an order/fill-count pair must take the
// synchronous WAL path under ModeSyncCritical.
func (t CriticalThresholds) isCritical(qty scale.Quantity, price scale.Price, fillCount int) bool {
	return qty >= t.Quantity || price >= t.Price || fillCount > 0
}
