// Package sharding implements the Sharded Front End of §4.J: pure
// modulo routing from user_id/instrument_id to trading/matching shard
// indices, plus the Submit entry point that stitches routing, the
// Trading Shard's pre_check/post_trade hooks, and a matching Engine's
// ProcessOrder into the single order-flow §4.J specifies.
//
// No teacher equivalent exists (the teacher is a single-instrument,
// single-process engine with no sharding concept); the routing functions
// are grounded directly on §4.J's modulo description, written in the
// style of the teacher's other small pure-function files (e.g.
// orders.Side.Opposite).
package sharding

import (
	"fmt"

	"github.com/rishav/perpetual-matching-core/internal/engine"
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/rishav/perpetual-matching-core/internal/shard"
)

// TradingShardID returns which trading shard owns userID, per
// §4.J: trading_shard_id(user_id) = user_id mod N_trading.
func TradingShardID(userID scale.UserId, numTradingShards uint32) uint32 {
	return uint32(userID) % numTradingShards
}

// MatchingShardID returns which matching shard owns instrumentID, per
// §4.J: matching_shard_id(instrument_id) = instrument_id mod N_matching.
func MatchingShardID(instrumentID scale.InstrumentId, numMatchingShards uint32) uint32 {
	return uint32(instrumentID) % numMatchingShards
}

// Router owns every trading shard and matching shard in the process and
// implements Submit, the single order-flow §4.J describes: route →
// trading_shard.pre_check → matching_shard.process_order →
// trading_shard.post_trade.
type Router struct {
	numTradingShards  uint32
	numMatchingShards uint32
	tradingShards     []*shard.TradingShard
	matchingShards    []*engine.Engine
}

// New creates a Router over the given trading and matching shards.
// len(tradingShards) must equal numTradingShards and len(matchingShards)
// must equal numMatchingShards; callers (cmd/server) construct these
// slices at startup once each shard's Engine/TradingShard exists.
func New(tradingShards []*shard.TradingShard, matchingShards []*engine.Engine) *Router {
	return &Router{
		numTradingShards:  uint32(len(tradingShards)),
		numMatchingShards: uint32(len(matchingShards)),
		tradingShards:     tradingShards,
		matchingShards:    matchingShards,
	}
}

// ErrPreCheckFailed is returned by Submit when the trading shard's
// pre_check hook rejects the order before it ever reaches matching.
var ErrPreCheckFailed = errPreCheckFailed{}

type errPreCheckFailed struct{}

func (errPreCheckFailed) Error() string { return "sharding: trading shard pre-check failed" }

// Submit routes order_in per §4.J and returns the resulting trades and
// durability receipt.
func (r *Router) Submit(o *orders.Order, waitForDurability bool) (orders.ExecutionResult, engine.DurabilityReceipt, error) {
	ts := r.tradingShards[TradingShardID(o.UserID, r.numTradingShards)]
	ms := r.matchingShards[MatchingShardID(o.InstrumentID, r.numMatchingShards)]

	if !ts.PreCheck(o) {
		o.Status = orders.StatusRejected
		return orders.ExecutionResult{Order: o, Accepted: false, RejectReason: "pre-check failed"}, engine.DurabilityReceipt{}, ErrPreCheckFailed
	}

	result, receipt, err := ms.ProcessOrder(o, waitForDurability)
	if err != nil {
		return result, receipt, fmt.Errorf("sharding: process order: %w", err)
	}

	trades := make([]orders.Trade, len(result.Fills))
	for i, f := range result.Fills {
		trades[i] = orders.FromFill(f)
	}
	ts.PostTrade(o, trades)

	return result, receipt, nil
}

// SubmitCancel routes a cancel request per §4.J's matching-shard half
// (cancellation does not re-run pre_check, only post_trade bookkeeping
// to release any reservation still held).
func (r *Router) SubmitCancel(userID scale.UserId, instrumentID scale.InstrumentId, orderID scale.OrderId) (*orders.Order, engine.DurabilityReceipt, error) {
	ts := r.tradingShards[TradingShardID(userID, r.numTradingShards)]
	ms := r.matchingShards[MatchingShardID(instrumentID, r.numMatchingShards)]

	o, receipt, err := ms.CancelOrder(orderID, userID)
	if err != nil {
		return nil, receipt, err
	}
	ts.PostTrade(o, nil)
	return o, receipt, nil
}
