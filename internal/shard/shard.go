// Package shard implements the Trading Shard of §4.I: the narrow
// pre_check/post_trade hook pair invoked around the matching call,
// partitioned per user_id as a single-writer shard.
//
// Adapted from the teacher's internal/risk/checker.go: kept per-account
// position bookkeeping (alongside reserved balance) and a mutex-guarded
// per-user map, narrowed to exactly the two-operation
// PreCheck/PostTrade contract §4.I specifies (dropped: price-band,
// order-value, and order-size checks, which belonged to the teacher's
// broader pre-trade risk surface but have no §4.I hook to live in; see
// DESIGN.md). The settlement-ledger bookkeeping the teacher split into
// internal/settlement/clearing.go was folded back in here, since §4.I
// explicitly owns "realized PnL, position size, reserved balance".
package shard

import (
	"sync"

	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// Config bounds the position and balance limits a TradingShard enforces.
type Config struct {
	MaxPositionSize    scale.Quantity
	MaxReservedBalance scale.Price
}

// DefaultConfig returns permissive limits suitable for a benchmark or
// test configuration, matching §4.I's "may be a no-op in benchmark
// configurations" allowance.
func DefaultConfig() Config {
	return Config{
		MaxPositionSize:    1_000_000_000,
		MaxReservedBalance: 1_000_000_000_000,
	}
}

// userState is the per-user_id partition of shard state. Never touched
// by more than one goroutine at a time when routed correctly (§4.J), the
// mutex exists only to protect against a misrouted call, not as a hot-path
// synchronization primitive.
type userState struct {
	position        scale.Quantity // net position, signed: positive = long
	reservedBalance scale.Price    // margin currently held against open orders
	realizedPnL     scale.Price
}

// TradingShard implements the pre_check/post_trade hooks of §4.I. One
// TradingShard instance owns every user whose trading_shard_id (§4.J)
// routes to it.
type TradingShard struct {
	cfg   Config
	mu    sync.Mutex
	users map[scale.UserId]*userState
}

// New creates an empty TradingShard.
func New(cfg Config) *TradingShard {
	return &TradingShard{cfg: cfg, users: make(map[scale.UserId]*userState)}
}

// PreCheck reserves margin and enforces the position limit for order,
// returning false if the order should be rejected before ever reaching
// the matching engine. Side-effect-free with respect to the book and
// WAL, per §4.I.
func (s *TradingShard) PreCheck(o *orders.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateFor(o.UserID)

	projected := st.position
	if o.Side == orders.SideBuy {
		projected += o.OriginalQuantity
	} else {
		projected -= o.OriginalQuantity
	}
	if abs(projected) > s.cfg.MaxPositionSize {
		return false
	}

	notional := scale.Price(int64(o.Price) * int64(o.OriginalQuantity) / scale.PriceScale)
	if st.reservedBalance+notional > s.cfg.MaxReservedBalance {
		return false
	}

	st.reservedBalance += notional
	return true
}

// PostTrade updates the user's position and releases the margin reserved
// by PreCheck, once o and its trades have cleared the matching engine.
// realizedPnL is not computed: PostTrade never changes it. Side-effect-free
// with respect to the book and WAL, per §4.I.
func (s *TradingShard) PostTrade(o *orders.Order, trades []orders.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateFor(o.UserID)

	for _, tr := range trades {
		var side orders.Side
		switch o.UserID {
		case tr.BuyUserID:
			side = orders.SideBuy
		case tr.SellUserID:
			side = orders.SideSell
		default:
			continue
		}
		if side == orders.SideBuy {
			st.position += tr.Quantity
		} else {
			st.position -= tr.Quantity
		}
		notional := scale.Price(int64(tr.Price) * int64(tr.Quantity) / scale.PriceScale)
		st.reservedBalance -= notional
		if st.reservedBalance < 0 {
			st.reservedBalance = 0
		}
	}

	if o.Status == orders.StatusCancelled || o.Status == orders.StatusRejected {
		released := scale.Price(int64(o.Price) * int64(o.RemainingQuantity()) / scale.PriceScale)
		st.reservedBalance -= released
		if st.reservedBalance < 0 {
			st.reservedBalance = 0
		}
	}
}

// Position returns the current net position for a user.
func (s *TradingShard) Position(userID scale.UserId) scale.Quantity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateFor(userID).position
}

func (s *TradingShard) stateFor(userID scale.UserId) *userState {
	st, ok := s.users[userID]
	if !ok {
		st = &userState{}
		s.users[userID] = st
	}
	return st
}

func abs(q scale.Quantity) scale.Quantity {
	if q < 0 {
		return -q
	}
	return q
}
