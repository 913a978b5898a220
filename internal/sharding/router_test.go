package sharding

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rishav/perpetual-matching-core/internal/engine"
	"github.com/rishav/perpetual-matching-core/internal/matching"
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/rishav/perpetual-matching-core/internal/shard"
	"github.com/stretchr/testify/require"
)

func TestShardIDRoutingIsModulo(t *testing.T) {
	require.EqualValues(t, 3, TradingShardID(3, 4))
	require.EqualValues(t, 1, TradingShardID(5, 4))
	require.EqualValues(t, 0, MatchingShardID(4, 4))
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	dir := t.TempDir()
	e, err := engine.New(engine.Config{
		InstrumentID:   1,
		WalPath:        filepath.Join(dir, "wal.log"),
		DurabilityMode: engine.ModeAsyncBatched,
		STPPolicy:      matching.STPAllow,
		SyncInterval:   5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(time.Second) })

	return New([]*shard.TradingShard{shard.New(shard.DefaultConfig())}, []*engine.Engine{e})
}

func TestSubmitRoutesThroughPreCheckAndPostTrade(t *testing.T) {
	r := newTestRouter(t)

	sell := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideSell,
		Type: orders.TypeLimit, Price: scale.PriceScale, OriginalQuantity: 10}
	res, _, err := r.Submit(sell, false)
	require.NoError(t, err)
	require.True(t, res.Accepted)

	buy := &orders.Order{ID: 2, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: scale.PriceScale, OriginalQuantity: 10}
	res, _, err = r.Submit(buy, false)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
}

func TestSubmitRejectsWhenPreCheckFails(t *testing.T) {
	r := newTestRouter(t)
	r.tradingShards[0] = shard.New(shard.Config{MaxPositionSize: 1, MaxReservedBalance: 1_000_000_000_000})

	o := &orders.Order{ID: 1, UserID: 1, InstrumentID: 1, Side: orders.SideBuy,
		Type: orders.TypeLimit, Price: scale.PriceScale, OriginalQuantity: 1000}
	_, _, err := r.Submit(o, false)
	require.ErrorIs(t, err, ErrPreCheckFailed)
}
