package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()
	m.RecordOrderProcessed(0, time.Microsecond)
	m.RecordOrderProcessed(0, time.Millisecond)
	m.RecordTradesExecuted(3)
	m.RecordWalBytesWritten(128)
	m.RecordFsync(5 * time.Millisecond)

	snap := m.Snapshot()
	require.EqualValues(t, 2, snap.OrdersProcessed)
	require.EqualValues(t, 3, snap.TradesExecuted)
	require.EqualValues(t, 128, snap.WalBytesWritten)
	require.EqualValues(t, 1, snap.FsyncCount)
	require.EqualValues(t, 2, snap.ProcessOrderLatency.Count)
}

func TestHistogramMergesAcrossShards(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for shardKey := 0; shardKey < 8; shardKey++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.RecordOrderProcessed(k, time.Microsecond)
			}
		}(shardKey)
	}
	wg.Wait()

	snap := m.Snapshot()
	require.EqualValues(t, 800, snap.ProcessOrderLatency.Count)
}

func TestZeroTradesDoesNotIncrementCounter(t *testing.T) {
	m := New()
	m.RecordTradesExecuted(0)
	require.Zero(t, m.Snapshot().TradesExecuted)
}
