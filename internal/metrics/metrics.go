// Package metrics implements the lock-free counters and per-goroutine
// latency histograms of §4.L: atomic counters for orders processed,
// trades executed, WAL bytes written, fsync count, and total fsync time,
// plus a process_order latency histogram merged on read. Exposition is
// pull-based; nothing here ever blocks the hot path.
//
// §1's Non-goals explicitly exclude "Prometheus exposition"; grounded on
// the atomic-counter style already used throughout the teacher's
// matching.Engine (plain atomic.AddUint64 counters), generalized to a
// dedicated package with a Snapshot() pull API instead of scattering
// counters across engine fields.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucketBoundsNs are the upper bounds (inclusive) of each latency
// histogram bucket, in nanoseconds. The last bucket is implicitly +Inf.
var bucketBoundsNs = []int64{
	1_000,       // 1us
	10_000,      // 10us
	100_000,     // 100us
	1_000_000,   // 1ms
	10_000_000,  // 10ms
	100_000_000, // 100ms
}

// histogram is a fixed-bucket latency histogram updated without locks by
// giving each goroutine its own counters (keyed by a caller-supplied
// shard key in a sync.Map, so distinct shards never contend) and merging
// on Snapshot.
type histogram struct {
	shards sync.Map // int -> *histogramShard
}

type histogramShard struct {
	counts [7]atomic.Uint64 // len(bucketBoundsNs) + 1
	sum    atomic.Int64
	count  atomic.Uint64
}

func newHistogram() *histogram {
	return &histogram{}
}

// shardFor returns (creating if absent) the histogram shard for the
// given shard key — callers pass a cheap per-goroutine identifier (e.g.
// a counter captured at goroutine start) so concurrent Observe calls
// never contend on the same cache line.
func (h *histogram) shardFor(shardKey int) *histogramShard {
	if v, ok := h.shards.Load(shardKey); ok {
		return v.(*histogramShard)
	}
	v, _ := h.shards.LoadOrStore(shardKey, &histogramShard{})
	return v.(*histogramShard)
}

func (h *histogram) observe(shardKey int, d time.Duration) {
	s := h.shardFor(shardKey)
	ns := d.Nanoseconds()
	bucket := len(bucketBoundsNs)
	for i, bound := range bucketBoundsNs {
		if ns <= bound {
			bucket = i
			break
		}
	}
	s.counts[bucket].Add(1)
	s.sum.Add(ns)
	s.count.Add(1)
}

// HistogramSnapshot is the merged, read-only view of a histogram.
type HistogramSnapshot struct {
	BucketBoundsNs []int64
	BucketCounts   []uint64
	Count          uint64
	SumNs          int64
}

func (h *histogram) snapshot() HistogramSnapshot {
	snap := HistogramSnapshot{
		BucketBoundsNs: bucketBoundsNs,
		BucketCounts:   make([]uint64, len(bucketBoundsNs)+1),
	}
	h.shards.Range(func(_, v any) bool {
		s := v.(*histogramShard)
		for i := range s.counts {
			snap.BucketCounts[i] += s.counts[i].Load()
		}
		snap.Count += s.count.Load()
		snap.SumNs += s.sum.Load()
		return true
	})
	return snap
}

// Metrics holds one matching shard's counters and latency histogram, per
// §4.L.
type Metrics struct {
	ordersProcessed atomic.Uint64
	tradesExecuted  atomic.Uint64
	walBytesWritten atomic.Uint64
	fsyncCount      atomic.Uint64
	fsyncTotalNs    atomic.Int64

	processOrderLatency *histogram
}

// New creates an empty Metrics collector.
func New() *Metrics {
	return &Metrics{processOrderLatency: newHistogram()}
}

// RecordOrderProcessed increments the orders-processed counter and
// records process_order's latency against shardKey's histogram shard
// (callers pass a stable per-goroutine key, e.g. their matching shard
// index, so updates from different shards never contend).
func (m *Metrics) RecordOrderProcessed(shardKey int, latency time.Duration) {
	m.ordersProcessed.Add(1)
	m.processOrderLatency.observe(shardKey, latency)
}

// RecordTradesExecuted adds n to the trades-executed counter.
func (m *Metrics) RecordTradesExecuted(n int) {
	if n > 0 {
		m.tradesExecuted.Add(uint64(n))
	}
}

// RecordWalBytesWritten adds n to the WAL-bytes-written counter.
func (m *Metrics) RecordWalBytesWritten(n int) {
	if n > 0 {
		m.walBytesWritten.Add(uint64(n))
	}
}

// RecordFsync increments the fsync counter and adds d to the
// total-fsync-time counter.
func (m *Metrics) RecordFsync(d time.Duration) {
	m.fsyncCount.Add(1)
	m.fsyncTotalNs.Add(d.Nanoseconds())
}

// Snapshot is a point-in-time, pull-based read of every counter plus the
// merged latency histogram. Reading never blocks or is blocked by the
// hot path, per §4.L.
type Snapshot struct {
	OrdersProcessed     uint64
	TradesExecuted      uint64
	WalBytesWritten     uint64
	FsyncCount          uint64
	FsyncTotalNs        int64
	ProcessOrderLatency HistogramSnapshot
}

// Snapshot reads every counter and merges the latency histogram across
// all goroutine shards.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		OrdersProcessed:     m.ordersProcessed.Load(),
		TradesExecuted:      m.tradesExecuted.Load(),
		WalBytesWritten:     m.walBytesWritten.Load(),
		FsyncCount:          m.fsyncCount.Load(),
		FsyncTotalNs:        m.fsyncTotalNs.Load(),
		ProcessOrderLatency: m.processOrderLatency.snapshot(),
	}
}
