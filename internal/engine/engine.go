// Package engine implements the per-matching-shard Engine of §4.H: the
// single-writer owner of one instrument's OrderBook, Order-ID Index, and
// Wal, fed by a dedicated matching goroutine and backed by a WAL-writer
// goroutine and an fsync-worker goroutine.
//
// Grounded on the teacher's internal/disruptor/processor.go (single
// consumer goroutine, spin-wait drain, panic recovery around request
// processing) and batcher.go (separate batching goroutine feeding the
// durable log), restructured into the exact two-background-thread shape
// §4.H and §5 mandate (WAL writer / fsync worker) with the sync-critical
// escalation path the teacher's always-async EventBatcher never had.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rishav/perpetual-matching-core/internal/book"
	"github.com/rishav/perpetual-matching-core/internal/matching"
	"github.com/rishav/perpetual-matching-core/internal/metrics"
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/ring"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/rishav/perpetual-matching-core/internal/wal"
	"github.com/rs/zerolog"
)

// ErrDegraded is returned by ProcessOrder/CancelOrder once the engine has
// hit a fatal WAL error and is refusing further orders until operator
// intervention, per §7's WalIo/RecoveryMismatch handling.
var ErrDegraded = errors.New("engine: degraded, refusing orders until operator intervention")

// ErrNotFound is returned by CancelOrder when the order is not resident.
var ErrNotFound = errors.New("engine: order not found")

// ErrForbidden is returned by CancelOrder when the caller's userID does
// not match the order's owner, per §4.E's cancel(order_id, user_id)
// contract.
var ErrForbidden = errors.New("engine: cancel requested by non-owner")

// ErrInvalidArgument is returned by ProcessOrder when an order fails
// validation (non-positive quantity, missing/non-positive price on a
// Limit order, or a mismatched instrument_id), per §7's InvalidArgument
// error kind: rejected before any mutation, never inserted.
var ErrInvalidArgument = errors.New("engine: invalid order")

// errDurabilityTimeout is returned by waitForDurability when the bounded
// wait (§5's suspension point (a)) expires before the record is fsynced
// (committedSeq has not reached it).
// The order itself still succeeded; only durability confirmation timed
// out, which ProcessOrder surfaces via DurabilityReceipt.DurabilityConfirmed
// = false rather than as an error.
var errDurabilityTimeout = errors.New("engine: durability wait timed out")

const defaultDurabilityTimeout = 10 * time.Millisecond
const walBatchSize = 100

// walEntry is what the matching goroutine publishes to the SPSC queue for
// the WAL writer to persist — the exact WalEntry{order, trades, seq} shape
// of §4.H.
type walEntry struct {
	order         *orders.Order
	trades        []orders.Trade
	touchedMakers []*orders.Order
	seq           scale.SequenceId
}

// Config configures a new Engine.
type Config struct {
	InstrumentID  scale.InstrumentId
	WalPath       string
	DurabilityMode
	Thresholds       CriticalThresholds
	STPPolicy        matching.STPPolicy
	MaxIterations    int
	WalQueueCapacity int
	SyncInterval     time.Duration
	Logger           zerolog.Logger

	// ShardKey identifies this engine's matching shard for the purpose of
	// the metrics latency histogram's per-goroutine-key sharding (§4.L);
	// callers pass the matching shard index.
	ShardKey int

	// Metrics collects this engine's counters and latency histogram. A
	// fresh collector is created if nil.
	Metrics *metrics.Metrics
}

// Engine is the single-writer core for one matching shard.
type Engine struct {
	instrumentID scale.InstrumentId
	book         *book.OrderBook
	index        *matching.Index
	kernel       *matching.Kernel
	wal          *wal.Wal
	walQueue     *ring.SPSCRingBuffer[walEntry]
	mode         DurabilityMode
	thresholds   CriticalThresholds
	syncInterval time.Duration
	log          zerolog.Logger
	metrics      *metrics.Metrics
	shardKey     int

	seqCounter     atomic.Uint64
	orderIDCounter atomic.Uint64
	pendingSeq     atomic.Uint64
	lastWrittenSeq atomic.Uint64
	committedSeq   atomic.Uint64
	degraded       atomic.Bool

	syncMu   sync.Mutex // shared between sync-critical escalation and the WAL writer
	syncWake chan struct{}

	stopped      atomic.Bool
	shutdownCh   chan struct{}
	writerDone   chan struct{}
	fsyncDone    chan struct{}
}

// New constructs an Engine and starts its WAL-writer and fsync-worker
// goroutines.
func New(cfg Config) (*Engine, error) {
	w, err := wal.Open(wal.Config{Path: cfg.WalPath})
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = matching.DefaultMaxIterations
	}
	queueCap := cfg.WalQueueCapacity
	if queueCap == 0 {
		queueCap = 65536
	}
	syncInterval := cfg.SyncInterval
	if syncInterval == 0 {
		syncInterval = 50 * time.Millisecond
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	e := &Engine{
		instrumentID: cfg.InstrumentID,
		book:         book.New(cfg.InstrumentID),
		index:        matching.NewIndex(),
		wal:          w,
		walQueue:     ring.NewSPSCRingBuffer[walEntry](queueCap),
		mode:         cfg.DurabilityMode,
		thresholds:   cfg.Thresholds,
		syncInterval: syncInterval,
		log:          cfg.Logger.With().Uint32("instrument_id", uint32(cfg.InstrumentID)).Logger(),
		metrics:      m,
		shardKey:     cfg.ShardKey,
		syncWake:     make(chan struct{}, 1),
		shutdownCh:   make(chan struct{}),
		writerDone:   make(chan struct{}),
		fsyncDone:    make(chan struct{}),
	}
	e.kernel = matching.NewKernel(cfg.STPPolicy, e.now, e.nextSeq)
	e.kernel.MaxIterations = maxIter

	go e.walWriterLoop()
	go e.fsyncWorkerLoop()

	return e, nil
}

func (e *Engine) now() scale.Timestamp {
	return scale.Timestamp(time.Now().UnixNano())
}

func (e *Engine) nextSeq() scale.SequenceId {
	return scale.SequenceId(e.seqCounter.Add(1))
}

// nextOrderID assigns the exchange-side identity an incoming order doesn't
// already carry. Scoped per matching shard, same as sequence numbers;
// callers that need a process-wide unique ID route by instrument_id first
// (§4.J), so shard-local uniqueness is all CancelOrder's lookup needs.
func (e *Engine) nextOrderID() scale.OrderId {
	return scale.OrderId(e.orderIDCounter.Add(1))
}

// ProcessOrder runs o through the matching kernel, persists the result
// per the engine's DurabilityMode, and returns the execution outcome
// alongside a DurabilityReceipt. waitForDurability requests the
// bounded-wait guaranteed-persistence async mode of §4.H for orders that
// take the async path; it has no effect on orders written synchronously
// (every order under ModeZeroLoss, critical orders under
// ModeSyncCritical), which only return once durable.
func (e *Engine) ProcessOrder(o *orders.Order, waitForDurability bool) (orders.ExecutionResult, DurabilityReceipt, error) {
	start := time.Now()
	defer func() { e.metrics.RecordOrderProcessed(e.shardKey, time.Since(start)) }()

	if e.degraded.Load() {
		return orders.ExecutionResult{Order: o, Accepted: false, RejectReason: "engine degraded"}, DurabilityReceipt{}, ErrDegraded
	}

	if err := validateOrder(o, e.instrumentID); err != nil {
		o.Status = orders.StatusRejected
		e.log.Warn().Err(err).Msg("order rejected: failed validation")
		return orders.ExecutionResult{Order: o, Accepted: false, RejectReason: err.Error()}, DurabilityReceipt{}, err
	}

	if o.ID == 0 {
		o.ID = e.nextOrderID()
	}
	o.SequenceID = e.nextSeq()
	o.Timestamp = e.now()
	o.Status = orders.StatusPending

	fills, touchedMakers, err := e.kernel.Match(o, e.book, e.index)
	if err != nil {
		o.Status = orders.StatusRejected
		e.log.Warn().Err(err).Uint64("order_id", uint64(o.ID)).Msg("order rejected: matching runtime limit")
		return orders.ExecutionResult{Order: o, Accepted: false, RejectReason: err.Error()}, DurabilityReceipt{}, nil
	}

	var resting scale.Quantity
	if o.Type == orders.TypeLimit && o.RemainingQuantity() > 0 && o.IsActive() {
		e.book.Insert(o)
		e.index.Add(o)
		resting = o.RemainingQuantity()
	}

	trades := make([]orders.Trade, len(fills))
	for i, f := range fills {
		trades[i] = orders.FromFill(f)
	}
	e.metrics.RecordTradesExecuted(len(trades))

	receipt := e.persist(o, trades, touchedMakers, waitForDurability)

	result := orders.ExecutionResult{
		Order:           o,
		Fills:           fills,
		Accepted:        o.Status != orders.StatusRejected,
		RestingQuantity: resting,
	}
	return result, receipt, nil
}

// validateOrder implements §7's InvalidArgument checks: non-positive
// quantity, a Limit order missing a positive price, or an order routed
// to the wrong instrument's engine. Runs before any state mutation so a
// rejected order leaves no trace.
func validateOrder(o *orders.Order, instrumentID scale.InstrumentId) error {
	if o.OriginalQuantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}
	if o.Type == orders.TypeLimit && o.Price <= 0 {
		return fmt.Errorf("%w: limit order requires a positive price", ErrInvalidArgument)
	}
	if o.InstrumentID != instrumentID {
		return fmt.Errorf("%w: order routed to wrong instrument", ErrInvalidArgument)
	}
	return nil
}

// CancelOrder removes id from the book and index and persists the
// cancellation, per §4.H ("cancellation goes through the same WAL path").
// Per §4.E's cancel(order_id, user_id) contract, it fails Forbidden if
// userID does not own the order.
func (e *Engine) CancelOrder(id scale.OrderId, userID scale.UserId) (*orders.Order, DurabilityReceipt, error) {
	if e.degraded.Load() {
		return nil, DurabilityReceipt{}, ErrDegraded
	}

	o := e.index.Get(id)
	if o == nil {
		return nil, DurabilityReceipt{}, ErrNotFound
	}
	if o.UserID != userID {
		return nil, DurabilityReceipt{}, ErrForbidden
	}

	e.book.Remove(o)
	e.index.Remove(id)
	o.Status = orders.StatusCancelled
	o.SequenceID = e.nextSeq()

	receipt := e.persist(o, nil, nil, false)
	return o, receipt, nil
}

// SnapshotDepth returns the current book depth, delegating to
// internal/book.
func (e *Engine) SnapshotDepth(n int) (bids, asks []book.DepthLevel) {
	return e.book.SnapshotDepth(n)
}

// Metrics returns this engine's counters and latency histogram, per
// §4.L. The returned collector is shared and safe for concurrent
// Snapshot() calls from an HTTP handler while the engine keeps running.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// persist routes o/trades/touchedMakers to the synchronous or async WAL
// path per §4.H's DurabilityMode rules, and returns the resulting
// receipt. touchedMakers are resting orders kernel.Match mutated while
// matching o against the book; each needs its own updated WAL record so
// replay doesn't reconstruct them at their stale pre-fill size.
func (e *Engine) persist(o *orders.Order, trades []orders.Trade, touchedMakers []*orders.Order, waitForDurability bool) DurabilityReceipt {
	seq := o.SequenceID
	e.pendingSeq.Store(uint64(seq))

	critical := e.thresholds.isCritical(o.OriginalQuantity, o.Price, len(trades))
	synchronous := e.mode == ModeZeroLoss || (e.mode == ModeSyncCritical && critical)

	if synchronous {
		if err := e.writeSynchronous(o, trades, touchedMakers, seq); err != nil {
			e.enterDegraded(err)
			return DurabilityReceipt{SequenceID: seq, DurabilityConfirmed: false}
		}
		return DurabilityReceipt{SequenceID: seq, DurabilityConfirmed: true}
	}

	entry := walEntry{order: o, trades: trades, touchedMakers: touchedMakers, seq: seq}
	if err := e.walQueue.Push(entry); err != nil {
		// Ring buffer full: deterministic escalation to the synchronous
		// path rather than surfacing QueueFull to the caller (§7, §5).
		e.log.Debug().Msg("wal queue full, escalating order to synchronous wal append")
		if err := e.writeSynchronous(o, trades, touchedMakers, seq); err != nil {
			e.enterDegraded(err)
			return DurabilityReceipt{SequenceID: seq, DurabilityConfirmed: false}
		}
		return DurabilityReceipt{SequenceID: seq, DurabilityConfirmed: true}
	}

	confirmed := false
	if waitForDurability {
		confirmed = e.waitForDurability(seq, defaultDurabilityTimeout) == nil
	}
	return DurabilityReceipt{SequenceID: seq, DurabilityConfirmed: confirmed}
}

// writeSynchronous appends and fsyncs o/trades/touchedMakers under the
// shared WAL mutex, used by ModeZeroLoss, ModeSyncCritical escalation,
// and the ring-buffer-full fallback.
func (e *Engine) writeSynchronous(o *orders.Order, trades []orders.Trade, touchedMakers []*orders.Order, seq scale.SequenceId) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	recs := buildRecords(o, trades, touchedMakers, o.Timestamp)
	n, err := e.wal.AppendBatch(recs)
	if err != nil {
		return err
	}
	e.metrics.RecordWalBytesWritten(int(n))
	e.lastWrittenSeq.Store(uint64(seq))

	syncStart := time.Now()
	if err := e.wal.Sync(); err != nil {
		return err
	}
	e.metrics.RecordFsync(time.Since(syncStart))
	e.committedSeq.Store(uint64(seq))
	return nil
}

// waitForDurability blocks the goroutine that called ProcessOrder (§5's
// bounded suspension point (a)) until committedSeq reaches seq or timeout
// elapses.
func (e *Engine) waitForDurability(seq scale.SequenceId, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.committedSeq.Load() >= uint64(seq) {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	if e.committedSeq.Load() >= uint64(seq) {
		return nil
	}
	return errDurabilityTimeout
}

// buildRecords converts an order, its trades, and any maker orders the
// match mutated into the WAL records §6 prescribes for a single
// ProcessOrder/CancelOrder call. Each touched maker gets its own Order
// record carrying its post-match remaining quantity and status, so
// replay never resurrects it at a stale pre-fill size.
func buildRecords(o *orders.Order, trades []orders.Trade, touchedMakers []*orders.Order, ts scale.Timestamp) []wal.Record {
	recs := make([]wal.Record, 0, 1+len(trades)+len(touchedMakers))
	recs = append(recs, wal.Record{Type: wal.RecordOrder, Timestamp: ts, Payload: wal.EncodeOrderPayload(o)})
	for _, tr := range trades {
		recs = append(recs, wal.Record{Type: wal.RecordTrade, Timestamp: ts, Payload: wal.EncodeTradePayload(tr)})
	}
	for _, maker := range touchedMakers {
		recs = append(recs, wal.Record{Type: wal.RecordOrder, Timestamp: ts, Payload: wal.EncodeOrderPayload(maker)})
	}
	return recs
}

// walWriterLoop drains the SPSC queue in batches of up to walBatchSize,
// implementing the group-commit behaviour of §4.G, then wakes the fsync
// worker.
func (e *Engine) walWriterLoop() {
	defer close(e.writerDone)

	for {
		batch := make([]walEntry, 0, walBatchSize)
		for len(batch) < walBatchSize {
			entry, err := e.walQueue.Pop()
			if err != nil {
				break
			}
			batch = append(batch, entry)
		}

		if len(batch) == 0 {
			select {
			case <-e.shutdownCh:
				return
			default:
				time.Sleep(time.Millisecond)
				continue
			}
		}

		recs := make([]wal.Record, 0, len(batch)*2)
		maxSeq := scale.SequenceId(0)
		for _, entry := range batch {
			recs = append(recs, buildRecords(entry.order, entry.trades, entry.touchedMakers, entry.order.Timestamp)...)
			if entry.seq > maxSeq {
				maxSeq = entry.seq
			}
		}

		e.syncMu.Lock()
		n, err := e.wal.AppendBatch(recs)
		e.syncMu.Unlock()
		if err != nil {
			e.enterDegraded(err)
			continue
		}
		e.metrics.RecordWalBytesWritten(int(n))
		e.lastWrittenSeq.Store(uint64(maxSeq))

		select {
		case e.syncWake <- struct{}{}:
		default:
		}
	}
}

// fsyncWorkerLoop wakes whenever the WAL writer signals new data, or on
// syncInterval as a fallback, and fsyncs the WAL.
func (e *Engine) fsyncWorkerLoop() {
	defer close(e.fsyncDone)

	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdownCh:
			e.drainAndSync()
			return
		case <-e.syncWake:
			e.doSync()
		case <-ticker.C:
			e.doSync()
		}
	}
}

func (e *Engine) doSync() {
	start := time.Now()
	e.syncMu.Lock()
	err := e.wal.Sync()
	e.syncMu.Unlock()
	if err != nil {
		e.enterDegraded(err)
		return
	}
	e.metrics.RecordFsync(time.Since(start))
	e.committedSeq.Store(e.lastWrittenSeq.Load())
}

func (e *Engine) drainAndSync() {
	for {
		entry, err := e.walQueue.Pop()
		if err != nil {
			break
		}
		recs := buildRecords(entry.order, entry.trades, entry.touchedMakers, entry.order.Timestamp)
		e.syncMu.Lock()
		_, werr := e.wal.AppendBatch(recs)
		e.syncMu.Unlock()
		if werr != nil {
			e.enterDegraded(werr)
			return
		}
		if entry.seq > scale.SequenceId(e.lastWrittenSeq.Load()) {
			e.lastWrittenSeq.Store(uint64(entry.seq))
		}
	}
	e.doSync()
}

func (e *Engine) enterDegraded(err error) {
	if e.degraded.CompareAndSwap(false, true) {
		e.log.Error().Err(err).Msg("engine entering degraded state: wal io failure")
	}
}

// Degraded reports whether the engine has stopped accepting orders after
// a fatal WAL error.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

// Shutdown stops accepting new work conceptually (callers must stop
// calling ProcessOrder/CancelOrder themselves), drains the WAL queue,
// performs a final sync, and joins both background goroutines. Bounded
// by deadline; anything left unwritten past the deadline is logged as
// lost, per §5.
func (e *Engine) Shutdown(deadline time.Duration) error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(e.shutdownCh)

	done := make(chan struct{})
	go func() {
		<-e.writerDone
		<-e.fsyncDone
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		remaining := e.pendingSeq.Load() - e.lastWrittenSeq.Load()
		e.log.Error().Uint64("unwritten_sequences", remaining).Msg("shutdown deadline exceeded, sequences may be lost")
	}

	return e.wal.Close()
}
