package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// Config configures a Wal instance. Only the log file path is set here;
// the sync cadence is configured on the owning engine.
type Config struct {
	Path string
}

// Wal is the append-only durability log described in §4.G. One Wal is
// owned by exactly one matching shard's Engine.
//
// Grounded on the teacher's EventLog (bufio.Writer over an append-mode
// os.File, mutex-guarded Append, explicit Sync/Close), restructured onto
// the bit-exact §6 record format instead of gob, and split written/synced
// offset tracking to support the engine's async-batched durability mode
// (§4.H) rather than the teacher's single always-flush-then-maybe-sync
// path.
type Wal struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer

	lastWrittenOffset atomic.Int64
	lastSyncedOffset  atomic.Int64

	nextSeq atomic.Uint64
}

// Open opens (creating if absent) the WAL file at cfg.Path.
func Open(cfg Config) (*Wal, error) {
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: stat %s: %w", cfg.Path, err)
	}
	w := &Wal{file: f, writer: bufio.NewWriter(f)}
	w.lastWrittenOffset.Store(info.Size())
	w.lastSyncedOffset.Store(info.Size())
	return w, nil
}

// AppendOrder writes an Order record. Returns the byte offset immediately
// after the record, i.e. the new last-written-offset.
func (w *Wal) AppendOrder(o *orders.Order, ts scale.Timestamp) (int64, error) {
	rec := Record{Type: RecordOrder, Timestamp: ts, Payload: EncodeOrderPayload(o)}
	return w.appendRecord(rec)
}

// AppendTrade writes a Trade record.
func (w *Wal) AppendTrade(tr orders.Trade, ts scale.Timestamp) (int64, error) {
	rec := Record{Type: RecordTrade, Timestamp: ts, Payload: EncodeTradePayload(tr)}
	return w.appendRecord(rec)
}

// AppendCheckpoint writes a Checkpoint sentinel record.
func (w *Wal) AppendCheckpoint(cp Checkpoint, ts scale.Timestamp) (int64, error) {
	rec := Record{Type: RecordCheckpoint, Timestamp: ts, Payload: EncodeCheckpointPayload(cp)}
	return w.appendRecord(rec)
}

// AppendBatch writes every record in recs under a single lock acquisition,
// implementing the group-commit behaviour of §4.G: the WAL writer thread
// drains up to BATCH_SIZE entries per iteration, buffers every record of
// the batch, and flushes the buffer once at the end.
func (w *Wal) AppendBatch(recs []Record) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, rec := range recs {
		if _, err := w.writer.Write(rec.Encode()); err != nil {
			return w.lastWrittenOffset.Load(), fmt.Errorf("wal: write: %w", err)
		}
	}
	if err := w.writer.Flush(); err != nil {
		return w.lastWrittenOffset.Load(), fmt.Errorf("wal: flush: %w", err)
	}
	info, err := w.file.Stat()
	if err != nil {
		return w.lastWrittenOffset.Load(), fmt.Errorf("wal: stat: %w", err)
	}
	w.lastWrittenOffset.Store(info.Size())
	return info.Size(), nil
}

func (w *Wal) appendRecord(rec Record) (int64, error) {
	return w.AppendBatch([]Record{rec})
}

// Sync fsyncs the file and advances lastSyncedOffset to lastWrittenOffset.
// This is the synchronous-critical and zero-loss path's final step (§4.H).
func (w *Wal) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	w.lastSyncedOffset.Store(w.lastWrittenOffset.Load())
	return nil
}

// AsyncSync is the same call as Sync: it fsyncs on the caller's goroutine
// and blocks until the fsync completes. It does not hand work to a
// background worker, and there is no matching wait-for-offset call.
func (w *Wal) AsyncSync() error {
	return w.Sync()
}

// LastWrittenOffset returns the byte offset of the end of the last
// record appended (whether or not synced).
func (w *Wal) LastWrittenOffset() int64 {
	return w.lastWrittenOffset.Load()
}

// LastSyncedOffset returns the byte offset up to which fsync has been
// confirmed.
func (w *Wal) LastSyncedOffset() int64 {
	return w.lastSyncedOffset.Load()
}

// Close flushes and closes the underlying file.
func (w *Wal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("wal: flush on close: %w", err)
	}
	return w.file.Close()
}
