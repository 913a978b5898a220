// Package ring implements the bounded, lock-free ring buffers that sit
// between the matching thread, the WAL writer thread, and the fsync worker
// thread.
//
// Two variants are provided, matching the two shapes real exchanges use:
//
//  1. SPSC: single-producer/single-consumer, used for the matching-thread →
//     WAL-writer-thread queue. Two counters on separate cache lines, release
//     on publish, acquire on consume.
//  2. MPMC: multi-producer/multi-consumer, for queues that more than one
//     goroutine publishes to or drains. No other package in this module
//     constructs one.
//
// Both are adapted from the teacher's LMAX-Disruptor-style
// internal/disruptor/ring_buffer.go and sequencer.go, and from the
// cache-line-aligned lock-free queue templates in
// _examples/original_source/include/core/lockfree_queue.h. No blocking
// primitives are used; no allocation happens after construction.
package ring

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrFull is returned when a ring buffer has no free capacity for a push.
var ErrFull = errors.New("ring buffer is full")

// ErrEmpty is returned when a non-blocking pop finds no published item.
var ErrEmpty = errors.New("ring buffer is empty")

// cacheLinePad is sized so that two adjacent atomic.Uint64 counters land on
// separate cache lines on common 64-byte-line hardware.
type cacheLinePad [64 - 8]byte

// SPSCRingBuffer is a fixed-capacity single-producer/single-consumer queue.
// Capacity is rounded up to the next power of two so slot indexing reduces
// to a bitwise AND instead of a modulo.
type SPSCRingBuffer[T any] struct {
	mask uint64
	buf  []T

	writePos atomic.Uint64
	_        cacheLinePad
	readPos  atomic.Uint64
	_        cacheLinePad
}

// NewSPSCRingBuffer creates an SPSC ring buffer with at least the requested
// capacity, rounded up to a power of two.
func NewSPSCRingBuffer[T any](capacity int) *SPSCRingBuffer[T] {
	size := nextPowerOfTwo(capacity)
	return &SPSCRingBuffer[T]{
		mask: uint64(size - 1),
		buf:  make([]T, size),
	}
}

// Capacity returns the number of slots in the buffer.
func (r *SPSCRingBuffer[T]) Capacity() int {
	return len(r.buf)
}

// Push appends v to the buffer. It fails with ErrFull if the buffer has no
// free slot; the caller (the matching thread, per §5) is expected to
// escalate to a synchronous path rather than retry indefinitely.
func (r *SPSCRingBuffer[T]) Push(v T) error {
	write := r.writePos.Load()
	read := r.readPos.Load()
	if write-read >= uint64(len(r.buf)) {
		return ErrFull
	}
	r.buf[write&r.mask] = v
	// Release: publish the slot contents before advancing writePos.
	r.writePos.Store(write + 1)
	return nil
}

// Pop removes and returns the oldest published item. It fails with
// ErrEmpty if the consumer has caught up with the producer.
func (r *SPSCRingBuffer[T]) Pop() (T, error) {
	var zero T
	read := r.readPos.Load()
	write := r.writePos.Load()
	if read == write {
		return zero, ErrEmpty
	}
	// Acquire: writePos observed above guarantees the slot write is visible.
	v := r.buf[read&r.mask]
	r.buf[read&r.mask] = zero
	r.readPos.Store(read + 1)
	return v, nil
}

// Len returns the number of items currently queued.
func (r *SPSCRingBuffer[T]) Len() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// mpmcSlot carries a sequence tag alongside its payload so producers and
// consumers can detect which generation of the ring currently owns the
// slot, the same technique as the original's LockFreeMPMCQueue.
type mpmcSlot[T any] struct {
	seq atomic.Uint64
	val T
}

// MPMCRingBuffer is a fixed-capacity multi-producer/multi-consumer queue.
// Producers claim a slot with a compare-and-swap on the write cursor once
// the slot's sequence tag confirms it is free, yielding and retrying when
// another producer wins the race; consumers mirror the same protocol on
// the read side.
type MPMCRingBuffer[T any] struct {
	mask  uint64
	slots []mpmcSlot[T]

	writeCursor atomic.Uint64
	_           cacheLinePad
	readCursor  atomic.Uint64
	_           cacheLinePad
}

// NewMPMCRingBuffer creates an MPMC ring buffer with at least the requested
// capacity, rounded up to a power of two.
func NewMPMCRingBuffer[T any](capacity int) *MPMCRingBuffer[T] {
	size := nextPowerOfTwo(capacity)
	rb := &MPMCRingBuffer[T]{
		mask:  uint64(size - 1),
		slots: make([]mpmcSlot[T], size),
	}
	for i := range rb.slots {
		rb.slots[i].seq.Store(uint64(i))
	}
	return rb
}

// Capacity returns the number of slots in the buffer.
func (r *MPMCRingBuffer[T]) Capacity() int {
	return len(r.slots)
}

// Push claims a slot and publishes v. It fails with ErrFull at once if the
// buffer is full, and also after a bounded number of retries lost to
// other producers; callers on the hot path must treat this the same as
// the SPSC variant's ErrFull.
func (r *MPMCRingBuffer[T]) Push(v T) error {
	const maxSpins = 10000
	for spins := 0; spins < maxSpins; spins++ {
		pos := r.writeCursor.Load()
		slot := &r.slots[pos&r.mask]
		seq := slot.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if r.writeCursor.CompareAndSwap(pos, pos+1) {
				slot.val = v
				slot.seq.Store(pos + 1)
				return nil
			}
		case diff < 0:
			return ErrFull
		default:
		}
		runtime.Gosched()
	}
	return ErrFull
}

// Pop claims and removes the oldest published item. It fails with ErrEmpty
// at once if no item is published, and also after a bounded number of
// retries lost to other consumers.
func (r *MPMCRingBuffer[T]) Pop() (T, error) {
	var zero T
	const maxSpins = 10000
	for spins := 0; spins < maxSpins; spins++ {
		pos := r.readCursor.Load()
		slot := &r.slots[pos&r.mask]
		seq := slot.seq.Load()
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if r.readCursor.CompareAndSwap(pos, pos+1) {
				v := slot.val
				slot.val = zero
				slot.seq.Store(pos + uint64(len(r.slots)))
				return v, nil
			}
		case diff < 0:
			return zero, ErrEmpty
		default:
		}
		runtime.Gosched()
	}
	return zero, ErrEmpty
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
