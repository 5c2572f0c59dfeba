// Package dataqueue implements a contiguous-reservation ring buffer: a
// bounded byte buffer that hands out contiguous writable regions via
// reserve/commit and guarantees in-order contiguous read regions via
// read_lock/read_unlock.
//
// Concurrency model: one writer may hold the reservation at a time
// (mirroring a single write lock); one read view may be outstanding at
// a time, consumed strictly FIFO across however many reader goroutines
// are waiting. This is the simplest model that satisfies FIFO and
// contiguity; a host wanting true overlapping multi-reader fan-out
// would layer that atop several Queues instead of one.
package dataqueue

import (
	"sync"

	"github.com/edgemedia/avrtc/mediaerr"
)

// ErrClosed is returned by a blocking call that was woken by Deinit.
var ErrClosed = mediaerr.New(mediaerr.WrongState, "dataqueue: closed")

// noWrap is the fillEnd sentinel meaning "no wrap pending": rp is
// never negative, so -1 is safe to use as "unset"
// instead of overloading 0 (which IS a legitimate wp/rp value at
// startup and right after a wrap is fully consumed).
const noWrap = -1

// Queue is a single-producer-reservation, single-reader-view ring
// buffer of variable-sized committed blocks.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf []byte
	cap int

	wp, rp      int
	fillEnd     int // see noWrap
	filledBytes int
	blocks      []int // FIFO of committed block sizes awaiting read

	writing    bool // exclusive writer held (reserved, not yet committed)
	pendingOff int   // offset handed out by the outstanding Reserve

	readLocked   bool
	quitting     bool
	waiters      int
}

// New allocates a Queue with the given byte capacity.
func New(capacity int) *Queue {
	q := &Queue{
		buf:     make([]byte, capacity),
		cap:     capacity,
		fillEnd: noWrap,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// wait blocks on the condition variable, tracking q.waiters so Reset
// can detect full drain, and wakes every waiter on return so chained
// waits (e.g. Reset itself) re-evaluate promptly.
func (q *Queue) wait() {
	q.waiters++
	q.cond.Wait()
	q.waiters--
	q.cond.Broadcast()
}

// Reserve blocks until size bytes are available as one contiguous
// region and returns a slice into the queue's backing buffer to write
// into. The caller must call Commit with the actual number of bytes
// written (<= size) before any other Reserve can proceed.
func (q *Queue) Reserve(size int) ([]byte, error) {
	if size > q.cap {
		return nil, mediaerr.New(mediaerr.NoMem, "dataqueue.Reserve")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.writing && !q.quitting {
		q.wait()
	}
	if q.quitting {
		return nil, ErrClosed
	}
	q.writing = true

	for {
		if q.quitting {
			q.writing = false
			q.cond.Broadcast()
			return nil, ErrClosed
		}
		if off, wrapped, ok := q.findContiguous(size); ok {
			if wrapped {
				q.fillEnd = q.wp
			}
			q.pendingOff = off
			return q.buf[off : off+size], nil
		}
		q.wait()
	}
}

// findContiguous reports the offset at which a size-byte reservation
// fits contiguously, and whether taking it would wrap the writer to
// offset 0. It is a pure query: the
// caller is responsible for committing fillEnd when it actually acts
// on a wrapped answer.
func (q *Queue) findContiguous(size int) (offset int, wrapped bool, ok bool) {
	free := q.cap - q.filledBytes
	if free < size {
		return 0, false, false
	}
	if q.wp >= q.rp {
		tail := q.cap - q.wp
		if size <= tail {
			return q.wp, false, true
		}
		head := q.rp
		if size <= head {
			return 0, true, true
		}
		return 0, false, false
	}
	gap := q.rp - q.wp
	if size <= gap {
		return q.wp, false, true
	}
	return 0, false, false
}

// Commit finalizes the outstanding reservation with the first n bytes
// (n may be less than the reserved size).
func (q *Queue) Commit(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.writing {
		return mediaerr.New(mediaerr.WrongState, "dataqueue.Commit")
	}
	if n > 0 {
		q.wp = q.pendingOff + n
		if q.wp == q.cap {
			q.wp = 0
		}
		q.filledBytes += n
		q.blocks = append(q.blocks, n)
	}
	q.writing = false
	q.cond.Broadcast()
	return nil
}

// ReadLock blocks until a committed block is available and not
// already on loan, then returns a contiguous view of it (exactly the
// committed size). The caller must follow with ReadUnlock or
// PeekUnlock.
func (q *Queue) ReadLock() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for (q.readLocked || len(q.blocks) == 0) && !q.quitting {
		q.wait()
	}
	if q.quitting {
		return nil, ErrClosed
	}
	if q.rp == q.fillEnd {
		q.rp = 0
		q.fillEnd = noWrap
	}
	n := q.blocks[0]
	q.readLocked = true
	return q.buf[q.rp : q.rp+n], nil
}

// ReadUnlock releases the current read view, consuming it: rp
// advances, filledBytes shrinks, and the block leaves the FIFO.
func (q *Queue) ReadUnlock() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.readLocked {
		return mediaerr.New(mediaerr.WrongState, "dataqueue.ReadUnlock")
	}
	n := q.blocks[0]
	q.blocks = q.blocks[1:]
	q.rp += n
	if q.rp == q.cap {
		q.rp = 0
	}
	q.filledBytes -= n
	q.readLocked = false
	q.cond.Broadcast()
	return nil
}

// PeekUnlock releases the current read view without consuming it: the
// same block will be returned again by the next ReadLock.
func (q *Queue) PeekUnlock() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.readLocked {
		return mediaerr.New(mediaerr.WrongState, "dataqueue.PeekUnlock")
	}
	q.readLocked = false
	q.cond.Broadcast()
	return nil
}

// Wakeup breaks every blocked Reserve/ReadLock without quitting or
// resetting the queue; callers re-check their own condition and keep
// waiting if it still doesn't hold. Used to unstick waiters when
// external state (e.g. an owning stream's enable flag) changed.
func (q *Queue) Wakeup() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// ConsumeAll discards every committed block without delivering it to a
// reader, e.g. for a flush. Does not affect an outstanding write.
func (q *Queue) ConsumeAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocks = q.blocks[:0]
	q.rp = q.wp
	q.fillEnd = noWrap
	q.filledBytes = 0
	q.cond.Broadcast()
}

// Reset wakes every waiter and, once they have all unblocked, clears
// wp/rp/filledBytes/blocks back to an empty queue ready for reuse.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quitting = true
	q.cond.Broadcast()
	for q.waiters > 0 {
		q.cond.Wait()
	}
	q.wp, q.rp = 0, 0
	q.fillEnd = noWrap
	q.filledBytes = 0
	q.blocks = nil
	q.writing = false
	q.readLocked = false
	q.quitting = false
	q.cond.Broadcast()
}

// Deinit permanently quits the queue: every blocked and future
// Reserve/ReadLock call returns ErrClosed.
func (q *Queue) Deinit() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quitting = true
	q.cond.Broadcast()
}

// Query reports the number of unread committed blocks and the total
// unread bytes currently buffered.
func (q *Queue) Query() (blockCount, bytes int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks), q.filledBytes
}

// Closed reports whether Deinit has been called, letting a
// non-blocking poller (e.g. an orchestrator send loop) detect
// end-of-stream without risking a block on ReadLock.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quitting
}

// Enough reports whether a size-byte Reserve would currently succeed
// without blocking — the backpressure-contract primitive (fifo_enough)
// generalized down to the queue layer.
func (q *Queue) Enough(size int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.writing {
		return false
	}
	_, _, ok := q.findContiguous(size)
	return ok
}
