// Package msgqueue implements a fixed-slot, by-value blocking queue:
// Send copies into the next free slot, Recv copies out the head slot,
// both under a capacity bound, with Reset and Destroy draining every
// waiter.
package msgqueue

import (
	"sync"

	"github.com/edgemedia/avrtc/mediaerr"
)

// ErrClosed is returned by a blocking call woken by Destroy.
var ErrClosed = mediaerr.New(mediaerr.WrongState, "msgqueue: closed")

// Queue is a ring of capacity fixed-size byte slots.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	slots    [][]byte
	eachSize int
	capacity int

	cur    int // read index
	filled int // occupied slot count

	quit    bool
	waiters int
}

// New allocates a Queue of capacity slots, each eachSize bytes.
func New(capacity, eachSize int) *Queue {
	slots := make([][]byte, capacity)
	for i := range slots {
		slots[i] = make([]byte, eachSize)
	}
	q := &Queue{slots: slots, eachSize: eachSize, capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) wait() {
	q.waiters++
	q.cond.Wait()
	q.waiters--
	q.cond.Broadcast()
}

// Send copies the first min(len(msg), eachSize) bytes of msg into the
// next free slot (a longer msg is truncated to eachSize), blocking
// while the queue is full.
func (q *Queue) Send(msg []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.filled == q.capacity && !q.quit {
		q.wait()
	}
	if q.quit {
		return ErrClosed
	}

	idx := (q.cur + q.filled) % q.capacity
	n := copy(q.slots[idx], msg)
	// zero the remainder so a short send never leaks a prior message's tail.
	for i := n; i < q.eachSize; i++ {
		q.slots[idx][i] = 0
	}
	q.filled++
	q.cond.Broadcast()
	return nil
}

// Recv copies the head slot into out (len(out) should be >= eachSize;
// only min(len(out), eachSize) bytes are copied) and returns the
// number of bytes copied. If noWait is true and the queue is empty,
// Recv returns (0, nil) immediately instead of blocking.
func (q *Queue) Recv(out []byte, noWait bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.filled == 0 && !q.quit {
		if noWait {
			return 0, nil
		}
		q.wait()
	}
	if q.quit {
		return 0, ErrClosed
	}

	n := copy(out, q.slots[q.cur])
	q.cur = (q.cur + 1) % q.capacity
	q.filled--
	q.cond.Broadcast()
	return n, nil
}

// Reset wakes every waiter and, once drained, drops all buffered
// messages, leaving the queue empty and usable.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quit = true
	q.cond.Broadcast()
	for q.waiters > 0 {
		q.cond.Wait()
	}
	q.cur, q.filled = 0, 0
	q.quit = false
	q.cond.Broadcast()
}

// Destroy permanently quits the queue and waits for every waiter to
// drain before returning.
func (q *Queue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quit = true
	q.cond.Broadcast()
	for q.waiters > 0 {
		q.cond.Wait()
	}
}

// Len reports the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filled
}
