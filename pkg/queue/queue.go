package queue

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull   = errors.New("queue: full")
	ErrQueueClosed = errors.New("queue: closed")
)

// OverflowPolicy defines queue behavior when full.
type OverflowPolicy uint8

const (
	// OverflowBlock blocks until space is available or the block timeout passes.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropNewest drops the incoming item if the queue is full.
	OverflowDropNewest
	// OverflowDropOldest drops the oldest item to make room.
	OverflowDropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowDropNewest:
		return "drop_newest"
	case OverflowDropOldest:
		return "drop_oldest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy maps a config value to a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return OverflowBlock, nil
	case "drop_newest", "drop-newest":
		return OverflowDropNewest, nil
	case "", "drop_oldest", "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy: %s", s)
	}
}

// Option configures a Queue.
type Option struct {
	Capacity int
	Policy   OverflowPolicy
	// BlockTimeout bounds how long Push waits under OverflowBlock.
	// Zero waits until space frees up or the queue closes.
	BlockTimeout time.Duration
}

// Queue is a bounded ring buffer with a configurable overflow policy.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []T
	head     int
	tail     int
	size     int
	closed   bool
	policy   OverflowPolicy
	timeout  time.Duration
	dropped  atomic.Uint64
}

// New creates a bounded ring buffer.
func New[T any](opt Option) *Queue[T] {
	capacity := opt.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue[T]{
		buf:     make([]T, capacity),
		policy:  opt.Policy,
		timeout: opt.BlockTimeout,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues v according to the overflow policy.
// Under OverflowDropOldest Push never reports ErrQueueFull; the evicted item is
// counted in Dropped instead.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var deadline time.Time
	for {
		if q.closed {
			return ErrQueueClosed
		}
		if q.size < len(q.buf) {
			q.buf[q.tail] = v
			q.tail = (q.tail + 1) % len(q.buf)
			q.size++
			q.notEmpty.Signal()
			return nil
		}
		switch q.policy {
		case OverflowBlock:
			if q.timeout <= 0 {
				q.notFull.Wait()
				continue
			}
			if deadline.IsZero() {
				deadline = time.Now().Add(q.timeout)
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				q.dropped.Add(1)
				return ErrQueueFull
			}
			q.waitFor(remaining)
		case OverflowDropOldest:
			var zero T
			q.buf[q.head] = zero
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			q.dropped.Add(1)
		default:
			q.dropped.Add(1)
			return ErrQueueFull
		}
	}
}

// waitFor waits on notFull for at most d. q.mu must be held.
func (q *Queue[T]) waitFor(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	q.notFull.Wait()
	timer.Stop()
}

// Pop dequeues the next item, blocking until one is available or the queue is closed.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.size > 0 {
			v := q.buf[q.head]
			var zero T
			q.buf[q.head] = zero
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			q.notFull.Signal()
			return v, true
		}
		if q.closed {
			var zero T
			return zero, false
		}
		q.notEmpty.Wait()
	}
}

// Close stops the queue. Pending items are discarded.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.size = 0
	q.head = 0
	q.tail = 0
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()
	return size
}

// Dropped returns the number of items lost to overflow.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
