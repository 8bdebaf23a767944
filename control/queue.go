package control

import (
	"errors"
	"sync/atomic"
)

// ErrQueueCapacity is returned when a queue capacity is not a power of two.
var ErrQueueCapacity = errors.New("control: capacity must be a positive power of two")

// DefaultQueueCapacity suits one buffer's worth of control traffic.
const DefaultQueueCapacity = 64

// Queue is a bounded single-producer/single-consumer message ring.
//
// Exactly one goroutine may call Push and exactly one may call Pop; under
// that contract the queue is lock-free and allocation-free, which makes it
// safe to drain and fill from the audio thread. When the ring is full, Push
// drops the message and reports false; control traffic is advisory and a
// dropped notification is recovered by the next Get round trip.
type Queue struct {
	buf  []Message
	mask uint64
	head atomic.Uint64 // next slot to pop
	tail atomic.Uint64 // next slot to push
}

// NewQueue returns a queue holding up to capacity messages.
// capacity must be a power of two.
func NewQueue(capacity int) (*Queue, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrQueueCapacity
	}
	return &Queue{
		buf:  make([]Message, capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// Push appends m. Returns false (dropping m) when the queue is full.
func (q *Queue) Push(m Message) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint64(len(q.buf)) {
		return false
	}
	q.buf[tail&q.mask] = m
	q.tail.Store(tail + 1)
	return true
}

// Pop removes and returns the oldest message. ok is false when empty.
func (q *Queue) Pop() (m Message, ok bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return Message{}, false
	}
	m = q.buf[head&q.mask]
	q.head.Store(head + 1)
	return m, true
}

// Len returns the number of queued messages. Exact only when called from
// the producer or consumer goroutine.
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}
