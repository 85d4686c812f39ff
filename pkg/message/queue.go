package message

import "sync"

// Queue is an unbounded, multi-producer Sink. Send never blocks; Next
// blocks until a message arrives or the queue is closed and drained. A
// queue whose consumer has stopped (Close called) silently drops further
// sends, which the engine tolerates.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Message
	closed bool
}

// NewQueue returns an empty open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends m without blocking. Messages sent after Close are dropped.
func (q *Queue) Send(m Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, m)
	q.cond.Signal()
}

// Close stops the queue. Pending messages remain readable via Next.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Next returns the oldest pending message. It blocks while the queue is
// open and empty, and reports false once the queue is closed and drained.
func (q *Queue) Next() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}
