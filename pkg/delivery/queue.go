package delivery

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("delivery queue closed")

// Item is one processed account update: the text to send to every recipient
// and the index id to commit once all sends were attempted. Recipients may be
// empty, in which case only the cursor moves.
type Item struct {
	IndexID    int64
	Recipients []int64
	Text       string
}

// Queue is a bounded FIFO between the ingestion pipeline and the Worker.
// Producers block while it is full.
type Queue struct {
	mu     sync.RWMutex
	closed bool
	items  chan Item
}

// NewQueue returns a queue holding at most size items.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{items: make(chan Item, size)}
}

// Enqueue adds item, waiting for capacity or ctx.
func (q *Queue) Enqueue(ctx context.Context, item Item) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting items. Items already queued are still handed to the Worker.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
}

// Len is the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}
