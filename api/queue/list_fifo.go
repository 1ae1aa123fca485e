package queue

import (
	"container/list"
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/vova616/xxhash"
)

// ErrClosed is returned by every operation on a closed queue.
var ErrClosed = errors.New("queue closed")

// Key hashes a request body into the key used for duplicate checks.
func Key(body []byte) uint32 {
	return xxhash.Checksum32(body)
}

type queuedItem[T any] struct {
	key    uint32
	hashed bool
	value  T
}

// ListFIFOQueue is a bounded FIFO queue based on a doubly linked list.  Items enqueued with
// a key are only added once while they are waiting.
type ListFIFOQueue[T any] struct {
	queue  *list.List
	hashes map[uint32]bool
	size   int
	closed bool
	mutex  *sync.Mutex
	cond   *sync.Cond
}

// NewListFIFOQueue creates a queue that holds at most size items.
func NewListFIFOQueue[T any](size int) *ListFIFOQueue[T] {
	mutex := &sync.Mutex{}
	return &ListFIFOQueue[T]{
		queue:  list.New(),
		hashes: map[uint32]bool{},
		size:   size,
		mutex:  mutex,
		cond:   sync.NewCond(mutex),
	}
}

// EnqueueHashed adds x unless an item with the same key is already waiting, in which case
// it reports success without adding anything.  If the queue is full, false is returned.
func (q *ListFIFOQueue[T]) EnqueueHashed(key uint32, x T) (added bool, err error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.hashes[key] {
		return true, nil
	}
	if q.queue.Len() >= q.size {
		return false, nil
	}
	q.queue.PushBack(&queuedItem[T]{key: key, hashed: true, value: x})
	q.hashes[key] = true
	q.cond.Signal()
	return true, nil
}

// Contains reports whether an item with key is waiting.
func (q *ListFIFOQueue[T]) Contains(key uint32) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.hashes[key]
}

// Dequeue removes the item at the front of the queue, blocking until one is available, the
// queue is closed or ctx is done.
func (q *ListFIFOQueue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	// wake the waiter below when the context ends
	stop := context.AfterFunc(ctx, func() {
		q.mutex.Lock()
		defer q.mutex.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mutex.Lock()
	defer q.mutex.Unlock()

	for q.queue.Len() == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if q.closed {
		return zero, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	front := q.queue.Front()
	item := front.Value.(*queuedItem[T])
	q.queue.Remove(front)
	if item.hashed {
		delete(q.hashes, item.key)
	}
	return item.value, nil
}

// Size returns the current size of the queue.
func (q *ListFIFOQueue[T]) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.queue.Len()
}

// Clear empties the queue and its key set.
func (q *ListFIFOQueue[T]) Clear() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.queue.Init()
	q.hashes = map[uint32]bool{}
	return nil
}

// Close forbids further operations and releases blocked Dequeue calls.
func (q *ListFIFOQueue[T]) Close() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return errors.Wrap(ErrClosed, "close of previously closed queue")
	}
	q.closed = true
	q.cond.Broadcast()
	return nil
}

// GetAll returns a copy of the waiting items, front first.
func (q *ListFIFOQueue[T]) GetAll() ([]T, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	items := make([]T, 0, q.queue.Len())
	for e := q.queue.Front(); e != nil; e = e.Next() {
		items = append(items, e.Value.(*queuedItem[T]).value)
	}
	return items, nil
}
