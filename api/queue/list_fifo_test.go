package queue

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestListEnqueueDequeue(t *testing.T) {
	queue := NewListFIFOQueue[int](2)

	result, err := queue.EnqueueHashed(1, 10)
	assert.NoError(t, err)
	assert.True(t, result)
	result, err = queue.EnqueueHashed(2, 20)
	assert.NoError(t, err)
	assert.True(t, result)
	result, err = queue.EnqueueHashed(3, 30)
	assert.NoError(t, err)
	assert.False(t, result)

	assert.Equal(t, 2, queue.Size())

	dequeueResult, err := queue.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 10, dequeueResult)
	assert.Equal(t, 1, queue.Size())

	dequeueResult, err = queue.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 20, dequeueResult)
	assert.Equal(t, 0, queue.Size())
}

func TestListBlockingDequeue(t *testing.T) {
	queue := NewListFIFOQueue[int](2)

	// setup a dequeue in a different go routine
	done := make(chan int)
	go func() {
		v, _ := queue.Dequeue(context.Background())
		done <- v
	}()

	// force a bit of a wait to ensure that the dequeue is blocked, then enqueue
	time.Sleep(100 * time.Millisecond)
	_, _ = queue.EnqueueHashed(3, 30)

	assert.Equal(t, 30, <-done)
	assert.Equal(t, 0, queue.Size())
}

func TestListDequeueCancel(t *testing.T) {
	queue := NewListFIFOQueue[int](2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		_, err := queue.Dequeue(ctx)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("dequeue did not return after cancel")
	}
}

func TestHashedEnqueueDequeue(t *testing.T) {
	queue := NewListFIFOQueue[string](2)
	key := Key([]byte(`{"name":"sweep"}`))

	// ensure request with identical keys are only added once
	result, err := queue.EnqueueHashed(key, "a")
	assert.NoError(t, err)
	assert.True(t, result)
	result, err = queue.EnqueueHashed(key, "a")
	assert.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 1, queue.Size())
	assert.True(t, queue.Contains(key))

	result, err = queue.EnqueueHashed(Key([]byte(`{"name":"other"}`)), "b")
	assert.NoError(t, err)
	assert.True(t, result)

	// a full queue refuses new keys
	result, err = queue.EnqueueHashed(Key([]byte(`{}`)), "c")
	assert.NoError(t, err)
	assert.False(t, result)

	// dequeueing allows a follow on request with the same key
	v, err := queue.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.False(t, queue.Contains(key))

	result, err = queue.EnqueueHashed(key, "a")
	assert.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 2, queue.Size())
}

func TestListGetAll(t *testing.T) {
	queue := NewListFIFOQueue[int](3)
	_, _ = queue.EnqueueHashed(7, 1)
	_, _ = queue.EnqueueHashed(9, 2)
	_, _ = queue.EnqueueHashed(8, 3)

	items, err := queue.GetAll()
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, items)
	assert.Equal(t, 3, queue.Size())
}

func TestListClear(t *testing.T) {
	queue := NewListFIFOQueue[int](2)
	_, _ = queue.EnqueueHashed(1, 10)
	_, _ = queue.EnqueueHashed(2, 20)

	assert.NoError(t, queue.Clear())
	assert.Equal(t, 0, queue.Size())
	assert.False(t, queue.Contains(1))
}

func TestListClose(t *testing.T) {
	queue := NewListFIFOQueue[int](2)
	_, _ = queue.EnqueueHashed(1, 10)

	done := make(chan error)
	go func() {
		empty := NewListFIFOQueue[int](1)
		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = empty.Close()
		}()
		_, err := empty.Dequeue(context.Background())
		done <- err
	}()
	assert.True(t, errors.Is(<-done, ErrClosed))

	assert.NoError(t, queue.Close())
	assert.Error(t, queue.Close())
	assert.Error(t, queue.Clear())

	_, err := queue.EnqueueHashed(10, 100)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = queue.Dequeue(context.Background())
	assert.Error(t, err)
	_, err = queue.GetAll()
	assert.Error(t, err)
}
