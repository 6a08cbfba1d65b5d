package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](4)
	assert.True(t, rq.IsEmpty())

	for i := 1; i <= 3; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.Equal(t, 3, rq.Len())

	front, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, front)
	assert.Equal(t, 3, rq.Len(), "peek must not consume")

	for i := 1; i <= 3; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, rq.IsEmpty())
}

func TestRingQueueFullAndEmpty(t *testing.T) {
	rq := NewRingQueue[string](2)

	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue("c"), ErrQueueFull)

	_, err := rq.Dequeue()
	require.NoError(t, err)
	_, err = rq.Dequeue()
	require.NoError(t, err)

	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, err = rq.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[int](3)

	next := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, rq.Enqueue(i))
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, next, v)
		next++
	}
	assert.True(t, rq.IsEmpty())
}
