package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSendReceive(t *testing.T) {
	ch := NewBuffered[int](2)

	ch.Send(1)
	ch.Send(2)
	assert.Equal(t, 2, ch.Len())

	assert.Equal(t, 1, <-ch.Receive())
	assert.Equal(t, 2, <-ch.Receive())
	assert.Equal(t, 0, ch.Len())
}

func TestBufferedTrySend(t *testing.T) {
	ch := NewBuffered[string](1)

	assert.True(t, ch.TrySend("a"))
	assert.False(t, ch.TrySend("b"), "full buffer must refuse without blocking")

	v, ok := ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = ch.TryReceive()
	assert.False(t, ok, "empty buffer must refuse without blocking")
}

func TestBufferedCloseDrains(t *testing.T) {
	ch := NewBuffered[int](4)
	ch.Send(7)
	ch.Close()

	v, open := <-ch.Receive()
	assert.True(t, open)
	assert.Equal(t, 7, v)

	_, open = <-ch.Receive()
	assert.False(t, open)
}

func TestUnbufferedTryOpsRefuseWithoutPeer(t *testing.T) {
	ch := NewUnbuffered[int]()

	assert.False(t, ch.TrySend(1), "no receiver waiting")
	_, ok := ch.TryReceive()
	assert.False(t, ok, "no sender waiting")
	assert.Equal(t, 0, ch.Len())
}

func TestUnbufferedHandoff(t *testing.T) {
	ch := NewUnbuffered[int]()

	done := make(chan int)
	go func() { done <- <-ch.Receive() }()

	ch.Send(42)
	assert.Equal(t, 42, <-done)
}

func TestFactoryReturnsUsableChannel(t *testing.T) {
	ch := New[int](4)
	require.NotNil(t, ch)

	// exercised through the interface: both builds must support try ops
	if ch.TrySend(5) {
		v, ok := ch.TryReceive()
		assert.True(t, ok)
		assert.Equal(t, 5, v)
	}
}
