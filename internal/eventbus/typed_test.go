package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string]()
	ch := bus.Subscribe()
	assert.Equal(t, 0, bus.Publish("hello"))
	assert.Equal(t, "hello", <-ch)
	bus.Unsubscribe(ch)
	assert.Zero(t, bus.Subscribers())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestTypedBusDropsWhenFull(t *testing.T) {
	bus := NewTypedWithBuffer[int](1)
	slow := bus.Subscribe()
	assert.Equal(t, 0, bus.Publish(1))
	assert.Equal(t, 1, bus.Publish(2))
	assert.Equal(t, uint64(1), bus.Dropped())
	assert.Equal(t, 1, <-slow)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	assert.Zero(t, bus.Publish(3))
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	require.NotPanics(t, func() { bus.Unsubscribe(ch) })
}
