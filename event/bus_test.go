package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus[string, int]()

	var all []int
	bus.AddHandler(HandlerFunc[string, int](func(key string, e int) {
		all = append(all, e)
	}))

	var keyed []int
	bus.AddKeyHandler("match", HandlerFunc[string, int](func(key string, e int) {
		keyed = append(keyed, e)
	}))

	bus.OnEvent("match", 1)
	bus.OnEvent("other", 2)

	require.Equal(t, []int{1, 2}, all)
	require.Equal(t, []int{1}, keyed)
}

func TestBus_SynchronousDispatch(t *testing.T) {
	bus := NewBus[string, int]()

	fired := false
	bus.AddHandler(HandlerFunc[string, int](func(string, int) {
		fired = true
	}))

	bus.OnEvent("k", 1)
	require.True(t, fired)
}

func TestBus_ReentrantRegistration(t *testing.T) {
	bus := NewBus[string, int]()

	var second []int
	bus.AddHandler(HandlerFunc[string, int](func(key string, e int) {
		// Registering from inside a callback must not deadlock.
		bus.AddKeyHandler("k", HandlerFunc[string, int](func(key string, e int) {
			second = append(second, e)
		}))
	}))

	bus.OnEvent("k", 1)
	bus.OnEvent("k", 2)

	require.Equal(t, []int{2}, second)
}
