package event

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var fired int32
	d := NewDebouncer(20*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	d.Trigger()
	d.Trigger()
	d.Trigger()
	require.True(t, d.Pending())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, 5*time.Millisecond)
	require.False(t, d.Pending())

	// A new burst fires again.
	d.Trigger()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_Cancel(t *testing.T) {
	var fired int32
	d := NewDebouncer(10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	d.Trigger()
	d.Cancel()
	require.False(t, d.Pending())

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
