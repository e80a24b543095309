package conc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

func TestPool_Submit(t *testing.T) {
	pool := NewPool(4)
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		count atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			count.Inc()
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(16), count.Load())
	assert.Equal(t, 4, pool.Cap())
}

func TestPool_NonBlockingOverload(t *testing.T) {
	pool := NewPool(1, WithNonBlocking(true), WithPreAlloc(true))
	defer pool.Release()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, merr.ErrServiceTooManyRequests)
	close(release)
}

func TestPool_PreHandlerAndConcealPanic(t *testing.T) {
	var pre atomic.Int32
	pool := NewPool(1, WithPreHandler(func() { pre.Inc() }), WithConcealPanic(true))
	defer pool.Release()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { panic("boom") }))
	require.NoError(t, pool.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task after panic did not run")
	}
	assert.Equal(t, int32(2), pre.Load())
}

func TestPool_SubmitAfterRelease(t *testing.T) {
	pool := NewPool(1)
	pool.Release()
	assert.ErrorIs(t, pool.Submit(func() {}), merr.ErrServiceNotReady)
}

func TestPool_PanicHandler(t *testing.T) {
	recovered := make(chan any, 1)
	pool := NewPool(1, WithPanicHandler(func(v any) { recovered <- v }))
	defer pool.Release()

	require.NoError(t, pool.Submit(func() { panic("boom") }))
	select {
	case v := <-recovered:
		assert.Equal(t, "boom", v)
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
}
