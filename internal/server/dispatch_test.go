package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/linesearch/pkg/config"
)

func TestNewDispatcher(t *testing.T) {
	d, err := NewDispatcher(config.DispatchConfig{Strategy: config.StrategyPerConnection})
	require.NoError(t, err)
	assert.Equal(t, "per_connection", d.Name())

	d, err = NewDispatcher(config.DispatchConfig{Strategy: config.StrategyPool, PoolSize: 2, QueueSize: 1})
	require.NoError(t, err)
	assert.Equal(t, "pool", d.Name())
	d.Close()

	_, err = NewDispatcher(config.DispatchConfig{Strategy: "event_loop"})
	assert.Error(t, err)
}

func TestPerConnection_Unbounded(t *testing.T) {
	d := NewPerConnection(0)

	var ran atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 50; i++ {
		require.True(t, d.Dispatch(func() {
			<-release
			ran.Add(1)
		}))
	}
	close(release)
	d.Wait()
	assert.Equal(t, int32(50), ran.Load())
}

func TestPerConnection_Bounded(t *testing.T) {
	d := NewPerConnection(2)

	release := make(chan struct{})
	block := func() { <-release }

	assert.True(t, d.Dispatch(block))
	assert.True(t, d.Dispatch(block))
	assert.False(t, d.Dispatch(block), "third job exceeds the cap")

	close(release)
	d.Wait()

	assert.True(t, d.Dispatch(func() {}), "capacity returns after jobs finish")
	d.Wait()
}

func TestPool_QueueBound(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	require.True(t, p.Dispatch(func() {
		close(started)
		<-release
	}))
	<-started

	// the worker is busy; one job may wait in the queue
	assert.True(t, p.Dispatch(func() {}))
	assert.False(t, p.Dispatch(func() {}), "queue is full")

	close(release)
	p.Wait()
}

func TestPool_RunsConcurrently(t *testing.T) {
	p := NewPool(4, 16)
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(4)
	barrier := make(chan struct{})
	for i := 0; i < 4; i++ {
		require.True(t, p.Dispatch(func() {
			wg.Done()
			<-barrier
		}))
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not run concurrently")
	}
	close(barrier)
	p.Wait()
}

func TestPool_CloseRejects(t *testing.T) {
	p := NewPool(1, 0)
	p.Close()
	p.Close()
	assert.False(t, p.Dispatch(func() {}))
}
