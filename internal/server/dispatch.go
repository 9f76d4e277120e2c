package server

import (
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sirosfoundation/linesearch/pkg/config"
)

// Dispatcher runs connection jobs off the accept loop. Dispatch never blocks;
// it returns false when the job was not admitted.
type Dispatcher interface {
	Dispatch(job func()) bool
	// Wait blocks until every admitted job has returned
	Wait()
	Close()
	Name() string
}

// NewDispatcher selects the dispatch strategy
func NewDispatcher(cfg config.DispatchConfig) (Dispatcher, error) {
	switch cfg.Strategy {
	case "", config.StrategyPerConnection:
		return NewPerConnection(cfg.MaxConnections), nil
	case config.StrategyPool:
		return NewPool(cfg.PoolSize, cfg.QueueSize), nil
	default:
		return nil, fmt.Errorf("unknown dispatch strategy: %s", cfg.Strategy)
	}
}

// PerConnection starts a goroutine per job, optionally capped by a semaphore
type PerConnection struct {
	sem *semaphore.Weighted // nil: unbounded
	wg  sync.WaitGroup
}

// NewPerConnection creates the dispatcher. max <= 0 means unbounded.
func NewPerConnection(max int) *PerConnection {
	d := &PerConnection{}
	if max > 0 {
		d.sem = semaphore.NewWeighted(int64(max))
	}
	return d
}

func (d *PerConnection) Dispatch(job func()) bool {
	if d.sem != nil && !d.sem.TryAcquire(1) {
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.sem != nil {
			defer d.sem.Release(1)
		}
		job()
	}()
	return true
}

func (d *PerConnection) Wait()        { d.wg.Wait() }
func (d *PerConnection) Close()       {}
func (d *PerConnection) Name() string { return config.StrategyPerConnection }

// Pool runs jobs on a fixed set of workers fed by a bounded queue
type Pool struct {
	jobs    chan func()
	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers. queue is the number of jobs that may wait for
// a free worker.
func NewPool(size, queue int) *Pool {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{jobs: make(chan func(), queue)}
	for i := 0; i < size; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for job := range p.jobs {
		job()
		p.pending.Done()
	}
}

func (p *Pool) Dispatch(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	p.pending.Add(1)
	select {
	case p.jobs <- job:
		return true
	default:
		p.pending.Done()
		return false
	}
}

func (p *Pool) Wait() { p.pending.Wait() }

// Close stops the workers once queued jobs have drained
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.workers.Wait()
}

func (p *Pool) Name() string { return config.StrategyPool }
