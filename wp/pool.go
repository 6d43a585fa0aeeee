package wp

import (
	"context"
	"sync"

	"github.com/segmentio/fasthash/fnv1a"
)

// Pool runs tasks on a fixed set of workers. Tasks submitted with the same
// key always run on the same worker, in submission order.
type Pool struct {
	maxWorkers int
	taskQueues []chan func()
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

func NewPool(maxWorkers int, queueBuffer int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueBuffer < 1 {
		queueBuffer = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		maxWorkers: maxWorkers,
		taskQueues: make([]chan func(), maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < maxWorkers; i++ {
		p.taskQueues[i] = make(chan func(), queueBuffer)
		p.wg.Add(1)
		go p.startWorker(p.taskQueues[i])
	}

	return p
}

func (p *Pool) startWorker(queue chan func()) {
	defer p.wg.Done()
	for {
		if p.ctx.Err() != nil {
			return
		}
		select {
		case task, ok := <-queue:
			if !ok {
				return
			}
			task()
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit queues task on the worker owning key. It blocks while that worker's
// queue is full and returns false once the pool is stopped or aborted.
func (p *Pool) Submit(key string, task func()) bool {
	if task == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}

	idx := fnv1a.HashString64(key) % uint64(p.maxWorkers)
	select {
	case p.taskQueues[idx] <- task:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Stop rejects new tasks and waits for the queued ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	for _, q := range p.taskQueues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
}

// Abort stops the workers without running queued tasks. A task already
// running is allowed to finish.
func (p *Pool) Abort() {
	p.cancel()
	p.Stop()
}
