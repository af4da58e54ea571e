package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is reported by jobs submitted after Close.
var ErrPoolClosed = errors.New("parallel: pool closed")

// WorkerPool runs tile copy work on a fixed set of goroutines.
//
// Each worker has its own queue and steals from the others when it runs
// dry, so one slow read does not stall the remaining copies of a batch.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	// next is the round-robin queue cursor.
	next atomic.Uint32
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)
	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Job tracks a group of work items started together.
type Job struct {
	pending atomic.Int64
	errOnce sync.Once
	err     error
	done    chan struct{}
}

func newJob(n int) *Job {
	j := &Job{done: make(chan struct{})}
	j.pending.Store(int64(n))
	if n == 0 {
		close(j.done)
	}
	return j
}

func (j *Job) finish(err error) {
	if err != nil {
		j.errOnce.Do(func() { j.err = err })
	}
	if j.pending.Add(-1) == 0 {
		close(j.done)
	}
}

// Done reports whether every item has finished.
func (j *Job) Done() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Wait blocks until every item has finished and returns the first error.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Err returns the first error once the job is done, nil before.
func (j *Job) Err() error {
	if !j.Done() {
		return nil
	}
	return j.err
}

// Start queues every item of work and returns immediately. Items are
// spread round-robin across the worker queues; Start blocks only while a
// queue is full.
func (p *WorkerPool) Start(work []func() error) *Job {
	j := newJob(len(work))
	for _, fn := range work {
		if !p.running.Load() {
			j.finish(ErrPoolClosed)
			continue
		}
		q := p.workQueues[int(p.next.Add(1)-1)%p.workers]
		item := fn
		select {
		case q <- func() { j.finish(item()) }:
		case <-p.done:
			j.finish(ErrPoolClosed)
		}
	}
	return j
}

// Close stops accepting work, runs what is queued and stops the workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the approximate number of queued items.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}
