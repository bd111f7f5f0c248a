package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type queuedJob struct {
	seq int
	job Job
}

type sequencedResult struct {
	seq    int
	result Result
}

// Pool manages a fixed set of workers. Results are drained as they arrive
// and handed back in submission order by Wait.
type Pool struct {
	workers    int
	jobQueue   chan queuedJob
	results    chan sequencedResult
	collector  *ResultCollector
	collected  chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu        sync.Mutex
	submitted int
	closed    bool

	queueOnce   sync.Once
	resultsOnce sync.Once
}

// NewPool creates a new worker pool with the specified number of workers.
// Cancelling ctx stops workers from picking up queued jobs.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	p := &Pool{
		workers:    workers,
		jobQueue:   make(chan queuedJob, workers*2),
		results:    make(chan sequencedResult, workers*2),
		collector:  NewResultCollector(),
		collected:  make(chan struct{}),
		ctx:        ctx,
		cancelFunc: cancel,
	}
	go p.collect()
	return p
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobQueue:
			if !ok {
				return
			}
			// The collector drains until every worker has exited, so this never blocks for long
			p.results <- sequencedResult{seq: q.seq, result: q.job.Execute(p.ctx)}
		}
	}
}

func (p *Pool) collect() {
	defer close(p.collected)
	for r := range p.results {
		p.collector.Add(r.seq, r.result)
	}
}

// Submit queues a job. It returns false if the pool is shut down or already waited on.
func (p *Pool) Submit(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- queuedJob{seq: p.submitted, job: job}:
		p.submitted++
		return true
	}
}

// Submitted returns the number of accepted jobs
func (p *Pool) Submitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted
}

// Wait closes the queue, waits for queued jobs to finish and returns one slot
// per submitted job in submission order. Jobs that never ran leave a nil slot.
func (p *Pool) Wait() []Result {
	p.closeQueue()
	p.wg.Wait()
	p.closeResults()
	<-p.collected

	return p.collector.Ordered(p.Submitted())
}

// Shutdown cancels the pool, abandoning queued jobs
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.closeQueue()
	p.wg.Wait()
	p.closeResults()
	<-p.collected
}

func (p *Pool) closeQueue() {
	p.queueOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.jobQueue)
	})
}

func (p *Pool) closeResults() {
	p.resultsOnce.Do(func() {
		close(p.results)
	})
}

// ResultCollector buffers results that complete out of order
type ResultCollector struct {
	results map[int]Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make(map[int]Result),
	}
}

// Add stores the result for submission sequence seq (thread-safe)
func (c *ResultCollector) Add(seq int, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[seq] = result
}

// Len returns the number of results collected so far
func (c *ResultCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Ordered returns n slots, slot i holding the result for sequence i or nil
func (c *ResultCollector) Ordered(n int) []Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	ordered := make([]Result, n)
	for seq, r := range c.results {
		if seq >= 0 && seq < n {
			ordered[seq] = r
		}
	}
	return ordered
}
