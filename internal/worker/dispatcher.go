package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/creatorcheck/internal/cache"
	"github.com/ppiankov/creatorcheck/internal/llm"
	"github.com/ppiankov/creatorcheck/internal/metrics"
	"github.com/ppiankov/creatorcheck/internal/model"
)

// Item is one complex record waiting for extraction
type Item struct {
	Index int    // Position in the caller's input
	Text  string // Normalized creator string
}

// Outcome is the resolved extraction for one Item
type Outcome struct {
	Index    int
	Result   model.ExtractionResult
	Attempts int
	Cached   bool
	Err      error // Set when every attempt failed; Result is then empty
}

// GetError returns the extraction error
func (o *Outcome) GetError() error {
	return o.Err
}

// Dispatcher queues complex records and runs one extractor call per record
// on a bounded pool
type Dispatcher struct {
	provider  llm.Provider
	model     string
	batchSize int

	pool    *Pool
	limiter *Limiter
	policy  RetryPolicy

	cache          cache.Cache
	cacheTTL       time.Duration
	callTimeout    time.Duration
	verifyFidelity bool

	metrics *metrics.Dispatch
	logger  *zap.Logger

	pending []Item
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithBatchSize sets how many items are queued before a flush
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithRetryPolicy replaces the default single-attempt policy
func WithRetryPolicy(p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithLimiter rate-limits calls per provider
func WithLimiter(l *Limiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithCache memoizes results by provider, model and text
func WithCache(c cache.Cache, ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.cache = c
		d.cacheTTL = ttl
	}
}

// WithCallTimeout bounds a single extractor call
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.callTimeout = timeout }
}

// WithFidelityCheck rejects answers that rewrite names; rejections are retried
func WithFidelityCheck(enabled bool) DispatcherOption {
	return func(d *Dispatcher) { d.verifyFidelity = enabled }
}

// WithModel sets the model name used for requests and cache keys
func WithModel(name string) DispatcherOption {
	return func(d *Dispatcher) { d.model = name }
}

// WithMetrics records call metrics
func WithMetrics(m *metrics.Dispatch) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher starts concurrency workers bound to ctx
func NewDispatcher(ctx context.Context, provider llm.Provider, concurrency int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider:    provider,
		batchSize:   20,
		policy:      RetryPolicy{MaxAttempts: 1},
		callTimeout: 60 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.pool = NewPool(ctx, concurrency)
	d.pool.Start()
	return d
}

// Enqueue adds an item, flushing the batch into the pool once it is full
func (d *Dispatcher) Enqueue(item Item) {
	d.pending = append(d.pending, item)
	if len(d.pending) >= d.batchSize {
		d.flush()
	}
}

func (d *Dispatcher) flush() {
	if len(d.pending) == 0 {
		return
	}
	d.logger.Debug("flushing extraction batch", zap.Int("size", len(d.pending)))
	for _, item := range d.pending {
		if !d.pool.Submit(&extractJob{d: d, item: item}) {
			break
		}
	}
	d.pending = d.pending[:0]
}

// Wait flushes the tail batch and returns outcomes in enqueue order. Items
// that never ran because the context was cancelled are omitted.
func (d *Dispatcher) Wait() []Outcome {
	d.flush()
	results := d.pool.Wait()

	outcomes := make([]Outcome, 0, len(results))
	for _, r := range results {
		if out, ok := r.(*Outcome); ok && out != nil {
			outcomes = append(outcomes, *out)
		}
	}
	return outcomes
}

// Shutdown abandons queued items
func (d *Dispatcher) Shutdown() {
	d.pool.Shutdown()
}

type extractJob struct {
	d    *Dispatcher
	item Item
}

func (j *extractJob) Execute(ctx context.Context) Result {
	return j.d.extract(ctx, j.item)
}

func (d *Dispatcher) extract(ctx context.Context, item Item) Result {
	name := d.provider.Name()
	out := &Outcome{Index: item.Index}

	key := cache.ExtractionKey(name, d.model, item.Text)
	if res, ok := cache.GetResult(d.cache, key); ok {
		d.metrics.CacheHit()
		out.Result = *res
		out.Cached = true
		return out
	}

	var result model.ExtractionResult
	attempts, err := d.policy.Do(ctx, func(ctx context.Context) error {
		if err := d.limiter.Wait(ctx, name); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		done := d.metrics.CallStarted(name)
		resp, err := d.provider.Extract(callCtx, llm.ExtractRequest{Text: item.Text, Model: d.model})
		if err == nil && d.verifyFidelity {
			err = llm.CheckFidelity(item.Text, resp.Result)
		}
		done(err)

		if err != nil {
			d.logger.Debug("extraction attempt failed",
				zap.Int("index", item.Index),
				zap.String("provider", name),
				zap.Error(err))
			return err
		}
		result = resp.Result
		return nil
	})
	for i := 1; i < attempts; i++ {
		d.metrics.Retry(name)
	}
	out.Attempts = attempts

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled rather than failed; the caller treats the record as unprocessed
			return nil
		}
		d.logger.Warn("extraction failed",
			zap.Int("index", item.Index),
			zap.String("provider", name),
			zap.Int("attempts", attempts),
			zap.Error(err))
		out.Result = model.ExtractionResult{Authors: []string{}, Affiliations: []string{}}
		out.Err = err
		return out
	}

	if result.Authors == nil {
		result.Authors = []string{}
	}
	if result.Affiliations == nil {
		result.Affiliations = []string{}
	}
	out.Result = result

	if err := cache.SetResult(d.cache, key, &result, d.cacheTTL); err != nil {
		d.logger.Debug("cache write failed", zap.Error(err))
	}
	return out
}
