// Package pipeline turns raw creator strings into ValidationRecords.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/creatorcheck/internal/cache"
	"github.com/ppiankov/creatorcheck/internal/classify"
	"github.com/ppiankov/creatorcheck/internal/llm"
	"github.com/ppiankov/creatorcheck/internal/metrics"
	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/normalize"
	"github.com/ppiankov/creatorcheck/internal/worker"
)

// ErrNoExtractor is returned when complex records exist but no provider is configured
var ErrNoExtractor = errors.New("complex records need an extractor but none is configured")

// Pipeline orchestrates normalization, routing and extraction
type Pipeline struct {
	provider llm.Provider
	config   *model.Config

	policy  worker.RetryPolicy
	limiter *worker.Limiter
	cache   cache.Cache
	metrics *metrics.Dispatch
	logger  *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCache memoizes extractor answers
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMetrics records dispatch and per-record metrics
func WithMetrics(m *metrics.Dispatch) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetryPolicy overrides the policy derived from config
func WithRetryPolicy(policy worker.RetryPolicy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithLimiter overrides the limiter derived from config
func WithLimiter(l *worker.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// NewPipeline creates a pipeline. provider may be nil when every input is
// expected to route simple.
func NewPipeline(cfg *model.Config, provider llm.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider: provider,
		config:   cfg,
		policy:   worker.PolicyFromConfig(cfg.Retry),
		limiter:  worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process resolves every record. The output has one slot per input, in input
// order. If ctx is cancelled, slots of records that were never resolved stay
// nil and the context error is returned alongside the partial output.
func (p *Pipeline) Process(ctx context.Context, records []model.RawRecord) ([]*model.ValidationRecord, error) {
	start := time.Now()
	out := make([]*model.ValidationRecord, len(records))

	texts := make([]string, len(records))
	routes := make([]model.Route, len(records))
	complexCount := 0
	for i, raw := range records {
		texts[i] = normalize.Normalize(raw.Creator)
		routes[i] = classify.Route(texts[i])
		if routes[i] == model.RouteComplex {
			complexCount++
		}
	}

	if complexCount > 0 && p.provider == nil {
		return nil, ErrNoExtractor
	}

	var dispatcher *worker.Dispatcher
	if complexCount > 0 {
		dispatcher = worker.NewDispatcher(ctx, p.provider, p.config.Extraction.Concurrency, p.dispatcherOptions()...)
	}

	for i, raw := range records {
		if routes[i] == model.RouteSimple {
			out[i] = BuildRecord(raw, texts[i], routes[i], SimpleResult(texts[i]), nil, p.config.Complexity)
			p.metrics.Record(string(routes[i]), false)
			continue
		}
		dispatcher.Enqueue(worker.Item{Index: i, Text: texts[i]})
	}

	if dispatcher != nil {
		for _, outcome := range dispatcher.Wait() {
			raw := records[outcome.Index]
			out[outcome.Index] = BuildRecord(raw, texts[outcome.Index], model.RouteComplex,
				outcome.Result, outcome.Err, p.config.Complexity)
			p.metrics.Record(string(model.RouteComplex), outcome.Err != nil)
		}
	}

	progress := Summarize(out)
	p.logger.Info("pipeline finished",
		zap.Int("records", len(records)),
		zap.Int("complex", complexCount),
		zap.Int("failed", progress.Failed),
		zap.Int("pending", progress.Pending),
		zap.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("process records: %w", err)
	}
	return out, nil
}

func (p *Pipeline) dispatcherOptions() []worker.DispatcherOption {
	opts := []worker.DispatcherOption{
		worker.WithBatchSize(p.config.Extraction.BatchSize),
		worker.WithRetryPolicy(p.policy),
		worker.WithLimiter(p.limiter),
		worker.WithCallTimeout(p.config.Extraction.CallTimeout),
		worker.WithFidelityCheck(p.config.LLM.VerifyFidelity),
		worker.WithModel(p.config.LLM.Model),
		worker.WithMetrics(p.metrics),
		worker.WithLogger(p.logger),
	}
	if p.cache != nil {
		opts = append(opts, worker.WithCache(p.cache, p.config.Cache.TTL))
	}
	return opts
}

// SimpleResult resolves a simple-routed string locally: the whole trimmed
// text is the only author.
func SimpleResult(text string) model.ExtractionResult {
	result := model.ExtractionResult{Authors: []string{}, Affiliations: []string{}}
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		result.Authors = append(result.Authors, trimmed)
	}
	return result
}

// BuildRecord is the single place a ValidationRecord is assembled from a
// raw record and its extraction. A non-nil extractErr marks the record failed.
func BuildRecord(raw model.RawRecord, normalized string, route model.Route, result model.ExtractionResult, extractErr error, thresholds model.ComplexityConfig) *model.ValidationRecord {
	authors := cleanList(result.Authors)
	affiliations := cleanList(result.Affiliations)
	count := classify.CountAuthors(normalized)
	length := classify.Length(raw.Creator)

	rec := &model.ValidationRecord{
		RecordID:              raw.ID,
		Title:                 raw.Title,
		OriginalCreator:       raw.Creator,
		ProcessedAuthors:      strings.Join(authors, "; "),
		ProcessedAffiliations: affiliations,
		ComplexityLevel:       classify.Stratify(length, count, len(affiliations) > 0, thresholds),
		AuthorCount:           count,
		CreatorLength:         length,
		Route:                 route,
	}
	if extractErr != nil {
		rec.ExtractionFailed = true
		rec.ExtractionError = extractErr.Error()
	}
	return rec
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

// Progress counts records by extraction state
type Progress struct {
	Total    int
	Resolved int
	Failed   int
	Pending  int // Not yet processed; safe to resubmit
}

// Summarize counts resolved, failed and pending slots. Nil slots are pending.
func Summarize(records []*model.ValidationRecord) Progress {
	p := Progress{Total: len(records)}
	for _, rec := range records {
		switch {
		case rec == nil:
			p.Pending++
		case rec.ExtractionFailed:
			p.Failed++
		default:
			p.Resolved++
		}
	}
	return p
}

// Outstanding is the number of records still awaiting extraction or failed
func (p Progress) Outstanding() int {
	return p.Pending + p.Failed
}

func (p Progress) String() string {
	return fmt.Sprintf("%d of %d records are awaiting extraction/failed", p.Outstanding(), p.Total)
}

// Compact drops pending slots, keeping order
func Compact(records []*model.ValidationRecord) []*model.ValidationRecord {
	out := make([]*model.ValidationRecord, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}
