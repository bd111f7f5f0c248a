package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/creatorcheck/internal/llm"
	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/score"
	"github.com/ppiankov/creatorcheck/internal/worker"
)

// stubExtractor splits on ";" and fails for texts listed in failOn
type stubExtractor struct {
	calls  atomic.Int32
	delay  func(text string) time.Duration
	failOn map[string]bool
}

func (s *stubExtractor) Name() string { return "stub" }

func (s *stubExtractor) IsAvailable(ctx context.Context) bool { return true }

func (s *stubExtractor) Extract(ctx context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	s.calls.Add(1)
	if s.delay != nil {
		select {
		case <-time.After(s.delay(req.Text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failOn[req.Text] {
		return nil, errors.New("service unavailable")
	}

	result := model.ExtractionResult{Affiliations: []string{}}
	for _, part := range strings.Split(req.Text, ";") {
		result.Authors = append(result.Authors, strings.TrimSpace(part))
	}
	return &llm.ExtractResponse{Result: result}, nil
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Extraction.Concurrency = 4
	cfg.Extraction.BatchSize = 3
	cfg.RateLimiting.RequestsPerSecond = 0
	return cfg
}

func fastRetry(attempts int) worker.RetryPolicy {
	return worker.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestProcess_OrderPreserved(t *testing.T) {
	ext := &stubExtractor{
		// Earlier records take longer so completions arrive reversed
		delay: func(text string) time.Duration {
			return time.Duration(20-len(text)%20) * time.Millisecond
		},
	}
	p := NewPipeline(testConfig(), ext, WithRetryPolicy(fastRetry(1)))

	var records []model.RawRecord
	for i := 0; i < 25; i++ {
		creator := "Jane Smith"
		if i%2 == 0 {
			creator = strings.Repeat("A", i+1) + ", B; Doe, Jane"
		}
		records = append(records, model.RawRecord{ID: string(rune('a' + i)), Creator: creator, Title: "T"})
	}

	out, err := p.Process(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, len(records))

	for i, rec := range out {
		require.NotNil(t, rec, "slot %d", i)
		assert.Equal(t, records[i].ID, rec.RecordID, "slot %d", i)
		assert.Equal(t, records[i].Creator, rec.OriginalCreator)
	}
	assert.Equal(t, int32(13), ext.calls.Load())
}

func TestProcess_SimplePathFidelity(t *testing.T) {
	p := NewPipeline(testConfig(), nil)

	records := []model.RawRecord{
		{ID: "1", Creator: "Jane Smith"},
		{ID: "2", Creator: "de la Cruz María"},
		{ID: "3", Creator: "  van  der Berg\tPieter "},
		{ID: "4", Creator: ""},
	}

	out, err := p.Process(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, "Jane Smith", out[0].ProcessedAuthors)
	assert.Equal(t, "de la Cruz María", out[1].ProcessedAuthors)
	assert.Equal(t, "van der Berg Pieter", out[2].ProcessedAuthors)
	assert.Equal(t, "", out[3].ProcessedAuthors)
	for _, rec := range out {
		assert.Equal(t, model.RouteSimple, rec.Route)
		assert.Empty(t, rec.ProcessedAffiliations)
		assert.NotNil(t, rec.ProcessedAffiliations)
	}
}

func TestProcess_NoExtractor(t *testing.T) {
	p := NewPipeline(testConfig(), nil)

	_, err := p.Process(context.Background(), []model.RawRecord{{ID: "1", Creator: "Smith, J.; Doe, A."}})
	assert.ErrorIs(t, err, ErrNoExtractor)
}

func TestProcess_EndToEnd(t *testing.T) {
	cfg := testConfig()
	p := NewPipeline(cfg, &stubExtractor{}, WithRetryPolicy(fastRetry(1)))

	out, err := p.Process(context.Background(), []model.RawRecord{
		{ID: "1", Creator: "Smith, John; Doe, Jane", Title: "X"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec := out[0]
	assert.Equal(t, model.RouteComplex, rec.Route)
	assert.Equal(t, "Smith, John; Doe, Jane", rec.ProcessedAuthors)
	assert.Equal(t, 2, rec.AuthorCount)
	assert.False(t, rec.ExtractionFailed)

	scorer, err := score.NewScorer(cfg.Scoring)
	require.NoError(t, err)
	a := scorer.Score(rec)
	assert.Equal(t, 5, a.Separation.Score)
	assert.Equal(t, model.StatusCorrect, a.Status)
}

func TestProcess_FailureIsolated(t *testing.T) {
	ext := &stubExtractor{failOn: map[string]bool{"Bad, One; Bad, Two": true}}
	p := NewPipeline(testConfig(), ext, WithRetryPolicy(fastRetry(3)))

	records := []model.RawRecord{
		{ID: "1", Creator: "Smith, John; Doe, Jane"},
		{ID: "2", Creator: "Bad, One; Bad, Two"},
		{ID: "3", Creator: "Li, Wei & Kim, Min"},
	}

	out, err := p.Process(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 3)

	failed := out[1]
	assert.True(t, failed.ExtractionFailed)
	assert.Equal(t, "", failed.ProcessedAuthors)
	assert.Empty(t, failed.ProcessedAffiliations)
	assert.Contains(t, failed.ExtractionError, "service unavailable")

	assert.False(t, out[0].ExtractionFailed)
	assert.False(t, out[2].ExtractionFailed)
	assert.Equal(t, "Li, Wei & Kim, Min", out[2].ProcessedAuthors)

	progress := Summarize(out)
	assert.Equal(t, Progress{Total: 3, Resolved: 2, Failed: 1}, progress)
	assert.Equal(t, "1 of 3 records are awaiting extraction/failed", progress.String())
}

func TestProcess_Cancelled(t *testing.T) {
	ext := &stubExtractor{delay: func(string) time.Duration { return time.Second }}
	cfg := testConfig()
	cfg.Extraction.Concurrency = 1
	p := NewPipeline(cfg, ext, WithRetryPolicy(fastRetry(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	records := []model.RawRecord{
		{ID: "1", Creator: "Jane Smith"},
		{ID: "2", Creator: "Smith, J.; Doe, A."},
		{ID: "3", Creator: "Li, W.; Kim, M."},
	}

	out, err := p.Process(ctx, records)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, out, 3)

	require.NotNil(t, out[0])
	assert.Nil(t, out[1])
	assert.Nil(t, out[2])

	progress := Summarize(out)
	assert.Equal(t, 2, progress.Pending)
	assert.Len(t, Compact(out), 1)
}

func TestBuildRecord(t *testing.T) {
	cfg := model.DefaultConfig()
	raw := model.RawRecord{ID: "7", Creator: "<b>Smith, J.</b>; Doe, A.", Title: "Paper"}

	rec := BuildRecord(raw, "Smith, J. ; Doe, A.", model.RouteComplex, model.ExtractionResult{
		Authors:      []string{" Smith, J. ", "", "Doe, A."},
		Affiliations: []string{"MIT "},
	}, nil, cfg.Complexity)

	assert.Equal(t, "7", rec.RecordID)
	assert.Equal(t, "Paper", rec.Title)
	assert.Equal(t, raw.Creator, rec.OriginalCreator)
	assert.Equal(t, "Smith, J.; Doe, A.", rec.ProcessedAuthors)
	assert.Equal(t, []string{"MIT"}, rec.ProcessedAffiliations)
	assert.Equal(t, 2, rec.AuthorCount)
	assert.Equal(t, len([]rune(raw.Creator)), rec.CreatorLength)
	assert.Equal(t, model.ComplexityMedium, rec.ComplexityLevel)
	assert.Equal(t, model.StatusUnset, rec.OverallStatus)
	assert.Nil(t, rec.AuthorSeparationScore)

	failed := BuildRecord(raw, "x", model.RouteComplex, model.ExtractionResult{}, errors.New("boom"), cfg.Complexity)
	assert.True(t, failed.ExtractionFailed)
	assert.Equal(t, "boom", failed.ExtractionError)
	assert.NotNil(t, failed.ProcessedAffiliations)
}
