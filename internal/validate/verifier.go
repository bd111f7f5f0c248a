package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/creatorcheck/internal/logging"
	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/util"
	"github.com/ppiankov/creatorcheck/internal/worker"
)

const (
	sourceCrossRef = "crossref"
	sourceORCID    = "orcid"

	crossRefRows = 5
	orcidRows    = 5

	sourcesPerSecond = 1

	// ORCID hits say less about a record than a matching title
	orcidWeight = 0.7

	titleMatchThreshold = 0.3
	highConfidence      = 0.7
	mediumConfidence    = 0.4
)

// Recommendations attached to every report
const (
	RecommendHigh   = "high confidence: extraction likely correct"
	RecommendMedium = "medium confidence: needs manual confirmation"
	RecommendLow    = "low confidence: possible extraction problem"
)

// validateSleepFunc is the sleep function used between retries (injectable for tests)
var validateSleepFunc = time.Sleep

// SourceResult is the outcome of one external lookup
type SourceResult struct {
	Source       string  `json:"source"`
	Query        string  `json:"query"`
	ResultsFound int     `json:"results_found"`
	TitleMatch   bool    `json:"title_match,omitempty"`
	Confidence   float64 `json:"confidence_score"`
	DOI          string  `json:"doi,omitempty"`
	StatusCode   int     `json:"status_code,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Report combines all lookups for one record
type Report struct {
	Timestamp         time.Time     `json:"timestamp"`
	SearchURLs        []SearchURL   `json:"search_urls"`
	CrossRef          *SourceResult `json:"crossref,omitempty"`
	ORCID             *SourceResult `json:"orcid,omitempty"`
	OverallConfidence float64       `json:"overall_confidence"`
	Recommendation    string        `json:"recommendation"`
}

// Map converts the report into the generic blob stored on a record
func (r Report) Map() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}

// Verifier looks records up in external bibliographic services concurrently
type Verifier struct {
	httpClient *http.Client
	cfg        model.VerificationConfig
	maxWorkers int
	retries    int
	limiter    *worker.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithHTTPClient replaces the outbound client
func WithHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) { v.httpClient = c }
}

// WithLimiter replaces the per-source rate limiter
func WithLimiter(l *worker.Limiter) VerifierOption {
	return func(v *Verifier) { v.limiter = l }
}

// WithVerifierLogger sets the logger
func WithVerifierLogger(l *zap.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logging.OrNop(l) }
}

// WithVerifierClock replaces time.Now for report timestamps
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier. By default each source is queried at most
// once per second.
func NewVerifier(cfg model.VerificationConfig, httpCfg model.HTTPConfig, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		httpClient: util.NewHTTPClient(httpCfg),
		cfg:        cfg,
		maxWorkers: cfg.Workers,
		retries:    cfg.Retries,
		limiter:    sourceLimiter(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	if v.maxWorkers <= 0 {
		v.maxWorkers = 2
	}
	if v.retries <= 0 {
		v.retries = 1
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// sourceLimiter paces each lookup service at one request per second
func sourceLimiter() *worker.Limiter {
	l := worker.NewLimiter(0, 1)
	l.SetRate(sourceCrossRef, sourcesPerSecond, 1)
	l.SetRate(sourceORCID, sourcesPerSecond, 1)
	return l
}

// Verify runs every enabled lookup for one title and author list
func (v *Verifier) Verify(ctx context.Context, title, authors string) map[string]any {
	return v.Check(ctx, title, authors).Map()
}

// Check is Verify with a typed result
func (v *Verifier) Check(ctx context.Context, title, authors string) Report {
	report := Report{
		Timestamp:  v.now().UTC(),
		SearchURLs: SearchURLs(title, authors),
	}

	if v.cfg.CrossRef.Enabled && strings.TrimSpace(title) != "" {
		r := v.searchCrossRef(ctx, title, authors)
		report.CrossRef = &r
	}
	if first := FirstAuthor(authors); v.cfg.ORCID.Enabled && first != "" {
		r := v.searchORCID(ctx, first)
		report.ORCID = &r
	}

	report.OverallConfidence = overallConfidence(report.CrossRef, report.ORCID)
	report.Recommendation = recommend(report.OverallConfidence)
	return report
}

// VerifyAll verifies records concurrently and stores each report on its
// record. Records not reached before ctx is done are left untouched. It
// returns the number of records verified.
func (v *Verifier) VerifyAll(ctx context.Context, records []*model.ValidationRecord) int {
	var verified atomic.Int64
	var wg sync.WaitGroup

	// Create semaphore to limit concurrent lookups
	semaphore := make(chan struct{}, v.maxWorkers)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		wg.Add(1)
		go func(rec *model.ValidationRecord) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				return
			}

			authors := rec.ProcessedAuthors
			if authors == "" {
				authors = rec.OriginalCreator
			}
			report := v.Check(ctx, rec.Title, authors)
			rec.ExternalVerification = report.Map()
			verified.Add(1)

			v.logger.Debug("record verified",
				zap.String("record_id", rec.RecordID),
				zap.Float64("confidence", report.OverallConfidence))
		}(rec)
	}

	wg.Wait()
	return int(verified.Load())
}

type crossRefResponse struct {
	Message struct {
		TotalResults int `json:"total-results"`
		Items        []struct {
			Title []string `json:"title"`
			DOI   string   `json:"DOI"`
		} `json:"items"`
	} `json:"message"`
}

func (v *Verifier) searchCrossRef(ctx context.Context, title, authors string) SourceResult {
	clean := cleanTitle(title)
	query := strings.TrimSpace(clean + " " + FirstAuthor(authors))
	result := SourceResult{Source: sourceCrossRef, Query: query}

	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", fmt.Sprint(crossRefRows))
	params.Set("select", "title,author,DOI,URL")

	var body crossRefResponse
	status, err := v.getJSONWithRetry(ctx, sourceCrossRef, v.cfg.CrossRef.APIURL, params, &body)
	result.StatusCode = status
	if err != nil {
		result.Error = err.Error()
		return result
	}

	items := body.Message.Items
	result.ResultsFound = len(items)
	if len(items) > 0 && len(items[0].Title) > 0 {
		result.Confidence = titleOverlap(clean, items[0].Title[0])
		result.TitleMatch = result.Confidence > titleMatchThreshold
		result.DOI = items[0].DOI
	}
	return result
}

type orcidResponse struct {
	NumFound int               `json:"num-found"`
	Result   []json.RawMessage `json:"result"`
}

func (v *Verifier) searchORCID(ctx context.Context, author string) SourceResult {
	query := fmt.Sprintf("given-names:%s OR family-name:%s", author, author)
	result := SourceResult{Source: sourceORCID, Query: query}

	params := url.Values{}
	params.Set("q", query)
	params.Set("rows", fmt.Sprint(orcidRows))

	var body orcidResponse
	status, err := v.getJSONWithRetry(ctx, sourceORCID, v.cfg.ORCID.APIURL, params, &body)
	result.StatusCode = status
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.ResultsFound = len(body.Result)
	result.Confidence = min(1, float64(len(body.Result))/orcidRows)
	return result
}

// getJSONWithRetry retries transient failures with exponential backoff
func (v *Verifier) getJSONWithRetry(ctx context.Context, source, endpoint string, params url.Values, out any) (int, error) {
	var status int
	var err error
	for attempt := 0; attempt < v.retries; attempt++ {
		status, err = v.getJSON(ctx, source, endpoint, params, out)
		if err == nil || !isRetryable(status, err) || ctx.Err() != nil {
			return status, err
		}
		if attempt < v.retries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			v.logger.Debug("retrying lookup",
				zap.String("source", source),
				zap.Int("status", status),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			validateSleepFunc(backoff)
		}
	}
	return status, err
}

func (v *Verifier) getJSON(ctx context.Context, source, endpoint string, params url.Values, out any) (int, error) {
	if err := v.limiter.Wait(ctx, source); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("%s returned status %d", source, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", source, err)
	}
	return resp.StatusCode, nil
}

// isRetryable returns true for responses that indicate transient failures
func isRetryable(status int, err error) bool {
	// Retry on 5xx server errors
	if status >= 500 && status < 600 {
		return true
	}
	// Retry on 429 rate limit
	if status == http.StatusTooManyRequests {
		return true
	}
	// Retry on network errors (timeout, connection refused)
	if status == 0 && err != nil {
		return isRetryableNetworkError(err.Error())
	}
	return false
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// overallConfidence averages the non-zero source confidences
func overallConfidence(crossRef, orcid *SourceResult) float64 {
	var sum float64
	var n int
	if crossRef != nil && crossRef.Confidence > 0 {
		sum += crossRef.Confidence
		n++
	}
	if orcid != nil && orcid.Confidence > 0 {
		sum += orcid.Confidence * orcidWeight
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func recommend(confidence float64) string {
	switch {
	case confidence > highConfidence:
		return RecommendHigh
	case confidence > mediumConfidence:
		return RecommendMedium
	default:
		return RecommendLow
	}
}
