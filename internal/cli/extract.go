package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/creatorcheck/internal/cache"
	"github.com/ppiankov/creatorcheck/internal/dataset"
	"github.com/ppiankov/creatorcheck/internal/llm"
	"github.com/ppiankov/creatorcheck/internal/metrics"
	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/pipeline"
	"github.com/ppiankov/creatorcheck/internal/review"
)

const memoryCacheTTL = time.Hour

var (
	inputPath      string
	outputPath     string
	metricsFile    string
	recordLimit    int
	skipScore      bool
	noCache        bool
	extractTimeout time.Duration
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract authors and affiliations from creator strings",
	Long: `Extract loads raw records, routes each creator string, and resolves it:
- Simple strings are kept as a single name without any external call
- Complex strings go to the configured extractor with bounded concurrency,
  per-record retry with exponential backoff, and rate limiting
- Results are pre-scored and merged into the progress file for review

Input formats: .parquet, .jsonl, .csv (columns id, creator, title).
Output formats: .parquet, .jsonl.

Example:
  creatorcheck extract --input records.parquet --output processed.parquet
  creatorcheck extract --input sample.jsonl --limit 100 --metrics-file extract.prom`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input records (.parquet, .jsonl, .csv)")
	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "processed output (.parquet, .jsonl)")
	extractCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus textfile metrics here")
	extractCmd.Flags().IntVar(&recordLimit, "limit", 0, "process at most this many records (0 for all)")
	extractCmd.Flags().BoolVar(&skipScore, "no-score", false, "skip the automated pre-score")
	extractCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the extraction cache")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 0, "overall timeout (0 for none)")
	_ = extractCmd.MarkFlagRequired("input")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, extractTimeout)
		defer cancel()
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  creatorcheck extraction\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:        %s\n", inputPath)
	fmt.Fprintf(os.Stderr, "  Progress:     %s\n", cfg.Progress.Path)
	fmt.Fprintf(os.Stderr, "  Concurrency:  %d\n", cfg.Extraction.Concurrency)
	fmt.Fprintf(os.Stderr, "  Batch size:   %d\n", cfg.Extraction.BatchSize)
	fmt.Fprintf(os.Stderr, "\n")

	records, err := dataset.Load(inputPath, recordLimit)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d records\n", len(records))

	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(cfg))
	if err != nil {
		// Simple-only inputs still work without an extractor
		logger.Warn("extractor unavailable", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		provider = nil
	} else {
		fmt.Fprintf(os.Stderr, "  Extractor:    %s/%s\n", provider.Name(), cfg.LLM.Model)
		if closer, ok := provider.(io.Closer); ok {
			defer func() { _ = closer.Close() }()
		}
	}

	m := metrics.NewDispatch()
	opts := []pipeline.Option{
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
	}
	var results *cache.LayeredCache
	if cfg.Cache.Enabled && !noCache {
		results = cache.NewLayeredCache(memoryCacheTTL, cfg.Cache.Dir, cfg.Cache.TTL)
		if n, err := results.Prune(); err != nil {
			logger.Warn("prune extraction cache", zap.String("dir", cfg.Cache.Dir), zap.Error(err))
		} else if n > 0 {
			logger.Debug("pruned extraction cache", zap.Int("removed", n))
		}
		opts = append(opts, pipeline.WithCache(results))
	}

	fmt.Fprintf(os.Stderr, "⚙️  Extracting...\n")
	out, procErr := pipeline.NewPipeline(cfg, provider, opts...).Process(ctx, records)
	if procErr != nil && out == nil {
		if errors.Is(procErr, pipeline.ErrNoExtractor) {
			return fmt.Errorf("%w; configure llm.provider and its API key", procErr)
		}
		return fmt.Errorf("extract: %w", procErr)
	}

	if results != nil {
		st := results.Stats()
		logger.Debug("extraction cache", zap.Int64("hits", st.Hits), zap.Int64("misses", st.Misses))
	}

	progress := pipeline.Summarize(out)
	processed := pipeline.Compact(out)

	if outputPath != "" {
		if err := dataset.Write(outputPath, processed); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %d records to %s\n", len(processed), outputPath)
	}

	scored, err := seedProgress(processed)
	if err != nil {
		return err
	}

	if metricsFile != "" {
		if err := m.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Extraction complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:      %d records\n", progress.Total)
	fmt.Fprintf(os.Stderr, "  Resolved:   %d\n", progress.Resolved)
	fmt.Fprintf(os.Stderr, "  Failed:     %d\n", progress.Failed)
	fmt.Fprintf(os.Stderr, "  Pending:    %d\n", progress.Pending)
	fmt.Fprintf(os.Stderr, "  Pre-scored: %d\n", scored)
	fmt.Fprintf(os.Stderr, "\n")

	if procErr != nil {
		// Pending records are safe to resubmit
		return fmt.Errorf("extraction interrupted, %s: %w", progress, procErr)
	}
	return nil
}

// seedProgress merges processed records into the progress file, keeping any
// existing verdicts, and pre-scores the unreviewed ones
func seedProgress(records []*model.ValidationRecord) (int, error) {
	s, err := newSession(review.SystemValidator)
	if err != nil {
		return 0, err
	}
	if err := s.Open(records); err != nil {
		return 0, fmt.Errorf("open progress file: %w", err)
	}

	scored := 0
	if !skipScore {
		scored = s.PreScore(false)
	}
	return scored, saveSession(s)
}
