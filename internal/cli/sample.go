package cli

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/creatorcheck/internal/dataset"
	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/review"
)

var (
	sampleMode   string
	sampleSeed   int64
	sampleOutput string
)

// sampleCmd represents the sample command
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Draw a review sample from the progress file",
	Long: `Sample selects records for review.

Modes:
  stratified  up to sampling.simple_size / medium_size / complex_size records
              from each complexity bucket, drawn with --seed
  targeted    every multi-author, affiliation or error-prone record

Example:
  creatorcheck sample --mode stratified --seed 7 --output sample.jsonl
  creatorcheck sample --mode targeted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSaved(review.SystemValidator)
		if err != nil {
			return err
		}

		var picked []*model.ValidationRecord
		switch sampleMode {
		case "stratified":
			picked = review.StratifiedSample(s.Records(), cfg.Sampling, rand.New(rand.NewSource(sampleSeed)))
		case "targeted":
			picked = review.TargetedAudit(s.Records(), review.DefaultAuditOptions())
		default:
			return fmt.Errorf("unknown sample mode %q (want stratified or targeted)", sampleMode)
		}

		if sampleOutput != "" {
			if err := dataset.Write(sampleOutput, picked); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
			fmt.Fprintf(os.Stderr, "✓ Wrote %d records to %s\n", len(picked), sampleOutput)
			return nil
		}

		opts := review.DefaultAuditOptions()
		for _, rec := range picked {
			reason := string(rec.ComplexityLevel)
			if sampleMode == "targeted" {
				reason = review.AuditReason(rec, opts)
			}
			fmt.Printf("%-12s %-12s %s\n", rec.RecordID, reason, rec.OriginalCreator)
		}
		fmt.Fprintf(os.Stderr, "\n%d records sampled\n", len(picked))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sampleCmd)
	sampleCmd.Flags().StringVar(&sampleMode, "mode", "stratified", "sampling mode (stratified, targeted)")
	sampleCmd.Flags().Int64Var(&sampleSeed, "seed", 42, "random seed for stratified sampling")
	sampleCmd.Flags().StringVarP(&sampleOutput, "output", "o", "", "write the sample here (.jsonl, .parquet)")
}
