package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/review"
)

var (
	reviewStatus     string
	verdictStatus    string
	reviewComplexity string
	reviewLimit      int
	reviewer         string
	verdictNotes     string
	verdictScores    [4]int
	resetVerdict     bool
)

// reviewCmd represents the review command
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and record review verdicts",
	Long: `Review reads and updates verdicts in the progress file.

Every change is written with the crash-safe save protocol: a pre_save backup
is taken and the new file is verified before it replaces the old one.

Example:
  creatorcheck review list --status unset --complexity complex
  creatorcheck review show 1234
  creatorcheck review set 1234 --status partial --separation 2 --notes "merged names"
  creatorcheck review progress`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records with their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSaved(reviewer)
		if err != nil {
			return err
		}

		wantStatus := strings.ToLower(reviewStatus)
		shown := 0
		for _, rec := range s.Records() {
			if wantStatus != "all" && statusLabel(rec.OverallStatus) != wantStatus {
				continue
			}
			if reviewComplexity != "" && string(rec.ComplexityLevel) != reviewComplexity {
				continue
			}
			if reviewLimit > 0 && shown >= reviewLimit {
				break
			}
			shown++
			fmt.Printf("%-12s %-8s %-10s %s\n", rec.RecordID, rec.ComplexityLevel, statusLabel(rec.OverallStatus), rec.ProcessedAuthors)
		}
		fmt.Fprintf(os.Stderr, "\n%d records shown\n", shown)
		return nil
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one record with its automated assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSaved(reviewer)
		if err != nil {
			return err
		}
		rec, ok := s.Record(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", review.ErrUnknownRecord, args[0])
		}

		fmt.Printf("Record:        %s\n", rec.RecordID)
		fmt.Printf("Title:         %s\n", rec.Title)
		fmt.Printf("Creator:       %s\n", rec.OriginalCreator)
		fmt.Printf("Authors:       %s\n", rec.ProcessedAuthors)
		fmt.Printf("Affiliations:  %s\n", strings.Join(rec.ProcessedAffiliations, "; "))
		fmt.Printf("Complexity:    %s (route %s, %d expected authors, %d chars)\n",
			rec.ComplexityLevel, rec.Route, rec.AuthorCount, rec.CreatorLength)
		if rec.ExtractionFailed {
			fmt.Printf("Extraction:    FAILED (%s)\n", rec.ExtractionError)
		}
		fmt.Printf("Status:        %s\n", statusLabel(rec.OverallStatus))
		if rec.Reviewed() {
			fmt.Printf("Validator:     %s\n", rec.ValidatorName)
		}
		if rec.Notes != "" {
			fmt.Printf("Notes:         %s\n", rec.Notes)
		}
		if rec.ExternalVerification != nil {
			fmt.Printf("Verification:  %v (confidence %v)\n",
				rec.ExternalVerification["recommendation"], rec.ExternalVerification["overall_confidence"])
		}

		a, err := s.Assess(rec.RecordID)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println("Automated assessment:")
		for _, sub := range a.SubScores() {
			fmt.Printf("  %-32s %d  %s\n", sub.Dimension, sub.Score, sub.Rationale)
		}
		fmt.Printf("  %-32s %.2f -> %s\n", "weighted", a.Weighted, a.Status)
		return nil
	},
}

var reviewSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Record a verdict for one record",
	Long: `Set records a verdict. Sub-scores left at 0 are filled from the status:
5 for correct, 3 for partial, 1 for incorrect. --reset clears the verdict.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSaved(reviewer)
		if err != nil {
			return err
		}
		id := args[0]

		if resetVerdict {
			if err := s.Reset(id); err != nil {
				return err
			}
			if err := saveSession(s); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Cleared verdict for %s\n", id)
			return nil
		}

		status, err := model.ParseStatus(verdictStatus)
		if err != nil {
			return err
		}
		v := review.QuickVerdict(status)
		for i, dst := range []*int{&v.Identification, &v.Separation, &v.Classification, &v.Formatting} {
			if verdictScores[i] != 0 {
				*dst = verdictScores[i]
			}
		}
		if cmd.Flags().Changed("notes") {
			v.Notes = verdictNotes
		}

		if err := s.Submit(id, v); err != nil {
			return err
		}
		if err := saveSession(s); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ %s marked %s\n", id, status)
		return nil
	},
}

var reviewProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show review progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSaved(reviewer)
		if err != nil {
			return err
		}
		p := s.Progress()
		fmt.Println(p)
		if p.Total > 0 {
			fmt.Printf("%.1f%% complete\n", 100*float64(p.Reviewed)/float64(p.Total))
		}
		return nil
	},
}

func statusLabel(s model.Status) string {
	if s == model.StatusUnset {
		return "unset"
	}
	return string(s)
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd, reviewSetCmd, reviewProgressCmd)

	reviewCmd.PersistentFlags().StringVar(&reviewer, "validator", os.Getenv("USER"), "reviewer name recorded with verdicts")

	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "all", "filter by status (all, unset, correct, partial, incorrect)")
	reviewListCmd.Flags().StringVar(&reviewComplexity, "complexity", "", "filter by complexity (simple, medium, complex)")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 50, "show at most this many records (0 for all)")

	reviewSetCmd.Flags().StringVar(&verdictStatus, "status", "", "verdict (correct, partial, incorrect)")
	reviewSetCmd.Flags().IntVar(&verdictScores[0], "identification", 0, "author identification score 1-5")
	reviewSetCmd.Flags().IntVar(&verdictScores[1], "separation", 0, "author separation score 1-5")
	reviewSetCmd.Flags().IntVar(&verdictScores[2], "classification", 0, "name/affiliation classification score 1-5")
	reviewSetCmd.Flags().IntVar(&verdictScores[3], "formatting", 0, "name formatting score 1-5")
	reviewSetCmd.Flags().StringVar(&verdictNotes, "notes", "", "free-text notes")
	reviewSetCmd.Flags().BoolVar(&resetVerdict, "reset", false, "clear the verdict instead of setting one")
}
