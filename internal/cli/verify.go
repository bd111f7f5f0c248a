package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/review"
	"github.com/ppiankov/creatorcheck/internal/validate"
)

var (
	verifyLimit int
	verifyAll   bool
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Look records up in CrossRef and ORCID",
	Long: `Verify queries the enabled external services for each record's title and
first author and stores the result as external_verification:
- CrossRef: word overlap between the title and the best hit
- ORCID: number of matching researcher profiles
- Search links for Google Scholar, Semantic Scholar and PubMed

Confidence is a hint for reviewers, not a verdict.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		s, err := openSaved(review.SystemValidator)
		if err != nil {
			return err
		}

		var todo []*model.ValidationRecord
		for _, rec := range s.Records() {
			if !verifyAll && rec.ExternalVerification != nil {
				continue
			}
			if verifyLimit > 0 && len(todo) >= verifyLimit {
				break
			}
			todo = append(todo, rec)
		}
		if len(todo) == 0 {
			fmt.Fprintf(os.Stderr, "Nothing to verify\n")
			return nil
		}

		fmt.Fprintf(os.Stderr, "⚙️  Verifying %d records with %d workers...\n", len(todo), cfg.Verification.Workers)
		v := validate.NewVerifier(cfg.Verification, cfg.HTTP, validate.WithVerifierLogger(logger))
		n := v.VerifyAll(ctx, todo)

		// Keep whatever finished, even after an interrupt
		if err := saveSession(s); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Verified %d of %d records\n", n, len(todo))
		return ctx.Err()
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().IntVar(&verifyLimit, "limit", 0, "verify at most this many records (0 for all)")
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "re-verify records that already have a result")
}
