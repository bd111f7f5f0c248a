package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/creatorcheck/internal/review"
)

var forceScore bool

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Pre-score records in the progress file",
	Long: `Score runs the automated quality scorer over records that have no verdict yet.

With --force, records previously scored by the system are rescored as well.
Verdicts recorded by a person are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSaved(review.SystemValidator)
		if err != nil {
			return err
		}

		n := s.PreScore(forceScore)
		if err := saveSession(s); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "✓ Scored %d records\n", n)
		fmt.Fprintf(os.Stderr, "  %s\n", s.Progress())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().BoolVar(&forceScore, "force", false, "rescore records previously scored by the system")
}
