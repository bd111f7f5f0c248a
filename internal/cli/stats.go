package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/creatorcheck/internal/review"
)

var statsFormat string

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize review results",
	Long: `Stats reports completion, accuracy overall and by complexity, the status
distribution, per-dimension score distributions and extraction failures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSaved(review.SystemValidator)
		if err != nil {
			return err
		}
		st := review.ComputeStatistics(s.Records())

		switch statsFormat {
		case "yaml":
			data, err := yaml.Marshal(st)
			if err != nil {
				return fmt.Errorf("marshal statistics: %w", err)
			}
			fmt.Print(string(data))
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return fmt.Errorf("encode statistics: %w", err)
			}
		default:
			return fmt.Errorf("unknown format %q (want yaml or json)", statsFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsFormat, "format", "yaml", "output format (yaml, json)")
}
