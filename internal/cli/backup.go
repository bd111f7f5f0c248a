package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/creatorcheck/internal/store"
)

var backupReason string

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage progress file backups",
	Long: `Backup lists, creates, verifies and restores backups of the progress file.

Backups live next to the progress file in a backups/ directory. Only the
newest progress.max_backups are kept. A restore first backs up the current
file, so it can itself be undone.`,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		backups, err := openStore().ListBackups()
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		for _, b := range backups {
			fmt.Printf("%-48s %-12s %s  %d bytes\n", b.Name, b.Reason, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Size)
		}
		fmt.Fprintf(os.Stderr, "\n%d backups\n", len(backups))
		return nil
	},
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the progress file now",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := openStore().CreateBackup(backupReason)
		if err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
		if path == "" {
			fmt.Fprintf(os.Stderr, "No progress file to back up\n")
			return nil
		}
		fmt.Fprintf(os.Stderr, "✓ Created %s\n", path)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup>",
	Short: "Restore the progress file from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		path := resolveBackup(st, args[0])
		if !st.Restore(path) {
			return fmt.Errorf("restore from %s failed (see log)", path)
		}
		fmt.Fprintf(os.Stderr, "✓ Restored %s from %s\n", st.Path(), path)
		return nil
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Check the structure of the progress file or a backup",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		path := st.Path()
		if len(args) == 1 {
			path = resolveBackup(st, args[0])
		}
		if !st.VerifyIntegrity(path) {
			return fmt.Errorf("%s failed integrity check", path)
		}
		fmt.Fprintf(os.Stderr, "✓ %s is valid\n", path)
		return nil
	},
}

var backupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show progress file statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(openStore().Stats())
	},
}

// resolveBackup accepts either a path or a bare backup file name
func resolveBackup(st *store.ProgressStore, name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(st.BackupDir(), filepath.Base(name))
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupListCmd, backupCreateCmd, backupRestoreCmd, backupVerifyCmd, backupStatsCmd)
	backupCreateCmd.Flags().StringVar(&backupReason, "reason", store.ReasonManual, "reason tag in the backup name")
}
