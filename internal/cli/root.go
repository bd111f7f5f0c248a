package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/creatorcheck/internal/logging"
	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/review"
	"github.com/ppiankov/creatorcheck/internal/score"
	"github.com/ppiankov/creatorcheck/internal/store"
)

// Version is reported by the version command and --version
const Version = "0.3.0"

const envPrefix = "CREATORCHECK"

var (
	cfgFile      string
	verbose      bool
	progressFile string

	// Loaded in PersistentPreRunE
	cfg    *model.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "creatorcheck",
	Short: "creatorcheck - author extraction and quality review for creator metadata",
	Long: `creatorcheck splits free-text creator fields from repository metadata into
personal names and affiliations, scores each extraction, and keeps a
crash-safe progress file for human review.

Simple creator strings are parsed locally. Complex ones go to an external
extractor with bounded concurrency, retry and rate limiting.

Scores are heuristic estimates, not ground truth.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Root returns the command tree for the entry point
func Root() *cobra.Command {
	return rootCmd
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of creatorcheck.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("creatorcheck v%s\n", Version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.creatorcheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&progressFile, "progress", "", "progress file (overrides progress.path)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// setup loads .env, the config file and environment, then builds the logger
func setup(cmd *cobra.Command, args []string) error {
	// Load .env file if present (ignore errors)
	_ = godotenv.Load()

	loaded, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if progressFile != "" {
		loaded.Progress.Path = progressFile
	}
	if verbose {
		loaded.Log.Level = "debug"
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logging.New(loaded.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cfg = loaded
	logger = l
	return nil
}

// loadConfig reads the config file and CREATORCHECK_* variables over the defaults
func loadConfig(v *viper.Viper) (*model.Config, error) {
	if cfgFile != "" {
		// Use config file from the flag
		v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		// Search for config in home directory
		v.AddConfigPath(filepath.Join(home, ".creatorcheck"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// Read in environment variables that match CREATORCHECK_*
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := registerDefaults(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}

	c := model.DefaultConfig()
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// registerDefaults makes every config key known to viper so that
// AutomaticEnv can override keys absent from the config file
func registerDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	setDefaults(v, "", tree)

	// omitempty keys that still take environment overrides
	for _, key := range []string{"llm.api_key", "llm.base_url", "http.http_proxy", "http.https_proxy"} {
		v.SetDefault(key, "")
	}
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// openStore builds the progress store from the loaded config
func openStore() *store.ProgressStore {
	return store.NewProgressStore(cfg.Progress.Path,
		store.WithMaxBackups(cfg.Progress.MaxBackups),
		store.WithAutoBackupInterval(cfg.Progress.AutoBackupInterval),
		store.WithLogger(logger))
}

// newSession builds a review session over the progress store
func newSession(validator string) (*review.Session, error) {
	scorer, err := score.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("create scorer: %w", err)
	}
	return review.NewSession(openStore(), scorer, validator, review.WithSessionLogger(logger)), nil
}

// openSaved opens a session over the records already in the progress file
func openSaved(validator string) (*review.Session, error) {
	s, err := newSession(validator)
	if err != nil {
		return nil, err
	}
	if err := s.OpenSaved(); err != nil {
		return nil, fmt.Errorf("open progress file: %w", err)
	}
	if len(s.Records()) == 0 {
		return nil, fmt.Errorf("no records in %s; run 'creatorcheck extract' first", cfg.Progress.Path)
	}
	return s, nil
}

// saveSession persists a session and reports where it went
func saveSession(s *review.Session) error {
	path, err := s.Save()
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if path != cfg.Progress.Path {
		fmt.Fprintf(os.Stderr, "⚠️  Progress file could not be written; recovery copy saved to %s\n", path)
		return nil
	}
	logger.Debug("progress saved", zap.String("path", path))
	return nil
}
