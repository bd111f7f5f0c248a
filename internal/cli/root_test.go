package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/store"
)

func withConfigFile(t *testing.T, path string) {
	t.Helper()
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	withConfigFile(t, "")

	c, err := loadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), c)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
extraction:
  concurrency: 3
retry:
  base_delay: 2s
llm:
  provider: ollama
`), 0644))
	withConfigFile(t, path)

	t.Setenv("CREATORCHECK_LLM_MODEL", "llama3")
	t.Setenv("CREATORCHECK_EXTRACTION_BATCH_SIZE", "7")

	c, err := loadConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 3, c.Extraction.Concurrency)
	assert.Equal(t, 2*time.Second, c.Retry.BaseDelay)
	assert.Equal(t, "ollama", c.LLM.Provider)
	assert.Equal(t, "llama3", c.LLM.Model, "env overrides keys absent from the file")
	assert.Equal(t, 7, c.Extraction.BatchSize)

	// Untouched keys keep their defaults
	assert.Equal(t, 20*time.Second, c.Retry.MaxDelay)
	assert.Equal(t, 0.35, c.Scoring.Weights.Identification)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	withConfigFile(t, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := loadConfig(viper.New())
	assert.Error(t, err)
}

func TestDefaultConfigFile_RoundTrips(t *testing.T) {
	data, err := defaultConfigFile()
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATORCHECK_")

	var c model.Config
	require.NoError(t, yaml.Unmarshal(data, &c))
	assert.Equal(t, *model.DefaultConfig(), c)
}

func TestResolveBackup(t *testing.T) {
	dir := t.TempDir()
	st := store.NewProgressStore(filepath.Join(dir, "progress.json"))

	existing := filepath.Join(dir, "here.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0644))

	assert.Equal(t, existing, resolveBackup(st, existing))
	assert.Equal(t, filepath.Join(st.BackupDir(), "progress_manual.json"), resolveBackup(st, "progress_manual.json"))
}
