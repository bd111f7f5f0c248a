package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// stepClock advances one second on every call
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, opts ...Option) *ProgressStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validation_progress.json")
	opts = append([]Option{WithClock(newStepClock().Now)}, opts...)
	return NewProgressStore(path, opts...)
}

func snapshotOf(ids ...string) model.Snapshot {
	snap := model.Snapshot{}
	for _, id := range ids {
		snap[id] = &model.ValidationRecord{
			RecordID:              id,
			OriginalCreator:       "Smith, John; Doe, Jane",
			ProcessedAuthors:      "Smith, John; Doe, Jane",
			ProcessedAffiliations: []string{},
			AuthorCount:           2,
		}
	}
	return snap
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	return matches
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestSave_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	snap := snapshotOf("1", "2")
	status := model.StatusPartial
	snap["2"].OverallStatus = status
	snap["2"].AuthorSeparationScore = model.IntPtr(4)

	require.True(t, s.Save(snap))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, model.StatusUnset, loaded["1"].OverallStatus)
	assert.Nil(t, loaded["1"].AuthorSeparationScore)
	assert.Equal(t, status, loaded["2"].OverallStatus)
	require.NotNil(t, loaded["2"].AuthorSeparationScore)
	assert.Equal(t, 4, *loaded["2"].AuthorSeparationScore)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"overall_status": null`)
	assert.Empty(t, tempFiles(t, filepath.Dir(s.Path())))
}

func TestSave_CreatesPreSaveBackupOnlyWhenFileExists(t *testing.T) {
	s := newTestStore(t)

	require.True(t, s.Save(snapshotOf("1")))
	backups, err := s.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)

	require.True(t, s.Save(snapshotOf("1", "2")))
	backups, err = s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, ReasonPreSave, backups[0].Reason)
	assert.False(t, backups[0].CreatedAt.IsZero())
	assert.True(t, strings.HasPrefix(backups[0].Name, "validation_progress_backup_"))

	// The backup holds the state before the second save
	prev := NewProgressStore(backups[0].Path)
	snap, err := prev.Load()
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestSave_InterruptedBeforeRenameLeavesLiveFile(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.Save(snapshotOf("1")))

	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var sawTemp string
	s.beforeCommit = func(tmpPath string) error {
		sawTemp = tmpPath
		_, statErr := os.Stat(tmpPath)
		require.NoError(t, statErr, "temp file should exist before commit")
		assert.Equal(t, filepath.Dir(s.Path()), filepath.Dir(tmpPath))
		return errors.New("simulated crash")
	}

	assert.False(t, s.Save(snapshotOf("1", "2", "3")))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.NotEmpty(t, sawTemp)
	assert.Empty(t, tempFiles(t, filepath.Dir(s.Path())))
}

func TestVerifyIntegrity(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Dir(s.Path())

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"valid", `{"1": {"record_id": "1"}, "2": {"record_id": "2", "notes": "x"}}`, true},
		{"empty mapping", `{}`, true},
		{"array", `[{"record_id": "1"}]`, false},
		{"null", `null`, false},
		{"scalar value", `{"1": "oops"}`, false},
		{"null value", `{"1": null}`, false},
		{"missing record_id", `{"1": {"title": "x"}}`, false},
		{"truncated json", `{"1": {"record_id": "1"`, false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "case"+string(rune('a'+i))+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			assert.Equal(t, tt.want, s.VerifyIntegrity(path))
		})
	}

	assert.False(t, s.VerifyIntegrity(filepath.Join(dir, "missing.json")))
}

func TestBackupRetention(t *testing.T) {
	const limit = 3
	s := newTestStore(t, WithMaxBackups(limit))
	require.True(t, s.Save(snapshotOf("1")))

	var created []string
	for i := 0; i < limit+5; i++ {
		path, err := s.CreateBackup(ReasonManual)
		require.NoError(t, err)
		require.NotEmpty(t, path)
		created = append(created, path)
	}

	backups, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, limit)

	for i, b := range backups {
		assert.Equal(t, created[len(created)-1-i], b.Path, "backup %d should be among the newest", i)
		assert.Equal(t, ReasonManual, b.Reason)
	}
}

func TestBackupRetention_ThroughSaves(t *testing.T) {
	const limit = 4
	s := newTestStore(t, WithMaxBackups(limit))

	// The first save has nothing to back up
	for i := 0; i < limit+5+1; i++ {
		require.True(t, s.Save(snapshotOf("1")))
	}

	entries, err := os.ReadDir(s.BackupDir())
	require.NoError(t, err)
	assert.Len(t, entries, limit)
}

func TestCreateBackup_NoLiveFile(t *testing.T) {
	s := newTestStore(t)

	path, err := s.CreateBackup(ReasonManual)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestRestore(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.Save(snapshotOf("a")))
	require.True(t, s.Save(snapshotOf("a", "b")))

	backups, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)

	require.True(t, s.Restore(backups[0].Path))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "a")

	backups, err = s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, ReasonPreRestore, backups[0].Reason)

	// The pre-restore backup makes the restore reversible
	require.True(t, s.Restore(backups[0].Path))
	snap, err = s.Load()
	require.NoError(t, err)
	assert.Len(t, snap, 2)
}

func TestRestore_OldestAtCapacity(t *testing.T) {
	const limit = 3
	s := newTestStore(t, WithMaxBackups(limit))
	for i := 0; i < limit+2; i++ {
		ids := []string{"a"}
		for j := 0; j < i; j++ {
			ids = append(ids, string(rune('b'+j)))
		}
		require.True(t, s.Save(snapshotOf(ids...)))
	}

	backups, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, limit)

	oldest := backups[len(backups)-1]
	want, err := os.ReadFile(oldest.Path)
	require.NoError(t, err)

	require.True(t, s.Restore(oldest.Path), "the oldest listed backup must stay restorable")

	got, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	backups, err = s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, limit)
	assert.Equal(t, ReasonPreRestore, backups[0].Reason)
	assert.Empty(t, tempFiles(t, filepath.Dir(s.Path())))
}

func TestListBackups_CollisionSuffixSortsNewer(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "validation_progress.json")
	s := NewProgressStore(path, WithClock(func() time.Time { return fixed }))
	require.True(t, s.Save(snapshotOf("a")))

	var created []string
	for i := 0; i < 3; i++ {
		p, err := s.CreateBackup(ReasonManual)
		require.NoError(t, err)
		created = append(created, p)
	}
	assert.Contains(t, filepath.Base(created[2]), "-2_manual")

	// Identical mtimes leave only the names to order by
	for _, p := range created {
		require.NoError(t, os.Chtimes(p, fixed, fixed))
	}

	backups, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 3)
	for i, b := range backups {
		assert.Equal(t, created[len(created)-1-i], b.Path, "position %d", i)
	}
}

func TestCollisionSeq(t *testing.T) {
	assert.Equal(t, 0, collisionSeq("p_backup_20250102T030405.000000000_manual.json"))
	assert.Equal(t, 12, collisionSeq("p_backup_20250102T030405.000000000-12_pre_save.json"))
	assert.Equal(t, 0, collisionSeq("unrelated.json"))
}

func TestRestore_RejectsCorruptBackup(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.Save(snapshotOf("a")))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	corrupt := filepath.Join(s.BackupDir(), "validation_progress_backup_20250101T000000.000000000_manual.json")
	require.NoError(t, os.MkdirAll(s.BackupDir(), 0755))
	require.NoError(t, os.WriteFile(corrupt, []byte(`[1, 2, 3]`), 0644))

	assert.False(t, s.Restore(corrupt))
	assert.False(t, s.Restore(filepath.Join(s.BackupDir(), "nope.json")))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	stats := s.Stats()
	assert.False(t, stats.Exists)
	assert.Zero(t, stats.RecordCount)

	snap := snapshotOf("1", "2", "3")
	snap["1"].OverallStatus = model.StatusCorrect
	snap["3"].OverallStatus = model.StatusIncorrect
	require.True(t, s.Save(snap))
	require.True(t, s.Save(snap))

	stats = s.Stats()
	assert.True(t, stats.Exists)
	assert.Positive(t, stats.Size)
	assert.False(t, stats.Modified.IsZero())
	assert.Equal(t, 3, stats.RecordCount)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.BackupCount)
}

func TestAutoBackupIfNeeded(t *testing.T) {
	s := newTestStore(t, WithAutoBackupInterval(time.Hour))

	_, ok := s.AutoBackupIfNeeded()
	assert.False(t, ok, "no live file yet")

	require.True(t, s.Save(snapshotOf("1")))
	path, ok := s.AutoBackupIfNeeded()
	require.True(t, ok)
	assert.Contains(t, filepath.Base(path), "_auto")

	_, ok = s.AutoBackupIfNeeded()
	assert.False(t, ok, "interval has not elapsed")
}
