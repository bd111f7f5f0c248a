// Package store persists review progress with atomic saves and rotating backups.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/creatorcheck/internal/model"
)

const (
	backupDirName     = "backups"
	backupTimeLayout  = "20060102T150405.000000000"
	defaultMaxBackups = 10

	ReasonPreSave    = "pre_save"
	ReasonPreRestore = "pre_restore"
	ReasonManual     = "manual"
	ReasonAuto       = "auto"
)

// ErrBackupNotFound is returned when a named backup does not exist
var ErrBackupNotFound = errors.New("backup not found")

// ProgressStore owns one progress file and its backups directory.
// Callers serialize their own Save calls; there is no cross-process locking.
type ProgressStore struct {
	path       string
	backupDir  string
	maxBackups int
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu         sync.Mutex
	lastBackup time.Time

	// beforeCommit runs after the temp file is verified and before rename
	beforeCommit func(tmpPath string) error
}

// Option configures a ProgressStore
type Option func(*ProgressStore)

// WithMaxBackups sets the backup retention limit
func WithMaxBackups(n int) Option {
	return func(s *ProgressStore) {
		if n > 0 {
			s.maxBackups = n
		}
	}
}

// WithAutoBackupInterval sets the minimum gap between automatic backups
func WithAutoBackupInterval(d time.Duration) Option {
	return func(s *ProgressStore) {
		s.interval = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *ProgressStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for backup names
func WithClock(now func() time.Time) Option {
	return func(s *ProgressStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewProgressStore creates a store for the given progress file.
// Backups live in a "backups" directory next to it.
func NewProgressStore(path string, opts ...Option) *ProgressStore {
	s := &ProgressStore{
		path:       path,
		backupDir:  filepath.Join(filepath.Dir(path), backupDirName),
		maxBackups: defaultMaxBackups,
		interval:   5 * time.Minute,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the live progress file path
func (s *ProgressStore) Path() string {
	return s.path
}

// BackupDir returns the backups directory
func (s *ProgressStore) BackupDir() string {
	return s.backupDir
}

// Load reads the live snapshot. A missing file yields an empty snapshot.
func (s *ProgressStore) Load() (model.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	snapshot := model.Snapshot{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	for id, rec := range snapshot {
		if rec == nil {
			delete(snapshot, id)
			continue
		}
		if rec.ProcessedAffiliations == nil {
			rec.ProcessedAffiliations = []string{}
		}
	}
	return snapshot, nil
}

// Save writes the snapshot atomically. The live file is either the previous
// snapshot or the new one; a failed save leaves it untouched.
func (s *ProgressStore) Save(snapshot model.Snapshot) bool {
	if err := s.save(snapshot); err != nil {
		s.logger.Error("progress save failed", zap.String("path", s.path), zap.Error(err))
		return false
	}
	s.logger.Info("progress saved", zap.String("path", s.path), zap.Int("records", len(snapshot)))
	return true
}

func (s *ProgressStore) save(snapshot model.Snapshot) error {
	if snapshot == nil {
		snapshot = model.Snapshot{}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}

	if _, err := s.CreateBackup(ReasonPreSave); err != nil {
		return fmt.Errorf("pre-save backup: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	// Same directory as the target so the rename never crosses filesystems
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if !s.VerifyIntegrity(tmpPath) {
		return errors.New("temp file failed integrity check")
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(tmpPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("commit progress: %w", err)
	}
	committed = true
	syncDir(dir)

	return nil
}

// CreateBackup copies the live file into the backups directory and prunes
// old backups. It returns "" when there is no live file to back up.
func (s *ProgressStore) CreateBackup(reason string) (string, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("stat progress: %w", err)
	}

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	backupPath, err := s.uniqueBackupPath(sanitizeReason(reason))
	if err != nil {
		return "", err
	}

	if err := copyFile(s.path, backupPath); err != nil {
		return "", fmt.Errorf("copy backup: %w", err)
	}

	s.mu.Lock()
	s.lastBackup = s.now()
	s.mu.Unlock()

	s.logger.Debug("backup created", zap.String("path", backupPath), zap.String("reason", reason))

	if err := s.prune(); err != nil {
		s.logger.Warn("backup cleanup failed", zap.Error(err))
	}

	return backupPath, nil
}

// AutoBackupIfNeeded creates an "auto" backup when the configured interval
// has passed since the last backup of any kind
func (s *ProgressStore) AutoBackupIfNeeded() (string, bool) {
	s.mu.Lock()
	due := s.interval > 0 && s.now().Sub(s.lastBackup) >= s.interval
	s.mu.Unlock()

	if !due {
		return "", false
	}

	path, err := s.CreateBackup(ReasonAuto)
	if err != nil {
		s.logger.Warn("auto backup failed", zap.Error(err))
		return "", false
	}
	return path, path != ""
}

// ListBackups returns backups newest first
func (s *ProgressStore) ListBackups() ([]model.BackupEntry, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	prefix := s.backupPrefix()
	var backups []model.BackupEntry
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("cannot stat backup", zap.String("name", name), zap.Error(err))
			continue
		}

		created, reason := parseBackupName(strings.TrimPrefix(name, prefix))
		if created.IsZero() {
			created = info.ModTime()
		}

		backups = append(backups, model.BackupEntry{
			Path:      filepath.Join(s.backupDir, name),
			Name:      name,
			Reason:    reason,
			CreatedAt: created,
			Modified:  info.ModTime(),
			Size:      info.Size(),
		})
	}

	sortNewestFirst(backups)
	return backups, nil
}

// Restore replaces the live file with a verified backup. The current state
// is backed up first so the restore can itself be undone.
func (s *ProgressStore) Restore(backupPath string) bool {
	if err := s.restore(backupPath); err != nil {
		s.logger.Error("restore failed", zap.String("backup", backupPath), zap.Error(err))
		return false
	}
	s.logger.Info("progress restored", zap.String("backup", backupPath), zap.String("path", s.path))
	return true
}

func (s *ProgressStore) restore(backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, backupPath)
		}
		return fmt.Errorf("stat backup: %w", err)
	}

	if !s.VerifyIntegrity(backupPath) {
		return fmt.Errorf("backup failed integrity check: %s", backupPath)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}

	// Stage the backup before the pre_restore backup prunes; the backup being
	// restored may be the oldest one
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := copyFile(backupPath, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copy backup: %w", err)
	}

	if _, err := s.CreateBackup(ReasonPreRestore); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("pre-restore backup: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit restore: %w", err)
	}
	syncDir(dir)

	return nil
}

// VerifyIntegrity reports whether path holds a mapping of records, each a
// mapping carrying a record_id
func (s *ProgressStore) VerifyIntegrity(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Debug("integrity read failed", zap.String("path", path), zap.Error(err))
		return false
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return false
	}

	for id, raw := range top {
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
			s.logger.Debug("integrity: record is not an object", zap.String("record_id", id))
			return false
		}
		if _, ok := rec["record_id"]; !ok {
			s.logger.Debug("integrity: record_id missing", zap.String("record_id", id))
			return false
		}
	}
	return true
}

// Stats describes the live file without mutating anything
func (s *ProgressStore) Stats() model.ProgressStats {
	stats := model.ProgressStats{Path: s.path}

	if backups, err := s.ListBackups(); err == nil {
		stats.BackupCount = len(backups)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return stats
	}
	stats.Exists = true
	stats.Size = info.Size()
	stats.Modified = info.ModTime()

	snapshot, err := s.Load()
	if err != nil {
		s.logger.Warn("stats: cannot load progress", zap.Error(err))
		return stats
	}
	stats.RecordCount = len(snapshot)
	for _, rec := range snapshot {
		if rec.Reviewed() {
			stats.Completed++
		}
	}
	return stats
}

func (s *ProgressStore) prune() error {
	backups, err := s.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= s.maxBackups {
		return nil
	}

	var errs []error
	for _, b := range backups[s.maxBackups:] {
		if err := os.Remove(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("backup pruned", zap.String("name", b.Name))
	}
	return errors.Join(errs...)
}

func (s *ProgressStore) backupPrefix() string {
	stem := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	return stem + "_backup_"
}

func (s *ProgressStore) uniqueBackupPath(reason string) (string, error) {
	stamp := s.now().UTC().Format(backupTimeLayout)
	for i := 0; i < 1000; i++ {
		name := s.backupPrefix() + stamp + "_" + reason + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s%s-%d_%s.json", s.backupPrefix(), stamp, i, reason)
		}
		path := filepath.Join(s.backupDir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free backup name at %s", stamp)
}

func parseBackupName(rest string) (time.Time, string) {
	rest = strings.TrimSuffix(rest, ".json")
	stamp, reason, ok := strings.Cut(rest, "_")
	if !ok {
		return time.Time{}, "unknown"
	}
	stamp, _, _ = strings.Cut(stamp, "-")
	created, err := time.Parse(backupTimeLayout, stamp)
	if err != nil {
		return time.Time{}, "unknown"
	}
	return created, reason
}

func sanitizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ReasonManual
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '-'
	}, reason)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// sortNewestFirst orders by mtime, then name stamp, then collision suffix
func sortNewestFirst(backups []model.BackupEntry) {
	sort.SliceStable(backups, func(i, j int) bool {
		a, b := backups[i], backups[j]
		if !a.Modified.Equal(b.Modified) {
			return a.Modified.After(b.Modified)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if sa, sb := collisionSeq(a.Name), collisionSeq(b.Name); sa != sb {
			return sa > sb
		}
		return a.Name > b.Name
	})
}

// collisionSeq returns N for a "<stamp>-N_<reason>" backup name, else 0
func collisionSeq(name string) int {
	_, rest, ok := strings.Cut(name, "_backup_")
	if !ok {
		return 0
	}
	stamp, _, _ := strings.Cut(rest, "_")
	_, suffix, ok := strings.Cut(stamp, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0
	}
	return n
}
