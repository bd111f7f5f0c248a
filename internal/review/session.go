// Package review holds the human review workflow: sessions over the
// progress file, sampling and aggregate statistics.
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/pipeline"
	"github.com/ppiankov/creatorcheck/internal/score"
	"github.com/ppiankov/creatorcheck/internal/store"
)

// SystemValidator is the validator name written by automated pre-scoring
const SystemValidator = "system"

// ErrUnknownRecord is returned for ids not in the session
var ErrUnknownRecord = errors.New("unknown record")

// Verdict is one human judgement of a record
type Verdict struct {
	Status         model.Status
	Identification int
	Separation     int
	Classification int
	Formatting     int
	Notes          string
}

// QuickVerdict fills every sub-score from the status alone: 5 for correct,
// 3 for partial, 1 for incorrect
func QuickVerdict(status model.Status) Verdict {
	s := 3
	switch status {
	case model.StatusCorrect:
		s = 5
	case model.StatusIncorrect:
		s = 1
	}
	return Verdict{
		Status:         status,
		Identification: s,
		Separation:     s,
		Classification: s,
		Formatting:     s,
		Notes:          fmt.Sprintf("Quick marked as %s", status),
	}
}

// Validate checks the status and score ranges
func (v Verdict) Validate() error {
	if v.Status == model.StatusUnset {
		return errors.New("verdict needs a status")
	}
	if _, err := model.ParseStatus(string(v.Status)); err != nil {
		return err
	}
	for name, s := range map[string]int{
		"identification": v.Identification,
		"separation":     v.Separation,
		"classification": v.Classification,
		"formatting":     v.Formatting,
	} {
		if s < 1 || s > 5 {
			return fmt.Errorf("%s score %d out of range 1-5", name, s)
		}
	}
	return nil
}

// Session is one reviewer's view over the progress file. It is owned by the
// caller and not safe for concurrent use.
type Session struct {
	ID        string
	Validator string

	store  *store.ProgressStore
	scorer *score.Scorer
	logger *zap.Logger
	now    func() time.Time

	records []*model.ValidationRecord
	byID    map[string]*model.ValidationRecord
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionLogger sets the logger
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionClock overrides the time source for validation timestamps
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession creates a session. An empty validator name becomes "anonymous".
func NewSession(st *store.ProgressStore, scorer *score.Scorer, validator string, opts ...SessionOption) *Session {
	if strings.TrimSpace(validator) == "" {
		validator = "anonymous"
	}
	s := &Session{
		ID:        uuid.NewString(),
		Validator: validator,
		store:     st,
		scorer:    scorer,
		logger:    zap.NewNop(),
		now:       time.Now,
		byID:      make(map[string]*model.ValidationRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.ID))
	return s
}

// Open seeds the session with freshly processed records and merges review
// state from the progress file. Saved records absent from the input are kept
// after the input records. Nil input slots are skipped.
func (s *Session) Open(records []*model.ValidationRecord) error {
	saved, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	s.records = s.records[:0]
	s.byID = make(map[string]*model.ValidationRecord, len(records)+len(saved))

	merged := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if _, dup := s.byID[rec.RecordID]; dup {
			return fmt.Errorf("open session: duplicate record id %q", rec.RecordID)
		}
		if prev, ok := saved[rec.RecordID]; ok {
			copyReview(rec, prev)
			merged++
		}
		s.add(rec)
	}

	for _, id := range sortedIDs(saved) {
		if _, ok := s.byID[id]; !ok {
			s.add(saved[id])
		}
	}

	s.logger.Info("session opened",
		zap.String("validator", s.Validator),
		zap.Int("records", len(s.records)),
		zap.Int("merged", merged))
	return nil
}

// OpenSaved loads the session from the progress file alone
func (s *Session) OpenSaved() error {
	return s.Open(nil)
}

func (s *Session) add(rec *model.ValidationRecord) {
	s.records = append(s.records, rec)
	s.byID[rec.RecordID] = rec
}

// copyReview copies review fields; extraction fields come from the fresh run
func copyReview(dst, src *model.ValidationRecord) {
	dst.ValidatorName = src.ValidatorName
	dst.ValidationTimestamp = src.ValidationTimestamp
	dst.AuthorIdentificationScore = src.AuthorIdentificationScore
	dst.AuthorSeparationScore = src.AuthorSeparationScore
	dst.NameAffiliationScore = src.NameAffiliationScore
	dst.NameFormattingScore = src.NameFormattingScore
	dst.OverallStatus = src.OverallStatus
	dst.WeightedScore = src.WeightedScore
	dst.Notes = src.Notes
	dst.ExternalVerification = src.ExternalVerification
}

// Records returns the session records in order
func (s *Session) Records() []*model.ValidationRecord {
	return s.records
}

// Record looks up one record
func (s *Session) Record(id string) (*model.ValidationRecord, bool) {
	rec, ok := s.byID[id]
	return rec, ok
}

// PreScore fills unreviewed records with the automated verdict. With force,
// records previously scored by the system are rescored too; human verdicts
// are never overwritten. It returns the number of records scored.
func (s *Session) PreScore(force bool) int {
	scored := 0
	for _, rec := range s.records {
		if rec.Reviewed() && !(force && rec.ValidatorName == SystemValidator) {
			continue
		}
		score.Apply(rec, s.scorer.Score(rec), SystemValidator, s.now())
		scored++
	}
	s.logger.Debug("pre-scored records", zap.Int("scored", scored))
	return scored
}

// Assess returns the automated assessment without changing the record
func (s *Session) Assess(id string) (score.Assessment, error) {
	rec, ok := s.byID[id]
	if !ok {
		return score.Assessment{}, fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	return s.scorer.Score(rec), nil
}

// Submit records a human verdict
func (s *Session) Submit(id string, v Verdict) error {
	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("submit %s: %w", id, err)
	}

	rec.OverallStatus = v.Status
	rec.AuthorIdentificationScore = model.IntPtr(v.Identification)
	rec.AuthorSeparationScore = model.IntPtr(v.Separation)
	rec.NameAffiliationScore = model.IntPtr(v.Classification)
	rec.NameFormattingScore = model.IntPtr(v.Formatting)
	rec.WeightedScore = nil
	rec.Notes = v.Notes
	rec.ValidatorName = s.Validator
	ts := s.now().UTC()
	rec.ValidationTimestamp = &ts

	s.logger.Info("verdict recorded", zap.String("record_id", id), zap.String("status", string(v.Status)))
	return nil
}

// Reset clears the review fields of one record
func (s *Session) Reset(id string) error {
	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	copyReview(rec, &model.ValidationRecord{ExternalVerification: rec.ExternalVerification})
	return nil
}

// Snapshot returns the session state keyed by record id
func (s *Session) Snapshot() model.Snapshot {
	snap := make(model.Snapshot, len(s.records))
	for _, rec := range s.records {
		snap[rec.RecordID] = rec
	}
	return snap
}

// Save persists the session through the store. If the protected save fails
// the snapshot is written to a recovery file next to the progress file so no
// verdicts are lost. It returns the path the data landed in.
func (s *Session) Save() (string, error) {
	if path, ok := s.store.AutoBackupIfNeeded(); ok {
		s.logger.Debug("auto backup created", zap.String("path", path))
	}

	snap := s.Snapshot()
	if s.store.Save(snap) {
		return s.store.Path(), nil
	}

	recovery := s.recoveryPath()
	s.logger.Warn("protected save failed, writing recovery file", zap.String("path", recovery))
	if err := writeJSON(recovery, snap); err != nil {
		return "", fmt.Errorf("save session: protected save failed and recovery write failed: %w", err)
	}
	return recovery, nil
}

func (s *Session) recoveryPath() string {
	path := s.store.Path()
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("%s_recovery_%s.json", stem, s.now().UTC().Format("20060102T150405"))
	return filepath.Join(filepath.Dir(path), name)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Progress reports review and extraction progress
type Progress struct {
	Total      int
	Reviewed   int
	ByHuman    int
	Extraction pipeline.Progress
}

func (p Progress) String() string {
	return fmt.Sprintf("%d of %d records reviewed (%d by a person); %s",
		p.Reviewed, p.Total, p.ByHuman, p.Extraction)
}

// Progress counts reviewed records
func (s *Session) Progress() Progress {
	p := Progress{Total: len(s.records), Extraction: pipeline.Summarize(s.records)}
	for _, rec := range s.records {
		if !rec.Reviewed() {
			continue
		}
		p.Reviewed++
		if rec.ValidatorName != SystemValidator {
			p.ByHuman++
		}
	}
	return p
}
