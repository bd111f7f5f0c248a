package review

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/creatorcheck/internal/model"
	"github.com/ppiankov/creatorcheck/internal/score"
	"github.com/ppiankov/creatorcheck/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, path string) *Session {
	t.Helper()
	scorer, err := score.NewScorer(model.DefaultConfig().Scoring)
	require.NoError(t, err)

	st := store.NewProgressStore(path, store.WithClock(func() time.Time { return fixedNow }))
	return NewSession(st, scorer, "alice", WithSessionClock(func() time.Time { return fixedNow }))
}

func freshRecords() []*model.ValidationRecord {
	return []*model.ValidationRecord{
		{
			RecordID:              "1",
			OriginalCreator:       "Smith, John; Doe, Jane",
			ProcessedAuthors:      "Smith, John; Doe, Jane",
			ProcessedAffiliations: []string{},
			AuthorCount:           2,
			ComplexityLevel:       model.ComplexityMedium,
			Route:                 model.RouteComplex,
		},
		nil,
		{
			RecordID:              "2",
			OriginalCreator:       "Jane Smith",
			ProcessedAuthors:      "Jane Smith",
			ProcessedAffiliations: []string{},
			AuthorCount:           1,
			ComplexityLevel:       model.ComplexitySimple,
			Route:                 model.RouteSimple,
		},
	}
}

func TestSession_SubmitAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")

	s := newTestSession(t, path)
	require.NoError(t, s.Open(freshRecords()))
	assert.NotEmpty(t, s.ID)
	assert.Len(t, s.Records(), 2)

	require.NoError(t, s.Submit("1", Verdict{
		Status:         model.StatusPartial,
		Identification: 4, Separation: 5, Classification: 3, Formatting: 4,
		Notes: "middle initial missing",
	}))

	saved, err := s.Save()
	require.NoError(t, err)
	assert.Equal(t, path, saved)

	// New session over freshly processed records keeps the verdict
	again := newTestSession(t, path)
	require.NoError(t, again.Open(freshRecords()))

	rec, ok := again.Record("1")
	require.True(t, ok)
	assert.Equal(t, model.StatusPartial, rec.OverallStatus)
	assert.Equal(t, "alice", rec.ValidatorName)
	require.NotNil(t, rec.AuthorSeparationScore)
	assert.Equal(t, 5, *rec.AuthorSeparationScore)
	assert.Equal(t, "middle initial missing", rec.Notes)
	require.NotNil(t, rec.ValidationTimestamp)
	assert.True(t, rec.ValidationTimestamp.Equal(fixedNow))

	other, _ := again.Record("2")
	assert.False(t, other.Reviewed())
}

func TestSession_OpenKeepsSavedOnlyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	st := store.NewProgressStore(path)
	require.True(t, st.Save(model.Snapshot{
		"99": {RecordID: "99", OverallStatus: model.StatusCorrect, ProcessedAffiliations: []string{}},
	}))

	s := newTestSession(t, path)
	require.NoError(t, s.Open(freshRecords()))

	require.Len(t, s.Records(), 3)
	assert.Equal(t, "99", s.Records()[2].RecordID)
}

func TestSession_SubmitValidation(t *testing.T) {
	s := newTestSession(t, filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, s.Open(freshRecords()))

	err := s.Submit("missing", QuickVerdict(model.StatusCorrect))
	assert.ErrorIs(t, err, ErrUnknownRecord)

	err = s.Submit("1", Verdict{Status: model.StatusCorrect, Identification: 6, Separation: 5, Classification: 5, Formatting: 5})
	assert.ErrorContains(t, err, "out of range")

	err = s.Submit("1", Verdict{Identification: 5, Separation: 5, Classification: 5, Formatting: 5})
	assert.Error(t, err)
}

func TestQuickVerdict(t *testing.T) {
	assert.Equal(t, 5, QuickVerdict(model.StatusCorrect).Formatting)
	assert.Equal(t, 3, QuickVerdict(model.StatusPartial).Identification)
	assert.Equal(t, 1, QuickVerdict(model.StatusIncorrect).Separation)
	assert.Equal(t, "Quick marked as incorrect", QuickVerdict(model.StatusIncorrect).Notes)
	assert.NoError(t, QuickVerdict(model.StatusPartial).Validate())
}

func TestSession_PreScore(t *testing.T) {
	s := newTestSession(t, filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, s.Open(freshRecords()))
	require.NoError(t, s.Submit("2", QuickVerdict(model.StatusIncorrect)))

	assert.Equal(t, 1, s.PreScore(false))

	rec, _ := s.Record("1")
	assert.Equal(t, SystemValidator, rec.ValidatorName)
	assert.Equal(t, model.StatusCorrect, rec.OverallStatus)
	require.NotNil(t, rec.WeightedScore)
	assert.NotEmpty(t, rec.Notes)

	// Human verdicts survive a forced rescore
	assert.Equal(t, 1, s.PreScore(true))
	human, _ := s.Record("2")
	assert.Equal(t, model.StatusIncorrect, human.OverallStatus)
	assert.Equal(t, "alice", human.ValidatorName)

	// Already scored records are skipped without force
	assert.Equal(t, 0, s.PreScore(false))
}

func TestSession_Progress(t *testing.T) {
	recs := freshRecords()
	recs = append(recs, &model.ValidationRecord{RecordID: "3", ExtractionFailed: true, ProcessedAffiliations: []string{}})

	s := newTestSession(t, filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, s.Open(recs))
	require.NoError(t, s.Submit("1", QuickVerdict(model.StatusCorrect)))
	s.PreScore(false)

	p := s.Progress()
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 3, p.Reviewed)
	assert.Equal(t, 1, p.ByHuman)
	assert.Equal(t, 1, p.Extraction.Failed)
	assert.Contains(t, p.String(), "1 of 3 records are awaiting extraction/failed")
}

func TestSession_SaveFallsBackToRecovery(t *testing.T) {
	dir := t.TempDir()
	// A directory where the progress file should be makes the protected save fail
	path := filepath.Join(dir, "progress.json")
	require.NoError(t, os.MkdirAll(path, 0755))

	s := newTestSession(t, filepath.Join(dir, "other.json"))
	require.NoError(t, s.Open(freshRecords()))
	s.store = store.NewProgressStore(path)

	saved, err := s.Save()
	require.NoError(t, err)
	assert.NotEqual(t, path, saved)
	assert.Contains(t, filepath.Base(saved), "progress_recovery_")

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"record_id": "1"`)
}

func TestSession_Reset(t *testing.T) {
	s := newTestSession(t, filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, s.Open(freshRecords()))
	require.NoError(t, s.Submit("1", QuickVerdict(model.StatusCorrect)))

	require.NoError(t, s.Reset("1"))
	rec, _ := s.Record("1")
	assert.False(t, rec.Reviewed())
	assert.Nil(t, rec.AuthorIdentificationScore)
	assert.Equal(t, "", rec.ValidatorName)
}
