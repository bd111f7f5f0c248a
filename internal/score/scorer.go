package score

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// Dimension names one of the four sub-analyses
type Dimension string

const (
	DimensionIdentification Dimension = "author_identification"
	DimensionSeparation     Dimension = "author_separation"
	DimensionClassification Dimension = "name_affiliation_classification"
	DimensionFormatting     Dimension = "name_formatting"
)

// SubScore is one 1-5 rating with its rationale
type SubScore struct {
	Dimension Dimension              `json:"dimension"`
	Score     int                    `json:"score"`
	Rationale string                 `json:"rationale"`
	Data      map[string]interface{} `json:"data,omitempty"` // Inputs behind the score
}

// Assessment is the full automated verdict for a record
type Assessment struct {
	Identification SubScore     `json:"author_identification"`
	Separation     SubScore     `json:"author_separation"`
	Classification SubScore     `json:"name_affiliation_classification"`
	Formatting     SubScore     `json:"name_formatting"`
	Weighted       float64      `json:"weighted_score"`
	Status         model.Status `json:"overall_status"`
	Explanation    string       `json:"explanation"`
}

// SubScores returns the four sub-scores in a fixed order
func (a Assessment) SubScores() []SubScore {
	return []SubScore{a.Identification, a.Separation, a.Classification, a.Formatting}
}

// Scorer evaluates (original, processed) pairs. It is pure: no I/O, no randomness.
type Scorer struct {
	weights          model.Weights
	correctThreshold float64
	partialThreshold float64
}

// NewScorer creates a scorer from weights and status thresholds
func NewScorer(cfg model.ScoringConfig) (*Scorer, error) {
	if sum := cfg.Weights.Sum(); math.Abs(sum-1) > 1e-6 {
		return nil, fmt.Errorf("scoring weights must sum to 1, got %.4f", sum)
	}
	if cfg.PartialThreshold > cfg.CorrectThreshold {
		return nil, fmt.Errorf("partial threshold %.2f exceeds correct threshold %.2f", cfg.PartialThreshold, cfg.CorrectThreshold)
	}

	return &Scorer{
		weights:          cfg.Weights,
		correctThreshold: cfg.CorrectThreshold,
		partialThreshold: cfg.PartialThreshold,
	}, nil
}

// Score runs the four analyses and aggregates them
func (s *Scorer) Score(rec *model.ValidationRecord) Assessment {
	a := Assessment{
		Identification: s.analyzeIdentification(rec),
		Separation:     s.analyzeSeparation(rec),
		Classification: s.analyzeClassification(rec),
		Formatting:     s.analyzeFormatting(rec),
	}

	a.Weighted = float64(a.Identification.Score)*s.weights.Identification +
		float64(a.Separation.Score)*s.weights.Separation +
		float64(a.Classification.Score)*s.weights.Classification +
		float64(a.Formatting.Score)*s.weights.Formatting

	var verdict string
	switch {
	case a.Weighted >= s.correctThreshold:
		a.Status = model.StatusCorrect
		verdict = "high quality"
	case a.Weighted >= s.partialThreshold:
		a.Status = model.StatusPartial
		verdict = "medium quality, partially correct"
	default:
		a.Status = model.StatusIncorrect
		verdict = "low quality, needs correction"
	}

	parts := make([]string, 0, 5)
	for _, sub := range a.SubScores() {
		parts = append(parts, fmt.Sprintf("%s (%d/5): %s", dimensionLabel(sub.Dimension), sub.Score, sub.Rationale))
	}
	parts = append(parts, fmt.Sprintf("weighted %.2f/5.00: %s", a.Weighted, verdict))
	a.Explanation = strings.Join(parts, "; ")

	return a
}

// Apply writes an assessment into the record's review fields
func Apply(rec *model.ValidationRecord, a Assessment, validator string, at time.Time) {
	rec.AuthorIdentificationScore = model.IntPtr(a.Identification.Score)
	rec.AuthorSeparationScore = model.IntPtr(a.Separation.Score)
	rec.NameAffiliationScore = model.IntPtr(a.Classification.Score)
	rec.NameFormattingScore = model.IntPtr(a.Formatting.Score)
	rec.OverallStatus = a.Status
	weighted := a.Weighted
	rec.WeightedScore = &weighted
	rec.ValidatorName = validator
	ts := at.UTC()
	rec.ValidationTimestamp = &ts
	rec.Notes = a.Explanation
}

func dimensionLabel(d Dimension) string {
	switch d {
	case DimensionIdentification:
		return "author identification"
	case DimensionSeparation:
		return "author separation"
	case DimensionClassification:
		return "name/affiliation classification"
	case DimensionFormatting:
		return "name formatting"
	default:
		return string(d)
	}
}

// splitNames splits processed authors on semicolons, dropping blanks
func splitNames(processed string) []string {
	var names []string
	for _, part := range strings.Split(processed, ";") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
