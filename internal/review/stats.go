package review

import (
	"sort"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// Accuracy is the share of correct verdicts in one bucket
type Accuracy struct {
	Total    int     `json:"total" yaml:"total"`
	Correct  int     `json:"correct" yaml:"correct"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
}

// Statistics aggregates a list of records for reporting
type Statistics struct {
	TotalRecords         int                           `json:"total_records" yaml:"total_records"`
	CompletedRecords     int                           `json:"completed_records" yaml:"completed_records"`
	CompletionRate       float64                       `json:"completion_rate" yaml:"completion_rate"`
	OverallAccuracy      float64                       `json:"overall_accuracy" yaml:"overall_accuracy"`
	AccuracyByComplexity map[model.Complexity]Accuracy `json:"accuracy_by_complexity" yaml:"accuracy_by_complexity"`
	StatusDistribution   map[model.Status]int          `json:"status_distribution" yaml:"status_distribution"`
	ScoreDistributions   map[string]map[int]int        `json:"score_distributions" yaml:"score_distributions"` // Dimension to score to count
	MeanWeightedScore    float64                       `json:"mean_weighted_score" yaml:"mean_weighted_score"`
	ComplexityCounts     map[model.Complexity]int      `json:"complexity_distribution" yaml:"complexity_distribution"`
	RouteCounts          map[model.Route]int           `json:"route_distribution" yaml:"route_distribution"`
	ExtractionFailures   int                           `json:"extraction_failures" yaml:"extraction_failures"`
}

// ComputeStatistics summarizes records. Only reviewed records count toward
// accuracy and score distributions.
func ComputeStatistics(records []*model.ValidationRecord) Statistics {
	st := Statistics{
		AccuracyByComplexity: make(map[model.Complexity]Accuracy),
		StatusDistribution: map[model.Status]int{
			model.StatusCorrect:   0,
			model.StatusPartial:   0,
			model.StatusIncorrect: 0,
		},
		ScoreDistributions: make(map[string]map[int]int),
		ComplexityCounts:   make(map[model.Complexity]int),
		RouteCounts:        make(map[model.Route]int),
	}

	var weightedSum float64
	var weightedN int
	correct := 0

	for _, rec := range records {
		if rec == nil {
			continue
		}
		st.TotalRecords++
		st.ComplexityCounts[rec.ComplexityLevel]++
		if rec.Route != "" {
			st.RouteCounts[rec.Route]++
		}
		if rec.ExtractionFailed {
			st.ExtractionFailures++
		}
		if !rec.Reviewed() {
			continue
		}

		st.CompletedRecords++
		st.StatusDistribution[rec.OverallStatus]++

		acc := st.AccuracyByComplexity[rec.ComplexityLevel]
		acc.Total++
		if rec.OverallStatus == model.StatusCorrect {
			acc.Correct++
			correct++
		}
		st.AccuracyByComplexity[rec.ComplexityLevel] = acc

		for dim, s := range map[string]*int{
			"author_identification":           rec.AuthorIdentificationScore,
			"author_separation":               rec.AuthorSeparationScore,
			"name_affiliation_classification": rec.NameAffiliationScore,
			"name_formatting":                 rec.NameFormattingScore,
		} {
			if s == nil {
				continue
			}
			if st.ScoreDistributions[dim] == nil {
				st.ScoreDistributions[dim] = make(map[int]int)
			}
			st.ScoreDistributions[dim][*s]++
		}

		if rec.WeightedScore != nil {
			weightedSum += *rec.WeightedScore
			weightedN++
		}
	}

	for c, acc := range st.AccuracyByComplexity {
		acc.Accuracy = float64(acc.Correct) / float64(acc.Total)
		st.AccuracyByComplexity[c] = acc
	}
	if st.TotalRecords > 0 {
		st.CompletionRate = float64(st.CompletedRecords) / float64(st.TotalRecords)
	}
	if st.CompletedRecords > 0 {
		st.OverallAccuracy = float64(correct) / float64(st.CompletedRecords)
	}
	if weightedN > 0 {
		st.MeanWeightedScore = weightedSum / float64(weightedN)
	}
	return st
}

// FromSnapshot returns snapshot records ordered by id
func FromSnapshot(snap model.Snapshot) []*model.ValidationRecord {
	out := make([]*model.ValidationRecord, 0, len(snap))
	for _, id := range sortedIDs(snap) {
		out = append(out, snap[id])
	}
	return out
}

func sortedIDs(snap model.Snapshot) []string {
	ids := make([]string, 0, len(snap))
	for id, rec := range snap {
		if rec != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
