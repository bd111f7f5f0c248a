package review

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// StratifiedSample draws up to the configured number of records from each
// complexity bucket without replacement. Buckets are emitted in
// simple, medium, complex order; records keep their input order within a bucket.
func StratifiedSample(records []*model.ValidationRecord, sizes model.SamplingConfig, rng *rand.Rand) []*model.ValidationRecord {
	groups := make(map[model.Complexity][]*model.ValidationRecord)
	for _, rec := range records {
		if rec != nil {
			groups[rec.ComplexityLevel] = append(groups[rec.ComplexityLevel], rec)
		}
	}

	want := map[model.Complexity]int{
		model.ComplexitySimple:  sizes.SimpleSize,
		model.ComplexityMedium:  sizes.MediumSize,
		model.ComplexityComplex: sizes.ComplexSize,
	}

	var sample []*model.ValidationRecord
	for _, c := range model.Complexities {
		group := groups[c]
		n := min(want[c], len(group))
		if n <= 0 {
			continue
		}

		picked := rng.Perm(len(group))[:n]
		sort.Ints(picked)
		for _, i := range picked {
			sample = append(sample, group[i])
		}
	}
	return sample
}

// AuditOptions selects the targeted audit categories
type AuditOptions struct {
	MultiAuthor bool // More than one processed name
	Affiliation bool // At least one extracted affiliation
	ErrorProne  bool // Placeholders, empty output, count mismatch or failed extraction
}

// DefaultAuditOptions enables every category
func DefaultAuditOptions() AuditOptions {
	return AuditOptions{MultiAuthor: true, Affiliation: true, ErrorProne: true}
}

// TargetedAudit selects records that deserve a closer look, in input order
func TargetedAudit(records []*model.ValidationRecord, opts AuditOptions) []*model.ValidationRecord {
	var out []*model.ValidationRecord
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if AuditReason(rec, opts) != "" {
			out = append(out, rec)
		}
	}
	return out
}

// AuditReason names the first category a record falls into, or "" for none
func AuditReason(rec *model.ValidationRecord, opts AuditOptions) string {
	if opts.MultiAuthor && strings.Contains(rec.ProcessedAuthors, ";") {
		return "multi_author"
	}
	if opts.Affiliation && len(rec.ProcessedAffiliations) > 0 {
		return "affiliation"
	}
	if opts.ErrorProne && errorProne(rec) {
		return "error_prone"
	}
	return ""
}

func errorProne(rec *model.ValidationRecord) bool {
	processed := strings.TrimSpace(rec.ProcessedAuthors)
	switch {
	case rec.ExtractionFailed:
		return true
	case processed == "":
		return true
	case strings.Contains(processed, "*"):
		return true
	}
	return len(strings.Split(processed, ";")) != rec.AuthorCount
}
