package score

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/creatorcheck/internal/model"
)

var (
	errorMarkers = []string{"*", "???", "unknown", "anonymous"}

	// Loose script check: letters, combining marks, spaces and name punctuation
	validNamePattern = regexp.MustCompile(`^[\p{L}\p{M}\s,.'’-]+$`)

	tokenStripPattern = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]`)

	// Prefix keywords catch inflected forms (universities, institutional, laboratoire).
	institutionPrefixPattern = regexp.MustCompile(`(?i)\b(universit|college|institut|department|faculty|hospital|cent(?:er|re)|school|laborator)`)
	// Short keywords need whole-word matches so surnames like "Castelli" stay clean.
	institutionWordPattern = regexp.MustCompile(`(?i)\b(lab|email|e-mail|phone|tel|orcid|doi|www)\b|@|https?:`)
	institutionCJK         = []string{"大学", "学院", "研究所", "医院", "中心", "实验室"}

	unexpectedCharPattern = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s,.\-]`)
	multiSpacePattern     = regexp.MustCompile(`\s{2,}`)
)

// analyzeIdentification checks that real names were found at all
func (s *Scorer) analyzeIdentification(rec *model.ValidationRecord) SubScore {
	sub := SubScore{Dimension: DimensionIdentification}

	original := strings.TrimSpace(rec.OriginalCreator)
	processed := strings.TrimSpace(rec.ProcessedAuthors)

	if original == "" {
		return s.withScore(sub, 1, "original creator is empty", nil)
	}
	if processed == "" {
		return s.withScore(sub, 1, "processed authors are empty", nil)
	}

	lower := strings.ToLower(processed)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return s.withScore(sub, 1, fmt.Sprintf("contains error marker %q", marker), map[string]interface{}{
				"marker": marker,
			})
		}
	}

	ratio := float64(utf8.RuneCountInString(processed)) / float64(utf8.RuneCountInString(original))
	if ratio < 0.1 {
		return s.withScore(sub, 2, "processed text is severely truncated", map[string]interface{}{"length_ratio": ratio})
	}
	if ratio > 3 {
		return s.withScore(sub, 2, "processed text is inflated", map[string]interface{}{"length_ratio": ratio})
	}

	names := splitNames(processed)
	for _, name := range names {
		if !validNamePattern.MatchString(name) {
			return s.withScore(sub, 2, fmt.Sprintf("invalid name characters in %q", name), nil)
		}
	}
	for _, name := range names {
		n := utf8.RuneCountInString(name)
		if n < 2 {
			return s.withScore(sub, 2, fmt.Sprintf("name too short: %q", name), nil)
		}
		if n > 100 {
			return s.withScore(sub, 2, "name longer than 100 characters", nil)
		}
	}

	originalTokens := tokenSet(original)
	processedTokens := tokenSet(processed)
	if len(originalTokens) == 0 || len(processedTokens) == 0 {
		return s.withScore(sub, 3, "similarity indeterminate", nil)
	}

	similarity := jaccard(originalTokens, processedTokens)
	data := map[string]interface{}{
		"similarity": similarity,
		"formula":    "|original ∩ processed| / |original ∪ processed| over lower-cased tokens",
	}

	switch {
	case similarity > 0.7:
		return s.withScore(sub, 5, fmt.Sprintf("high token overlap (%.2f)", similarity), data)
	case similarity > 0.5:
		return s.withScore(sub, 4, fmt.Sprintf("moderate token overlap (%.2f)", similarity), data)
	case similarity > 0.3:
		return s.withScore(sub, 3, fmt.Sprintf("low token overlap (%.2f), check manually", similarity), data)
	default:
		return s.withScore(sub, 2, fmt.Sprintf("very low token overlap (%.2f)", similarity), data)
	}
}

// analyzeSeparation compares the processed name count to the expected count
func (s *Scorer) analyzeSeparation(rec *model.ValidationRecord) SubScore {
	sub := SubScore{Dimension: DimensionSeparation}
	expected := rec.AuthorCount
	processed := rec.ProcessedAuthors

	if expected <= 1 {
		if !strings.Contains(processed, ";") {
			return s.withScore(sub, 5, "single author, no split needed", map[string]interface{}{"expected": expected})
		}
		return s.withScore(sub, 2, "single author should not contain a semicolon", map[string]interface{}{"expected": expected})
	}

	names := splitNames(processed)
	actual := len(names)
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}

	var score int
	var note string
	switch {
	case diff == 0:
		score, note = 5, fmt.Sprintf("split count matches: %d authors", actual)
	case diff == 1:
		score, note = 4, fmt.Sprintf("split count close: %d vs expected %d", actual, expected)
	case diff == 2:
		score, note = 3, fmt.Sprintf("split count off by two: %d vs expected %d", actual, expected)
	default:
		score, note = 2, fmt.Sprintf("split count far off: %d vs expected %d", actual, expected)
	}

	seen := make(map[string]bool, len(names))
	var duplicates []string
	totalLen := 0
	for _, name := range names {
		if seen[name] {
			duplicates = append(duplicates, name)
		}
		seen[name] = true
		totalLen += utf8.RuneCountInString(name)
	}

	if len(duplicates) > 0 {
		score = clamp(score-1, 1, 5)
		note += fmt.Sprintf("; duplicate names: %s", strings.Join(firstN(duplicates, 2), ", "))
	}

	avg := 0.0
	if actual > 0 {
		avg = float64(totalLen) / float64(actual)
	}
	if avg < 5 {
		score = clamp(score-1, 1, 5)
		note += "; average name length too short"
	} else if avg > 50 {
		score = clamp(score-1, 1, 5)
		note += "; average name length too long"
	}

	return s.withScore(sub, score, note, map[string]interface{}{
		"expected":       expected,
		"actual":         actual,
		"duplicates":     len(duplicates),
		"avg_name_chars": avg,
	})
}

// analyzeClassification checks that affiliations did not leak into names
func (s *Scorer) analyzeClassification(rec *model.ValidationRecord) SubScore {
	sub := SubScore{Dimension: DimensionClassification}

	if hasInstitutionKeyword(rec.ProcessedAuthors) {
		return s.withScore(sub, 2, "authors field contains institution or contact information", nil)
	}

	affiliations := rec.ProcessedAffiliations
	if len(affiliations) == 0 {
		if hasInstitutionKeyword(rec.OriginalCreator) {
			return s.withScore(sub, 3, "original has institution information but no affiliations were extracted", nil)
		}
		return s.withScore(sub, 5, "no affiliation information, classification correct", nil)
	}

	valid := 0
	for _, aff := range affiliations {
		if utf8.RuneCountInString(strings.TrimSpace(aff)) > 5 {
			valid++
		}
	}
	share := float64(valid) / float64(len(affiliations))
	data := map[string]interface{}{"valid": valid, "total": len(affiliations)}

	switch {
	case valid == len(affiliations):
		return s.withScore(sub, 5, fmt.Sprintf("extracted %d valid affiliations", valid), data)
	case share >= 0.7:
		return s.withScore(sub, 4, fmt.Sprintf("most affiliations valid: %d/%d", valid, len(affiliations)), data)
	default:
		return s.withScore(sub, 3, fmt.Sprintf("some affiliations look invalid: %d/%d", valid, len(affiliations)), data)
	}
}

// analyzeFormatting rates each name's shape and averages
func (s *Scorer) analyzeFormatting(rec *model.ValidationRecord) SubScore {
	sub := SubScore{Dimension: DimensionFormatting}

	names := splitNames(rec.ProcessedAuthors)
	if len(names) == 0 {
		return s.withScore(sub, 1, "processed names are empty", nil)
	}

	var total float64
	var notes []string
	for _, name := range names {
		score, nameNotes := formatScore(name)
		total += score
		notes = append(notes, nameNotes...)
	}

	avg := total / float64(len(names))
	final := clamp(int(math.RoundToEven(avg)), 1, 5)

	note := fmt.Sprintf("average format score %.1f", avg)
	if len(notes) > 0 {
		note += ": " + strings.Join(firstN(notes, 3), ", ")
	}

	return s.withScore(sub, final, note, map[string]interface{}{"average": avg, "names": len(names)})
}

func formatScore(name string) (float64, []string) {
	score := 3.0
	var notes []string

	if strings.Contains(name, ",") {
		parts := strings.Split(name, ",")
		if len(parts) == 2 {
			if strings.TrimSpace(parts[0]) != "" && strings.TrimSpace(parts[1]) != "" {
				score++
				notes = append(notes, "Last, First convention")
			} else {
				score--
				notes = append(notes, "comma form missing a part")
			}
		} else {
			score--
			notes = append(notes, "too many commas")
		}
	}

	hasUpper, hasLower := caseProfile(name)
	switch {
	case hasUpper && !hasLower:
		score--
		notes = append(notes, "all upper case")
	case hasLower && !hasUpper:
		score--
		notes = append(notes, "all lower case")
	case hasUpper:
		score += 0.5
		notes = append(notes, "mixed case")
	}

	if unexpectedCharPattern.MatchString(name) {
		score -= 0.5
		notes = append(notes, "unexpected characters")
	}
	if multiSpacePattern.MatchString(name) {
		score -= 0.5
		notes = append(notes, "repeated spaces")
	}

	return math.Max(1, math.Min(5, score)), notes
}

// caseProfile reports the presence of upper- and lower-case letters.
// Uncased scripts report neither.
func caseProfile(s string) (hasUpper, hasLower bool) {
	for _, r := range s {
		switch {
		case unicode.IsUpper(r), unicode.IsTitle(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}
	return hasUpper, hasLower
}

func hasInstitutionKeyword(text string) bool {
	if institutionPrefixPattern.MatchString(text) || institutionWordPattern.MatchString(text) {
		return true
	}
	for _, kw := range institutionCJK {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func tokenSet(text string) map[string]struct{} {
	cleaned := tokenStripPattern.ReplaceAllString(strings.ToLower(text), " ")
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func (s *Scorer) withScore(sub SubScore, score int, rationale string, data map[string]interface{}) SubScore {
	sub.Score = clamp(score, 1, 5)
	sub.Rationale = rationale
	sub.Data = data
	return sub
}
