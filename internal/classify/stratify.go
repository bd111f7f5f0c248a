package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/creatorcheck/internal/model"
)

var countSplitPattern = regexp.MustCompile(`(?i)\s*(?:;|&|\band\b|\+|/|\\)\s*`)

// CountAuthors estimates how many authors a creator string names by
// splitting on explicit delimiters. Blank input counts as zero.
func CountAuthors(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	count := 0
	for _, part := range countSplitPattern.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	return count
}

// Length is the creator length used for stratification, in characters
func Length(text string) int {
	return utf8.RuneCountInString(text)
}

// Stratify assigns the reporting bucket. It is descriptive only and never
// affects routing.
func Stratify(length, authors int, hasAffiliations bool, cfg model.ComplexityConfig) model.Complexity {
	simple := cfg.Simple
	if length <= simple.MaxLength && authors <= simple.MaxAuthors && hasAffiliations == simple.HasAffiliations {
		return model.ComplexitySimple
	}

	medium := cfg.Medium
	if length <= medium.MaxLength && authors <= medium.MaxAuthors {
		return model.ComplexityMedium
	}

	return model.ComplexityComplex
}
