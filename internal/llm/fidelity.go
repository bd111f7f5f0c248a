package llm

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// ErrNonConforming marks an answer that rewrote names instead of splitting them
var ErrNonConforming = errors.New("extractor altered name text")

// CheckFidelity rejects results whose author names contain letters that do
// not occur in the input. It catches translation, transliteration and case
// changes; reordering inside a name goes unnoticed.
func CheckFidelity(input string, result model.ExtractionResult) error {
	allowed := make(map[rune]struct{})
	for _, r := range input {
		if unicode.IsLetter(r) {
			allowed[r] = struct{}{}
		}
	}

	for _, name := range result.Authors {
		for _, r := range name {
			if !unicode.IsLetter(r) {
				continue
			}
			if _, ok := allowed[r]; !ok {
				return fmt.Errorf("%w: %q contains %q", ErrNonConforming, name, string(r))
			}
		}
	}
	return nil
}
