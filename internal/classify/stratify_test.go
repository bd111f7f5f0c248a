package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/creatorcheck/internal/model"
)

func TestCountAuthors(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"Jane Smith", 1},
		{"Smith, J.; Doe, A.", 2},
		{"Smith and Jones", 2},
		{"Smith & Jones; Lee / Kim", 4},
		{"Smith;;Jones;", 2},
		{"Anderson, Kay", 1},
		{`A\B+C`, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CountAuthors(tt.text), "CountAuthors(%q)", tt.text)
	}
}

func TestLength(t *testing.T) {
	assert.Equal(t, 4, Length("Müll"))
	assert.Equal(t, 3, Length("王小明"))
}

func TestStratify(t *testing.T) {
	cfg := model.DefaultConfig().Complexity

	tests := []struct {
		name    string
		length  int
		authors int
		affil   bool
		want    model.Complexity
	}{
		{"short single author", 12, 1, false, model.ComplexitySimple},
		{"short with affiliation", 12, 1, true, model.ComplexityMedium},
		{"few authors", 80, 3, false, model.ComplexityMedium},
		{"at simple bound", cfg.Simple.MaxLength, cfg.Simple.MaxAuthors, false, model.ComplexitySimple},
		{"many authors", 80, 4, false, model.ComplexityComplex},
		{"long string", cfg.Medium.MaxLength + 1, 1, false, model.ComplexityComplex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stratify(tt.length, tt.authors, tt.affil, cfg))
		})
	}
}
