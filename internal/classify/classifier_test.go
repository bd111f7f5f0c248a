package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/creatorcheck/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		route  model.Route
		reason string
	}{
		{"two token name", "Jane Smith", model.RouteSimple, "none"},
		{"single last first", "Smith, Jane", model.RouteSimple, "none"},
		{"surname containing and", "Anderson, Kay", model.RouteSimple, "none"},
		{"non-latin single name", "王小明", model.RouteSimple, "none"},
		{"empty", "", model.RouteSimple, "none"},
		{"department abbreviation", "Dept. of Biology", model.RouteComplex, "affiliation"},
		{"university", "Jane Smith, University of Leeds", model.RouteComplex, "affiliation"},
		{"accented university", "Müller, Hans (Universität Wien)", model.RouteComplex, "affiliation"},
		{"email", "jane@example.org", model.RouteComplex, "affiliation"},
		{"url scheme", "Jane Smith ftp://x.org", model.RouteComplex, "affiliation"},
		{"orcid", "Jane Smith ORCID 0000-0001", model.RouteComplex, "affiliation"},
		{"doi", "doi:10.1000/182", model.RouteComplex, "affiliation"},
		{"tel", "Jane Smith Tel. 555", model.RouteComplex, "affiliation"},
		{"semicolon", "Smith, John; Doe, Jane", model.RouteComplex, "delimiter"},
		{"ampersand", "Smith & Jones", model.RouteComplex, "delimiter"},
		{"word and", "Smith AND Jones", model.RouteComplex, "delimiter"},
		{"plus", "Smith + Jones", model.RouteComplex, "delimiter"},
		{"slash", "Smith/Jones", model.RouteComplex, "delimiter"},
		{"backslash", `Smith\Jones`, model.RouteComplex, "delimiter"},
		{"comma groups", "Smith, John, Doe, Jane", model.RouteComplex, "comma_groups"},
		{"cyrillic comma groups", "Иванов, Иван, Петров, Пётр", model.RouteComplex, "comma_groups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			assert.Equal(t, tt.route, got.Route)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.route, Route(tt.text))
		})
	}
}

func TestHasAffiliationMarker(t *testing.T) {
	assert.True(t, HasAffiliationMarker("Centre for Ecology"))
	assert.True(t, HasAffiliationMarker("Institut Pasteur"))
	assert.False(t, HasAffiliationMarker("Doe, Jane"))
}
