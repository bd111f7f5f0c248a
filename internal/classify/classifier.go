// Package classify decides how a normalized creator string is parsed and
// buckets processed records for reporting.
package classify

import (
	"regexp"

	"github.com/ppiankov/creatorcheck/internal/model"
)

var (
	// Institution and contact markers. Prefix matches are intentional:
	// "Universität", "Institución" and "Laboratoire" all qualify.
	affiliationPattern = regexp.MustCompile(`(?i)(\buniversit|\buniv\.|\bfaculty|\bfacult[eé]|\bdept\b|\bdepartment|\binstitut|\bhospital|\bschool|\bcent(?:er|re)|\bcollege|\blaborator|\be-?mail|\borcid|\btel\b|\bphone|\bfax\b|\bdoi:|\bwww\.|@|\bhttps?\b|\b[a-z][a-z0-9+.-]*://)`)

	// Explicit multi-author delimiters.
	delimiterPattern = regexp.MustCompile(`(?i)[;&+/\\]|\band\b`)

	// "Last, First" groups; more than one suggests several names without a delimiter.
	commaGroupPattern = regexp.MustCompile(`,\s*\p{Lu}`)
)

// Decision is a routing verdict with the rule that produced it
type Decision struct {
	Route  model.Route
	Reason string // affiliation, delimiter, comma_groups, none
}

// Classify routes normalized text. The decision is biased toward complex:
// a spurious extractor call is cheap, a mis-parsed author list is not.
func Classify(text string) Decision {
	if affiliationPattern.MatchString(text) {
		return Decision{Route: model.RouteComplex, Reason: "affiliation"}
	}
	if delimiterPattern.MatchString(text) {
		return Decision{Route: model.RouteComplex, Reason: "delimiter"}
	}
	if len(commaGroupPattern.FindAllStringIndex(text, 2)) > 1 {
		return Decision{Route: model.RouteComplex, Reason: "comma_groups"}
	}
	return Decision{Route: model.RouteSimple, Reason: "none"}
}

// Route returns only the routing label
func Route(text string) model.Route {
	return Classify(text).Route
}

// HasAffiliationMarker reports whether text carries an institution or contact marker
func HasAffiliationMarker(text string) bool {
	return affiliationPattern.MatchString(text)
}
