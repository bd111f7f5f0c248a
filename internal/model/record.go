package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RawRecord is one input row from the source table
type RawRecord struct {
	ID      string `json:"id" parquet:"id"`
	Creator string `json:"creator" parquet:"creator"` // Free-text creator field as scraped
	Title   string `json:"title" parquet:"title"`
}

// UnmarshalJSON accepts numeric identifiers as well as strings
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID      json.RawMessage `json:"id"`
		Creator *string         `json:"creator"`
		Title   *string         `json:"title"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := decodeID(aux.ID)
	if err != nil {
		return err
	}

	r.ID = id
	r.Creator = ""
	r.Title = ""
	if aux.Creator != nil {
		r.Creator = *aux.Creator
	}
	if aux.Title != nil {
		r.Title = *aux.Title
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode id %s: %w", string(raw), err)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

// ExtractionResult is the split of one creator string into names and non-name tokens
type ExtractionResult struct {
	Authors      []string `json:"authors_original"` // Names exactly as they appear, trimmed only
	Affiliations []string `json:"affiliations"`     // Organisations, emails, identifiers
}

// Empty reports whether nothing was extracted
func (r ExtractionResult) Empty() bool {
	return len(r.Authors) == 0 && len(r.Affiliations) == 0
}

// Route is the binary extraction routing decision
type Route string

const (
	RouteSimple  Route = "simple"  // Resolved locally
	RouteComplex Route = "complex" // Sent to the external extractor
)

// Complexity is the three-bucket reporting stratification
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Complexities lists the buckets in reporting order
var Complexities = []Complexity{ComplexitySimple, ComplexityMedium, ComplexityComplex}

// Status is the overall verdict on a processed record
type Status string

const (
	StatusUnset     Status = ""
	StatusCorrect   Status = "correct"
	StatusPartial   Status = "partial"
	StatusIncorrect Status = "incorrect"
)

// ParseStatus converts user input to a Status
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCorrect, StatusPartial, StatusIncorrect:
		return Status(s), nil
	case "", "unset", "null":
		return StatusUnset, nil
	}
	return StatusUnset, fmt.Errorf("unknown status %q (want correct, partial, incorrect or unset)", s)
}

// MarshalJSON writes an unset status as null
func (s Status) MarshalJSON() ([]byte, error) {
	if s == StatusUnset {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON reads null as unset
func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StatusUnset
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ValidationRecord is the unit of review
// Field names match the persisted progress file read by the review tooling
type ValidationRecord struct {
	RecordID              string     `json:"record_id"`
	Title                 string     `json:"title"`
	OriginalCreator       string     `json:"original_creator"`
	ProcessedAuthors      string     `json:"processed_authors"` // Names joined with "; "
	ProcessedAffiliations []string   `json:"processed_affiliations"`
	ComplexityLevel       Complexity `json:"complexity_level"`
	AuthorCount           int        `json:"author_count"` // Expected, from the delimiter split of the original
	CreatorLength         int        `json:"creator_length"`

	Route            Route  `json:"route,omitempty"`
	ExtractionFailed bool   `json:"extraction_failed,omitempty"`
	ExtractionError  string `json:"extraction_error,omitempty"`

	ValidatorName       string     `json:"validator_name,omitempty"`
	ValidationTimestamp *time.Time `json:"validation_timestamp"`

	AuthorIdentificationScore *int     `json:"author_identification_score"`
	AuthorSeparationScore     *int     `json:"author_separation_score"`
	NameAffiliationScore      *int     `json:"name_affiliation_score"`
	NameFormattingScore       *int     `json:"name_formatting_score"`
	OverallStatus             Status   `json:"overall_status"`
	WeightedScore             *float64 `json:"weighted_score,omitempty"`
	Notes                     string   `json:"notes,omitempty"`

	ExternalVerification map[string]any `json:"external_verification,omitempty"`
}

// Reviewed reports whether a verdict has been recorded
func (r *ValidationRecord) Reviewed() bool {
	return r.OverallStatus != StatusUnset
}

// Snapshot maps record id to review state; the unit of atomic persistence
type Snapshot map[string]*ValidationRecord

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
