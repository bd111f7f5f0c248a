package validate

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/creatorcheck/internal/normalize"
)

const maxQueryTitle = 100

// SearchURL is a ready-made manual lookup link
type SearchURL struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// SearchURLs builds manual lookup links for a title and its first author
func SearchURLs(title, authors string) []SearchURL {
	t := cleanTitle(title)
	first := FirstAuthor(authors)

	return []SearchURL{
		{
			Source: "google_scholar",
			URL:    "https://scholar.google.com/scholar?q=" + url.QueryEscape(quoted(t)+" "+quoted(first)),
		},
		{
			Source: "semantic_scholar",
			URL:    "https://www.semanticscholar.org/search?q=" + url.QueryEscape(t+" "+first),
		},
		{
			Source: "pubmed",
			URL:    "https://pubmed.ncbi.nlm.nih.gov/?term=" + url.QueryEscape(quoted(t)+"[Title] AND "+quoted(first)+"[Author]"),
		},
	}
}

// FirstAuthor returns the first name of a "; " joined author list, without
// any bracketed affiliation suffix
func FirstAuthor(authors string) string {
	first, _, _ := strings.Cut(authors, ";")
	if i := strings.IndexAny(first, "(["); i >= 0 {
		first = first[:i]
	}
	return strings.TrimSpace(first)
}

// cleanTitle strips markup and truncates long titles for use in a query
func cleanTitle(title string) string {
	t := normalize.Normalize(title)
	if utf8.RuneCountInString(t) <= maxQueryTitle {
		return t
	}
	return string([]rune(t)[:maxQueryTitle]) + "..."
}

func quoted(s string) string {
	return `"` + s + `"`
}

// titleOverlap is the Jaccard similarity of the lower-cased word sets
func titleOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	union := len(wa) + len(wb) - shared
	return float64(shared) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
