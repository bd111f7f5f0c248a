// Package normalize cleans raw creator strings before classification.
package normalize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Normalize strips markup, applies NFKC and collapses whitespace.
// It never fails; empty input yields an empty string.
//
// Entity decoding and NFKC can surface new markup (for example "&lt;b&gt;"
// or a fullwidth "＜"), so passes repeat until the output stops changing.
// Every pass that changes the text after the first one makes it shorter,
// which bounds the loop.
func Normalize(raw string) string {
	current := pass(raw)
	for {
		next := pass(current)
		if next == current || len(next) >= len(current) {
			return current
		}
		current = next
	}
}

func pass(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := visibleText(raw)
	text = norm.NFKC.String(text)
	return collapseWhitespace(text)
}

// visibleText renders text nodes separated by spaces so adjacent
// elements never concatenate tokens. Script and style bodies are dropped.
func visibleText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
			buf.WriteString(" ")
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			buf.WriteString(" ")
		}
	}

	walk(doc)
	return buf.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
