package utils

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var whitespace = regexp.MustCompile(`\s+`)

// FlattenHTML reduces an HTML fragment to its visible text with normalized
// whitespace. Status feeds wrap incident notes in markup that is useless to
// downstream consumers; entity decoding is handled by the parser.
func FlattenHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	node, err := htmlquery.Parse(strings.NewReader(fragment))
	if err != nil {
		// html.Parse recovers from malformed markup, so err only means
		// the reader failed; fall back to the raw text.
		return compactWhitespace(fragment)
	}
	return digForText(node)
}

func digForText(n *html.Node) string {
	if n == nil {
		return ""
	}
	buf := new(bytes.Buffer)
	dig(n, buf)
	return compactWhitespace(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		// Adjacent elements carry no whitespace between their text nodes,
		// so separate here and let compactWhitespace collapse the extras.
		buf.WriteString(n.Data)
		buf.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}
}

func compactWhitespace(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, " ")
}

// TruncateText hard-truncates s to at most max runes. Incident details can
// run to several kilobytes of changelog; the dashboard only shows a teaser.
func TruncateText(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
