package page

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedSubtree reports whether n's entire text content must be
// discarded when normalizing a page body. The <title> text is excluded
// too: it is reported separately by Title.
func skippedSubtree(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Title:
		return true
	default:
		return false
	}
}

// Normalize strips <script>/<style>/<noscript> subtrees and the <title>
// element from an HTML document, concatenates the remaining text nodes with single-space
// separators, collapses all whitespace runs (including newlines) into
// single spaces, and trims the result. The output is UTF-8 text.
func Normalize(htmlText string) string {
	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedSubtree(n) {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}

// Title returns the trimmed content of the first <title> element, or
// the empty string if the document has none.
func Title(htmlText string) string {
	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return ""
	}

	var title string
	found := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			found = true
			return
		}
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title
}

// Sha256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TextHash computes the page-level content fingerprint used for
// dedup/unchanged classification: SHA-256 over the UTF-8 bytes of the
// normalized text.
func TextHash(normalizedText string) string {
	return Sha256Hex([]byte(normalizedText))
}
