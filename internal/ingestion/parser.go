package ingestion

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Parser extracts normalized plain text from raw artifact bytes of a given
// MIME type.
type Parser interface {
	Parse(content []byte) (text string, parseErr string)
}

// ParserFor returns the Parser registered for mimeType, falling back to
// the plain-text parser for unrecognized types rather than failing
// ingestion outright.
func ParserFor(mimeType string) Parser {
	switch {
	case strings.Contains(mimeType, "html"):
		return HTMLParser{}
	case strings.Contains(mimeType, "markdown"):
		return MarkdownParser{}
	default:
		return PlainTextParser{}
	}
}

// PlainTextParser passes content through as UTF-8 text.
type PlainTextParser struct{}

func (PlainTextParser) Parse(content []byte) (string, string) {
	return string(content), ""
}

// MarkdownParser strips the most common Markdown formatting markers so
// downstream chunking operates on readable prose rather than raw syntax.
// It is not a full CommonMark renderer: it strips leading '#' heading
// markers and '*', '_' and '`' characters at the ends of each line; inline
// emphasis and link syntax inside a line are left as they are.
type MarkdownParser struct{}

func (MarkdownParser) Parse(content []byte) (string, string) {
	lines := strings.Split(string(content), "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, "#")
		trimmed = strings.TrimSpace(trimmed)
		trimmed = strings.Trim(trimmed, "*_`")
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n\n"), ""
}

// HTMLParser walks the DOM with golang.org/x/net/html and extracts visible
// text, dropping <script>, <style>, <nav>, <header>, and <footer> content
// so navigation chrome never pollutes a quotable Chunk.
type HTMLParser struct{}

var skipTags = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"header": true,
	"footer": true,
	"noscript": true,
}

func (HTMLParser) Parse(content []byte) (string, string) {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return "", fmt.Sprintf("ingestion: parse html: %v", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node, skip bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			skip = true
		}
		if n.Type == html.TextNode && !skip {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
		if n.Type == html.ElementNode && isBlockLevel(n.Data) {
			sb.WriteString("\n\n")
		}
	}
	walk(doc, false)

	return normalizeWhitespace(sb.String()), ""
}

func isBlockLevel(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "section", "article":
		return true
	default:
		return false
	}
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
