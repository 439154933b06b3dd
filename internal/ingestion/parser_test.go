package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParserForDispatchesByMimeType(t *testing.T) {
	assert.IsType(t, HTMLParser{}, ParserFor("text/html; charset=utf-8"))
	assert.IsType(t, MarkdownParser{}, ParserFor("text/markdown"))
	assert.IsType(t, PlainTextParser{}, ParserFor("application/octet-stream"))
}

func TestPlainTextParserPassesThrough(t *testing.T) {
	text, parseErr := PlainTextParser{}.Parse([]byte("hello world"))
	assert.Equal(t, "hello world", text)
	assert.Empty(t, parseErr)
}

func TestMarkdownParserStripsFormatting(t *testing.T) {
	md := "# Heading\n\nSome **bold** text.\n\n* bullet one\n* bullet two"
	text, parseErr := MarkdownParser{}.Parse([]byte(md))
	assert.Empty(t, parseErr)
	assert.NotContains(t, text, "#")
	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "bullet one")
}

func TestHTMLParserExtractsVisibleTextOnly(t *testing.T) {
	html := `<html><head><style>.a{}</style></head><body>
		<nav>Home | About</nav>
		<header>Site Header</header>
		<article><h1>Title</h1><p>Body paragraph one.</p><p>Body paragraph two.</p></article>
		<footer>Copyright</footer>
	</body></html>`
	text, parseErr := HTMLParser{}.Parse([]byte(html))
	assert.Empty(t, parseErr)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Body paragraph one.")
	assert.Contains(t, text, "Body paragraph two.")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Site Header")
	assert.NotContains(t, text, "Copyright")
}

func TestHTMLParserHandlesMalformedMarkup(t *testing.T) {
	text, parseErr := HTMLParser{}.Parse([]byte("<p>unclosed paragraph"))
	assert.Empty(t, parseErr)
	assert.Contains(t, text, "unclosed paragraph")
}
