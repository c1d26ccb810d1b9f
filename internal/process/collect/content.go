package collect

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// truncateText hard-cuts s to max runes. Queries and stored bodies need a
// clean cut, not an ellipsis.
func truncateText(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	return string([]rune(s)[:max])
}

// normalizeWhitespace collapses runs of whitespace, including newlines, into
// single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// readableText extracts the readable article text from an HTML page. Pages
// readability cannot make sense of (filing index tables, plain text) fall
// back to a plain tag strip.
func readableText(pageURL string, raw []byte) string {
	u, _ := url.Parse(pageURL)

	article, err := readability.FromReader(bytes.NewReader(raw), u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return normalizeWhitespace(article.TextContent)
	}

	return normalizeWhitespace(stripTags(raw))
}

// skipElements are subtrees whose text content is never document body.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

// stripTags collects the text nodes of an HTML fragment, separated by
// spaces. Non-HTML input passes through as-is.
func stripTags(raw []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(raw))

	var (
		b    strings.Builder
		skip string
	)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if b.Len() == 0 {
				return string(raw)
			}

			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skip == "" && skipElements[string(name)] {
				skip = string(name)
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skip == string(name) {
				skip = ""
			}
		case html.TextToken:
			if skip != "" {
				continue
			}

			b.Write(tokenizer.Text())
			b.WriteByte(' ')
		}
	}
}
