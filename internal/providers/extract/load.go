package extract

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// detectCharset returns the most likely charset of data
func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// loadHTML parses markup into a goquery document. Input that is not valid
// UTF-8 is transcoded from its detected charset first. Nesting beyond
// maxNesting is flattened before parsing; the flag reports whether it was.
func loadHTML(markup string, maxNesting int) (*goquery.Document, bool, error) {
	if !utf8.ValidString(markup) {
		data := []byte(markup)
		if reader, err := charset.NewReader(bytes.NewReader(data), "text/html; charset="+detectCharset(data)); err == nil {
			if decoded, err := io.ReadAll(reader); err == nil {
				markup = string(decoded)
			}
		}
	}

	markup, limited := limitNesting(markup, maxNesting)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	return doc, limited, err
}

// normalizeWhitespace collapses runs of whitespace into one space
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// capRunes cuts s to at most n runes
func capRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimSpace(s[:pos])
		}
		i++
	}
	return s
}
