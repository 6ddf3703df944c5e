package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// CleanCaption reduces an engine caption to one plain-text line of at most
// max runes. Captions may arrive as HTML fragments with entities and <br>.
func CleanCaption(raw string, max int) string {
	text := raw
	if strings.ContainsAny(raw, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			doc.Find("br").ReplaceWithHtml("\n")
			doc.Find("p, div, li").Each(func(_ int, s *goquery.Selection) {
				s.AppendHtml("\n")
			})
			text = doc.Text()
		}
	}

	line := ""
	for _, l := range strings.Split(text, "\n") {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			line = l
			break
		}
	}

	if max > 0 && utf8.RuneCountInString(line) > max {
		runes := []rune(line)
		line = strings.TrimSpace(string(runes[:max]))
	}
	return line
}
