package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	markupExpr = regexp.MustCompile(`</?[a-zA-Z][^>]*>|&[a-zA-Z]+;|&#[0-9]+;`)
	spaceExpr  = regexp.MustCompile(`[ \t\f\v]+`)
	blankExpr  = regexp.MustCompile(`\n\s*\n+`)
)

const blockSelector = "p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre"

// PlainText flattens HTML-ish legacy text to plain text. Block elements and <br>
// become line breaks, entities are decoded, runs of spaces collapse. Input without
// markup is only whitespace-normalized.
func PlainText(s string) string {
	if !markupExpr.MatchString(s) {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).AppendHtml("\n")
	doc.Find("li").PrependHtml("- ")
	return collapse(doc.Text())
}

func collapse(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceExpr.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankExpr.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
