package post

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// TableOfContents lists the h1 to h3 headings of content in document order.
// Repeated slugs get -1, -2, ... suffixes so every anchor is unique.
func TableOfContents(content string) []Heading {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return []Heading{}
	}
	headings := []Heading{}
	counts := make(map[string]int)
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		id := slugSeparators.ReplaceAllString(strings.ToLower(text), "-")
		if n, seen := counts[id]; seen {
			counts[id] = n + 1
			id += "-" + strconv.Itoa(n+1)
		} else {
			counts[id] = 0
		}
		level, _ := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		headings = append(headings, Heading{ID: id, Text: text, Level: level})
	})
	return headings
}
