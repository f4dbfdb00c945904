// Package clean converts article HTML into plain text plus the weak
// metadata (title, author, published date) news sites expose in meta tags.
package clean

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Meta is the weak metadata scraped from the document head. Published is
// nil when no parseable date was found; callers backfill from it only when
// nothing better is known.
type Meta struct {
	Title     string
	Author    string
	Published *time.Time
}

// skipElements never contribute article text.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"form": true, "button": true, "svg": true, "iframe": true,
}

// blockElements delimit paragraphs in the extracted text.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "br": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "blockquote": true, "figcaption": true,
}

var reWhitespace = regexp.MustCompile(`[ \t\r\f]+`)

var reBlankLines = regexp.MustCompile(`\n{3,}`)

// metaDateKeys are meta tag names/properties carrying a publication date,
// in preference order.
var metaDateKeys = []string{
	"article:published_time", "og:published_time", "datePublished",
	"date", "dc.date", "parsely-pub-date", "sailthru.date",
}

var metaAuthorKeys = []string{"author", "article:author", "parsely-author", "dc.creator"}

// dateLayouts are tried in order against meta tag content.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Clean parses HTML and returns the readable text and head metadata. It
// never fails: unparseable input degrades to empty output.
func Clean(htmlSrc string) (string, Meta) {
	doc, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return "", Meta{}
	}

	var meta Meta
	var sb strings.Builder
	walk(doc, &sb, &meta)

	text := reWhitespace.ReplaceAllString(sb.String(), " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), meta
}

func walk(n *html.Node, sb *strings.Builder, meta *Meta) {
	switch n.Type {
	case html.ElementNode:
		if skipElements[n.Data] {
			return
		}
		switch n.Data {
		case "title":
			if meta.Title == "" {
				meta.Title = strings.TrimSpace(textContent(n))
			}
		case "meta":
			captureMeta(n, meta)
		}
		if blockElements[n.Data] {
			sb.WriteString("\n")
		}
	case html.TextNode:
		sb.WriteString(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb, meta)
	}

	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteString("\n")
	}
}

func captureMeta(n *html.Node, meta *Meta) {
	var key, content string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "name", "property", "itemprop":
			key = strings.ToLower(attr.Val)
		case "content":
			content = strings.TrimSpace(attr.Val)
		}
	}
	if key == "" || content == "" {
		return
	}

	if key == "og:title" && meta.Title == "" {
		meta.Title = content
		return
	}
	if meta.Author == "" {
		for _, k := range metaAuthorKeys {
			if key == strings.ToLower(k) {
				meta.Author = content
				return
			}
		}
	}
	if meta.Published == nil {
		for _, k := range metaDateKeys {
			if key == strings.ToLower(k) {
				if t, ok := parseDate(content); ok {
					meta.Published = &t
				}
				return
			}
		}
	}
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
