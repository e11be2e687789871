package news

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// Entry is one RSS item or Atom entry, as published.
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Published string
}

// ParseFeed reads the items of an RSS 2.0, RSS 1.0 or Atom document.
func ParseFeed(data []byte) ([]Entry, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	nodes, err := xmlquery.QueryAll(doc, "//*[local-name()='item' or local-name()='entry']")
	if err != nil {
		return nil, fmt.Errorf("query feed items: %w", err)
	}

	entries := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		entries = append(entries, Entry{
			Title:     childText(n, "title"),
			Link:      entryLink(n),
			Summary:   childText(n, "description", "summary", "encoded", "content"),
			Published: childText(n, "pubDate", "published", "updated", "date"),
		})
	}
	return entries, nil
}

// childText returns the text of the first child element found, trying the
// local names in order.
func childText(n *xmlquery.Node, names ...string) string {
	for _, name := range names {
		child := xmlquery.FindOne(n, fmt.Sprintf("*[local-name()='%s']", name))
		if child == nil {
			continue
		}
		if text := strings.TrimSpace(child.InnerText()); text != "" {
			return text
		}
	}
	return ""
}

// entryLink handles both RSS text links and Atom href links, preferring the
// alternate relation.
func entryLink(n *xmlquery.Node) string {
	var fallback string
	for _, link := range xmlquery.Find(n, "*[local-name()='link']") {
		if text := strings.TrimSpace(link.InnerText()); text != "" {
			return text
		}
		href := strings.TrimSpace(link.SelectAttr("href"))
		if href == "" {
			continue
		}
		rel := link.SelectAttr("rel")
		if rel == "" || rel == "alternate" {
			return href
		}
		if fallback == "" {
			fallback = href
		}
	}
	return fallback
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseFeedDate reads a publication date in any of the common feed layouts.
func parseFeedDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
