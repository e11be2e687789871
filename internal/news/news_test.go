package news

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	Data map[string][]byte
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*ingest.FetchedDocument, error) {
	content, ok := m.Data[url]
	if !ok {
		return nil, fmt.Errorf("mock 404: %s", url)
	}
	return &ingest.FetchedDocument{
		URL:        url,
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader(content)),
	}, nil
}

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example News</title>
  <item>
    <title>State awards $40 million paving contract</title>
    <link>https://news.example.com/paving</link>
    <description><![CDATA[<p>The <b>DOT</b> awarded a resurfacing contract on Route 9.</p>]]></description>
    <pubDate>Tue, 06 Oct 2026 14:00:00 -0400</pubDate>
  </item>
  <item>
    <title>Town approves new quarry permit</title>
    <link>https://news.example.com/quarry</link>
    <description>Crushing operations expand near the river.</description>
    <pubDate>Thu, 08 Oct 2026 09:00:00 +0000</pubDate>
  </item>
  <item>
    <title>High school team wins championship</title>
    <link>https://news.example.com/sports</link>
    <description>A great night for the home crowd.</description>
    <pubDate>Fri, 09 Oct 2026 09:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Atom</title>
  <entry>
    <title>IIJA dollars headed to bridge repairs</title>
    <link rel="self" href="https://atom.example.com/self/1"/>
    <link rel="alternate" href="https://atom.example.com/bridge"/>
    <summary>Federal money for bridge decks.</summary>
    <updated>2026-10-07T12:00:00Z</updated>
  </entry>
  <entry>
    <title>No date here, but a highway story</title>
    <link href="https://atom.example.com/undated"/>
  </entry>
</feed>`

func testConfig(feeds ...Feed) *Config {
	cfg := DefaultConfig()
	cfg.Feeds = feeds
	return cfg
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)
}

func TestParseFeedRSS(t *testing.T) {
	entries, err := ParseFeed([]byte(rssFixture))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "State awards $40 million paving contract", entries[0].Title)
	assert.Equal(t, "https://news.example.com/paving", entries[0].Link)
	assert.Contains(t, entries[0].Summary, "<b>DOT</b>")
	assert.Equal(t, "Tue, 06 Oct 2026 14:00:00 -0400", entries[0].Published)
}

func TestParseFeedAtom(t *testing.T) {
	entries, err := ParseFeed([]byte(atomFixture))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "https://atom.example.com/bridge", entries[0].Link)
	assert.Equal(t, "Federal money for bridge decks.", entries[0].Summary)
	assert.Equal(t, "2026-10-07T12:00:00Z", entries[0].Published)
	assert.Equal(t, "https://atom.example.com/undated", entries[1].Link)
	assert.Empty(t, entries[1].Published)
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	_, err := ParseFeed([]byte("<<not xml>>"))
	assert.Error(t, err)
}

func TestParseFeedDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Tue, 06 Oct 2026 23:30:00 -0400", "2026-10-07", true},
		{"Tue, 06 Oct 2026 14:00:00 GMT", "2026-10-06", true},
		{"2026-10-07T12:00:00Z", "2026-10-07", true},
		{"2026-10-07", "2026-10-07", true},
		{"last Tuesday", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseFeedDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.UTC().Format("2006-01-02"))
			}
		})
	}
}

func TestMatcher(t *testing.T) {
	m := newMatcher([]string{"IIJA", "BIL", "bridge", "$"})

	assert.True(t, m.Match("New IIJA money"))
	assert.True(t, m.Match("BIL funds arrive"))
	assert.True(t, m.Match("Covered BRIDGE restored"))
	assert.True(t, m.Match("A $5 fee"))
	assert.False(t, m.Match("the bill passed"))
	assert.False(t, m.Match("Mobile home park"))
	assert.False(t, m.Match("iija lowercase"))
	assert.False(t, newMatcher(nil).Match("anything"))
}

func TestCollectorItems(t *testing.T) {
	c := NewCollector(testConfig(), nil, WithClock(fixedClock))
	entries, err := ParseFeed([]byte(rssFixture))
	require.NoError(t, err)

	items := c.Items(Feed{Name: "Example News", State: "VT"}, entries)
	require.Len(t, items, 2)

	paving := items[0]
	assert.Equal(t, ingest.HashID("https://news.example.com/paving"), paving.ID)
	assert.Equal(t, "The DOT awarded a resurfacing contract on Route 9.", paving.Summary)
	assert.Equal(t, models.CategoryFunding, paving.Category)
	assert.Equal(t, PriorityHigh, paving.Priority)
	assert.Equal(t, "2026-10-06", paving.Date)
	assert.Equal(t, "VT", paving.State)
	assert.Equal(t, "Example News", paving.Source)
	assert.Equal(t, []string{ingest.LineHighway, ingest.LineHotMixAsphalt}, paving.BusinessLines)

	quarry := items[1]
	assert.Equal(t, models.CategoryNews, quarry.Category)
	assert.Equal(t, PriorityMedium, quarry.Priority)
	assert.Equal(t, []string{ingest.LineAggregates}, quarry.BusinessLines)
}

func TestCollectorItemsCapsEntriesAndSummary(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntriesPerFeed = 2
	cfg.SummaryMax = 50
	c := NewCollector(cfg, nil, WithClock(fixedClock))

	long := strings.Repeat("highway ", 20)
	entries := []Entry{
		{Title: "one", Link: "https://x/1", Summary: long},
		{Title: "two highway", Link: "https://x/2"},
		{Title: "three highway", Link: "https://x/3"},
	}
	items := c.Items(Feed{Name: "X", State: "NH"}, entries)
	require.Len(t, items, 2)
	assert.LessOrEqual(t, len([]rune(items[0].Summary)), 50)
	assert.Equal(t, "2026-10-18", items[1].Date)
}

func TestCollectorItemsFallsBackToTitleForID(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	items := c.Items(Feed{Name: "X", State: "NH"}, []Entry{{Title: "Bridge  closure\n ahead"}})
	require.Len(t, items, 1)
	assert.Equal(t, "Bridge closure ahead", items[0].Title)
	assert.Equal(t, ingest.HashID("Bridge closure ahead"), items[0].ID)
}

func TestCollectorCollect(t *testing.T) {
	cfg := testConfig(
		Feed{Name: "RSS", URL: "https://rss.example.com/feed", State: "VT"},
		Feed{Name: "Atom", URL: "https://atom.example.com/feed", State: "NH"},
		Feed{Name: "Down", URL: "https://down.example.com/feed", State: "ME"},
	)
	fetcher := &MockFetcher{Data: map[string][]byte{
		"https://rss.example.com/feed":  []byte(rssFixture),
		"https://atom.example.com/feed": []byte(atomFixture),
	}}
	c := NewCollector(cfg, fetcher, WithClock(fixedClock))

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 4)

	var dates []string
	for _, it := range items {
		dates = append(dates, it.Date)
	}
	assert.Equal(t, []string{"2026-10-18", "2026-10-08", "2026-10-07", "2026-10-06"}, dates)
	assert.Equal(t, "NH", items[0].State)
	assert.Equal(t, models.CategoryFunding, items[2].Category)
	assert.Equal(t, PriorityHigh, items[2].Priority)
}

func TestCollectorCollectAllFeedsFail(t *testing.T) {
	cfg := testConfig(
		Feed{Name: "A", URL: "https://a.example.com/feed", State: "VT"},
		Feed{Name: "B", URL: "https://b.example.com/feed", State: "NH"},
	)
	c := NewCollector(cfg, &MockFetcher{})

	items, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 feeds failed")
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCollectorCollectNoFeeds(t *testing.T) {
	items, err := NewCollector(testConfig(), &MockFetcher{}).Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.MaxEntriesPerFeed)
	assert.Equal(t, 300, cfg.SummaryMax)
	assert.Len(t, cfg.Feeds, 10)
	assert.Contains(t, cfg.Keywords.Funding, "$")
	assert.Contains(t, cfg.Keywords.HighPriority, "IIJA")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	yml := `keywords:
  high_priority: [highway]
  medium_priority: [road]
  funding: [grant]
feeds:
  - name: Local
    url: https://local.example.com/rss
    state: VT
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.MaxEntriesPerFeed)
	assert.Equal(t, 4, cfg.Concurrency)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, "Local", cfg.Feeds[0].Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"no keywords": "feeds: []\n",
		"bad state": `keywords: {high_priority: [a], medium_priority: [b], funding: [c]}
feeds: [{name: X, url: "https://x.example.com", state: vt}]
`,
		"bad url": `keywords: {high_priority: [a], medium_priority: [b], funding: [c]}
feeds: [{name: X, url: "not a url", state: VT}]
`,
		"zero concurrency": `concurrency: 0
keywords: {high_priority: [a], medium_priority: [b], funding: [c]}
`,
	}
	for name, yml := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(yml))
			assert.Error(t, err)
		})
	}
}
