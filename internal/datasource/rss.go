package datasource

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var htmlTagPattern = regexp.MustCompile(`<.*?>`)

// RSSClient aggregates headlines from a set of RSS 2.0 feeds.
type RSSClient struct {
	feeds    map[string]string // provider name -> feed URL
	maxItems int
	client   *http.Client
	logger   zerolog.Logger
}

// NewRSSClient creates a news provider over the given feeds.
func NewRSSClient(feeds map[string]string, maxItems int, timeout time.Duration, logger zerolog.Logger) *RSSClient {
	if maxItems <= 0 {
		maxItems = 10
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RSSClient{
		feeds:    feeds,
		maxItems: maxItems,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("provider", "rss").Logger(),
	}
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// LatestNews fetches every configured feed, merges the entries and returns
// the newest maxItems. Feeds that fail are logged and skipped.
func (c *RSSClient) LatestNews(ctx context.Context) ([]NewsItem, error) {
	var all []NewsItem

	for provider, feedURL := range c.feeds {
		items, err := c.fetchFeed(ctx, provider, feedURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("provider", provider).Msg("Feed fetch failed")
			continue
		}
		all = append(all, items...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if len(all) > c.maxItems {
		all = all[:c.maxItems]
	}
	return all, nil
}

func (c *RSSClient) fetchFeed(ctx context.Context, provider, feedURL string) ([]NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed error (%d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := doc.Channel.Items
	if len(items) > c.maxItems {
		items = items[:c.maxItems]
	}

	out := make([]NewsItem, 0, len(items))
	for _, item := range items {
		out = append(out, NewsItem{
			Provider:  provider,
			Title:     cleanHTML(item.Title),
			Summary:   cleanHTML(item.Description),
			Link:      item.Link,
			Published: item.PubDate,
			Timestamp: parsePubDate(item.PubDate),
		})
	}
	return out, nil
}

// cleanHTML strips tags and collapses surrounding whitespace.
func cleanHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}

func parsePubDate(s string) int64 {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}
