package sources

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/signalhub/keyword-radar/internal/models"
)

const (
	// MaxPostsLimit bounds how many posts one channel query may return
	MaxPostsLimit = 100
	// MaxCommentsLimit bounds how many replies are kept per post
	MaxCommentsLimit = 50
)

// FetchOptions controls one keyword fetch
type FetchOptions struct {
	Channels           []string
	MaxPosts           int
	MaxCommentsPerPost int
	IncludeComments    bool
}

// FeedClient fetches keyword search feeds from the external discussion source
type FeedClient struct {
	client    *resty.Client
	parser    *gofeed.Parser
	limiter   *rate.Limiter
	baseURL   string
	userAgent string
}

// NewFeedClient creates a feed client. requestDelay is the enforced minimum
// spacing between consecutive outbound requests.
func NewFeedClient(baseURL, userAgent string, requestDelay time.Duration) *FeedClient {
	if requestDelay <= 0 {
		requestDelay = time.Second
	}
	return &FeedClient{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", userAgent),
		parser:    gofeed.NewParser(),
		limiter:   rate.NewLimiter(rate.Every(requestDelay), 1),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
	}
}

// FetchKeyword queries every requested channel for the keyword and returns the
// normalized posts plus a list of per-channel failures. Failed channels are
// skipped; the fetch only errors when no channel could be reached at all.
func (f *FeedClient) FetchKeyword(ctx context.Context, keyword string, opts FetchOptions) ([]models.FeedItem, []string, error) {
	maxPosts := clampLimit(opts.MaxPosts, 25, MaxPostsLimit)

	channels := opts.Channels
	if len(channels) == 0 {
		channels = []string{"all"}
	}

	var items []models.FeedItem
	var failures []string
	reached := 0

	for _, channel := range channels {
		channelItems, err := f.fetchChannel(ctx, keyword, channel, maxPosts)
		if err != nil {
			logrus.Warnf("Failed to fetch channel %s for keyword '%s': %v", channel, keyword, err)
			failures = append(failures, fmt.Sprintf("channel %s: %v", channel, err))
			continue
		}
		reached++
		items = append(items, channelItems...)
	}

	if reached == 0 {
		return nil, failures, fmt.Errorf("no channel reachable for keyword '%s' (%d attempted)", keyword, len(channels))
	}

	items = dedupeItems(items)
	if len(items) > maxPosts {
		items = items[:maxPosts]
	}

	logrus.Infof("Fetched %d posts for keyword '%s' from %d/%d channels", len(items), keyword, reached, len(channels))
	return items, failures, nil
}

func (f *FeedClient) fetchChannel(ctx context.Context, keyword, channel string, limit int) ([]models.FeedItem, error) {
	feedURL := f.searchURL(keyword, channel, limit)

	feed, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var items []models.FeedItem
	for _, entry := range feed.Items {
		item := f.entryToPost(entry, keyword, channel)

		// The search feed can return fuzzy matches; keep only entries that
		// actually mention the keyword.
		content := strings.ToLower(item.Title + " " + item.Content)
		if !strings.Contains(content, strings.ToLower(keyword)) {
			continue
		}

		items = append(items, item)
		if len(items) >= limit {
			break
		}
	}

	return items, nil
}

// FetchComments retrieves the top-level replies of one post, dropping
// deleted/removed/empty bodies.
func (f *FeedClient) FetchComments(ctx context.Context, post models.FeedItem, max int) ([]models.FeedItem, error) {
	max = clampLimit(max, 10, MaxCommentsLimit)

	feed, err := f.get(ctx, post.Permalink+".rss")
	if err != nil {
		return nil, err
	}

	var comments []models.FeedItem
	for _, entry := range feed.Items {
		externalID := entryID(entry)
		// The reply feed echoes the post itself as an entry
		if externalID == post.ExternalID {
			continue
		}

		body := CleanFeedHTML(entryBody(entry))
		if isDeletedBody(body) {
			continue
		}

		comment := models.FeedItem{
			Kind:          models.KindComment,
			ExternalID:    externalID,
			ParentID:      post.ExternalID,
			Author:        entryAuthor(entry),
			Channel:       post.Channel,
			Content:       body,
			Permalink:     entry.Link,
			Keyword:       post.Keyword,
			ProcessStatus: models.ProcessPending,
			IsActive:      true,
			PublishedAt:   entryPublished(entry),
		}

		comments = append(comments, comment)
		if len(comments) >= max {
			break
		}
	}

	return comments, nil
}

// get waits on the rate limiter, issues the request and parses the feed
func (f *FeedClient) get(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		Get(feedURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode())
	}

	feed, err := f.parser.ParseString(resp.String())
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

func (f *FeedClient) searchURL(keyword, channel string, limit int) string {
	query := url.QueryEscape(keyword)
	if channel == "" || channel == "all" {
		return fmt.Sprintf("%s/search.rss?q=%s&sort=new&limit=%d", f.baseURL, query, limit)
	}
	return fmt.Sprintf("%s/r/%s/search.rss?q=%s&restrict_sr=on&sort=new&limit=%d", f.baseURL, channel, query, limit)
}

func (f *FeedClient) entryToPost(entry *gofeed.Item, keyword, channel string) models.FeedItem {
	item := models.FeedItem{
		Kind:          models.KindPost,
		ExternalID:    entryID(entry),
		Author:        entryAuthor(entry),
		Channel:       channelOf(entry, channel),
		Title:         strings.TrimSpace(entry.Title),
		Content:       CleanFeedHTML(entryBody(entry)),
		Permalink:     entry.Link,
		Keyword:       keyword,
		ProcessStatus: models.ProcessPending,
		IsActive:      true,
		PublishedAt:   entryPublished(entry),
	}
	return item
}

// entryBody picks the entry's payload; Atom feeds carry it in content,
// RSS feeds in description.
func entryBody(entry *gofeed.Item) string {
	if entry.Description != "" {
		return entry.Description
	}
	return entry.Content
}

// entryID prefers the feed's stable GUID, falling back to a hash of the link
func entryID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(entry.Link)))[:16]
}

func entryAuthor(entry *gofeed.Item) string {
	if entry.Author == nil {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSpace(entry.Author.Name), "/u/")
}

func entryPublished(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return time.Now().UTC()
}

// channelOf extracts the channel name from the entry categories or permalink
// when searching without a channel restriction.
func channelOf(entry *gofeed.Item, requested string) string {
	if requested != "" && requested != "all" {
		return requested
	}
	for _, cat := range entry.Categories {
		if cat != "" {
			return cat
		}
	}
	// Permalinks look like https://host/r/<channel>/comments/...
	if idx := strings.Index(entry.Link, "/r/"); idx >= 0 {
		rest := entry.Link[idx+3:]
		if slash := strings.Index(rest, "/"); slash > 0 {
			return rest[:slash]
		}
	}
	return "all"
}

func dedupeItems(items []models.FeedItem) []models.FeedItem {
	seen := make(map[string]bool)
	var unique []models.FeedItem

	for _, item := range items {
		if !seen[item.ExternalID] {
			seen[item.ExternalID] = true
			unique = append(unique, item)
		}
	}

	return unique
}

func clampLimit(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
