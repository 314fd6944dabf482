package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalhub/keyword-radar/internal/analysis"
	"github.com/signalhub/keyword-radar/internal/models"
	"github.com/signalhub/keyword-radar/internal/sources"
)

// CycleOptions tunes one ingestion cycle. Zero values fall back to the
// runner's configured defaults.
type CycleOptions struct {
	Channels           []string
	MaxPosts           int
	MaxCommentsPerPost int
	IncludeComments    bool
	// ForceRefresh reclassifies items that already carry an analysis instead
	// of reusing the stored one.
	ForceRefresh bool
}

// CycleDefaults are the runner-level fallbacks for cycle options
type CycleDefaults struct {
	Channels        []string
	MaxPosts        int
	MaxComments     int
	ClassifyWorkers int
}

// CycleRunner executes the fetch -> classify -> score -> store chain for one
// keyword. Channel failures and classification failures are absorbed locally;
// only a completely unreachable feed fails the cycle.
type CycleRunner struct {
	fetcher    Fetcher
	classifier Classifier
	items      ItemStore
	defaults   CycleDefaults
}

func NewCycleRunner(fetcher Fetcher, classifier Classifier, items ItemStore, defaults CycleDefaults) *CycleRunner {
	if defaults.ClassifyWorkers < 1 {
		defaults.ClassifyWorkers = 4
	}
	if defaults.MaxPosts < 1 {
		defaults.MaxPosts = 25
	}
	if defaults.MaxComments < 1 {
		defaults.MaxComments = 10
	}
	return &CycleRunner{
		fetcher:    fetcher,
		classifier: classifier,
		items:      items,
		defaults:   defaults,
	}
}

// Run executes one cycle for the keyword. The returned error is the
// cycle-fatal outcome (no channel reachable); partial failures are collected
// into the result's errors list instead.
func (r *CycleRunner) Run(ctx context.Context, keyword models.Keyword, opts CycleOptions) (*models.FetchResult, error) {
	start := time.Now()
	result := &models.FetchResult{
		Keyword: keyword.Term,
		Errors:  []string{},
	}

	fetchOpts := sources.FetchOptions{
		Channels:           opts.Channels,
		MaxPosts:           opts.MaxPosts,
		MaxCommentsPerPost: opts.MaxCommentsPerPost,
		IncludeComments:    opts.IncludeComments,
	}
	if len(fetchOpts.Channels) == 0 {
		fetchOpts.Channels = keyword.Channels
	}
	if len(fetchOpts.Channels) == 0 {
		fetchOpts.Channels = r.defaults.Channels
	}
	if fetchOpts.MaxPosts == 0 {
		fetchOpts.MaxPosts = r.defaults.MaxPosts
	}
	if fetchOpts.MaxCommentsPerPost == 0 {
		fetchOpts.MaxCommentsPerPost = r.defaults.MaxComments
	}

	posts, channelFailures, err := r.fetcher.FetchKeyword(ctx, keyword.Term, fetchOpts)
	result.Errors = append(result.Errors, channelFailures...)
	if err != nil {
		result.ProcessingTime = time.Since(start).String()
		return result, err
	}
	result.TotalPosts = len(posts)

	allItems := posts
	if fetchOpts.IncludeComments {
		for _, post := range posts {
			comments, err := r.fetcher.FetchComments(ctx, post, fetchOpts.MaxCommentsPerPost)
			if err != nil {
				logrus.Warnf("Failed to fetch comments for %s: %v", post.ExternalID, err)
				result.Errors = append(result.Errors, fmt.Sprintf("comments for %s: %v", post.ExternalID, err))
				continue
			}
			result.TotalComments += len(comments)
			allItems = append(allItems, comments...)
		}
	}

	stored := r.processItems(ctx, allItems, opts.ForceRefresh, result)
	result.TotalStored = stored
	result.ProcessingTime = time.Since(start).String()

	logrus.Infof("Cycle for '%s' stored %d/%d items in %s",
		keyword.Term, stored, len(allItems), result.ProcessingTime)
	return result, nil
}

// processItems classifies, scores and persists the fetched items. Items are
// classified concurrently up to the worker bound; a failed classification or
// store for one item never blocks its siblings.
func (r *CycleRunner) processItems(ctx context.Context, items []models.FeedItem, forceRefresh bool, result *models.FetchResult) int {
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.defaults.ClassifyWorkers)

	var mu sync.Mutex
	stored := 0

	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item models.FeedItem) {
			defer wg.Done()
			defer func() { <-sem }()

			err := r.processItem(ctx, &item, forceRefresh)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("item %s: %v", item.ExternalID, err))
				return
			}
			stored++
		}(items[i])
	}

	wg.Wait()
	return stored
}

func (r *CycleRunner) processItem(ctx context.Context, item *models.FeedItem, forceRefresh bool) error {
	// First write persists the raw item so dedup happens before the
	// classification round trip.
	id, _, hasAnalysis, err := r.items.Upsert(ctx, item)
	if err != nil {
		return fmt.Errorf("store raw: %w", err)
	}

	// A previously classified item keeps its stored analysis and score; the
	// raw write above already refreshed the content fields.
	if hasAnalysis && !forceRefresh {
		return r.items.MarkCompleted(ctx, id)
	}

	if err := r.items.MarkProcessing(ctx, id); err != nil {
		logrus.Warnf("Failed to mark item %d processing: %v", id, err)
	}

	record := r.classifier.Classify(ctx, item.Title+"\n"+item.Content, analysis.ItemContext{
		Keyword: item.Keyword,
		Channel: item.Channel,
		Title:   item.Title,
	})

	item.Analysis = record
	item.WeightedScore = analysis.WeightedScore(record)
	item.ProcessStatus = models.ProcessCompleted

	if _, _, _, err := r.items.Upsert(ctx, item); err != nil {
		if markErr := r.items.MarkFailed(ctx, id); markErr != nil {
			logrus.Warnf("Failed to mark item %d failed: %v", id, markErr)
		}
		return fmt.Errorf("store analysis: %w", err)
	}

	return r.items.MarkCompleted(ctx, id)
}
