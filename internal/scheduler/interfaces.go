package scheduler

import (
	"context"

	"github.com/signalhub/keyword-radar/internal/analysis"
	"github.com/signalhub/keyword-radar/internal/models"
	"github.com/signalhub/keyword-radar/internal/sources"
)

// Fetcher retrieves keyword search results from the external feed source
type Fetcher interface {
	FetchKeyword(ctx context.Context, keyword string, opts sources.FetchOptions) ([]models.FeedItem, []string, error)
	FetchComments(ctx context.Context, post models.FeedItem, max int) ([]models.FeedItem, error)
}

// Classifier produces an analysis record for one item. Implementations never
// fail: a fallback record stands in when the external service is unavailable.
type Classifier interface {
	Classify(ctx context.Context, text string, itemCtx analysis.ItemContext) *models.AnalysisRecord
}

// ItemStore is the subset of item persistence the pipeline needs
type ItemStore interface {
	Upsert(ctx context.Context, item *models.FeedItem) (id int64, isNew bool, hasAnalysis bool, err error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

// KeywordStore is the keyword registry as seen by the scheduler
type KeywordStore interface {
	Register(ctx context.Context, term string, intervalHours int, autoFetch bool, channels []string) (*models.Keyword, error)
	GetByTerm(ctx context.Context, term string) (*models.Keyword, error)
	ListActive(ctx context.Context) ([]models.Keyword, error)
	ClaimDue(ctx context.Context, limit int) ([]models.Keyword, error)
	Claim(ctx context.Context, term string) (*models.Keyword, error)
	MarkCompleted(ctx context.Context, term string) error
	MarkFailed(ctx context.Context, term string) error
	UpdateInterval(ctx context.Context, term string, intervalHours int) error
	Deactivate(ctx context.Context, term string) error
	Counts(ctx context.Context) (active int, due int, err error)
}

// TrendUpdater recomputes keyword rollups after completed cycles
type TrendUpdater interface {
	RefreshKeyword(ctx context.Context, term string) error
	RecomputeTrending(ctx context.Context) error
	Stats(ctx context.Context, term string) (*models.KeywordStats, error)
}
