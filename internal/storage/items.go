package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/signalhub/keyword-radar/internal/models"
)

// ItemStore persists feed items. Items are deduplicated on
// (kind, external_id, keyword): re-ingesting an item updates in place.
type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

// Upsert inserts a new item or refreshes an existing one. Content fields are
// always refreshed; the analysis and weighted score only change when the
// incoming item carries an analysis, so saves without a modified analysis
// leave the stored score untouched. Returns the row id, whether the item was
// newly inserted, and whether the stored row carries an analysis.
func (s *ItemStore) Upsert(ctx context.Context, item *models.FeedItem) (int64, bool, bool, error) {
	query := `
		INSERT INTO feed_items (
			kind, external_id, parent_id, author, channel, title, content,
			permalink, source_score, keyword, analysis, weighted_score,
			process_status, is_active, published_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE, $14
		)
		ON CONFLICT (kind, external_id, keyword) DO UPDATE SET
			parent_id      = EXCLUDED.parent_id,
			author         = EXCLUDED.author,
			channel        = EXCLUDED.channel,
			title          = EXCLUDED.title,
			content        = EXCLUDED.content,
			permalink      = EXCLUDED.permalink,
			source_score   = EXCLUDED.source_score,
			analysis       = COALESCE(EXCLUDED.analysis, feed_items.analysis),
			weighted_score = CASE
				WHEN EXCLUDED.analysis IS NOT NULL THEN EXCLUDED.weighted_score
				ELSE feed_items.weighted_score
			END,
			process_status = EXCLUDED.process_status,
			is_active      = TRUE,
			updated_at     = NOW()
		RETURNING id, (xmax = 0) AS is_new, (analysis IS NOT NULL) AS has_analysis`

	var id int64
	var isNew, hasAnalysis bool
	err := s.db.QueryRowContext(ctx, query,
		item.Kind,
		item.ExternalID,
		item.ParentID,
		item.Author,
		item.Channel,
		item.Title,
		item.Content,
		item.Permalink,
		item.SourceScore,
		item.Keyword,
		item.Analysis,
		item.WeightedScore,
		item.ProcessStatus,
		item.PublishedAt,
	).Scan(&id, &isNew, &hasAnalysis)
	if err != nil {
		return 0, false, false, fmt.Errorf("upsert item %s: %w", item.ExternalID, err)
	}

	item.ID = id
	return id, isNew, hasAnalysis, nil
}

// MarkProcessing transitions an item into the processing state
func (s *ItemStore) MarkProcessing(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, models.ProcessProcessing, false)
}

// MarkCompleted transitions an item into the completed state
func (s *ItemStore) MarkCompleted(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, models.ProcessCompleted, false)
}

// MarkFailed transitions an item into the failed state and bumps its attempt counter
func (s *ItemStore) MarkFailed(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, models.ProcessFailed, true)
}

func (s *ItemStore) setStatus(ctx context.Context, id int64, status models.ProcessStatus, bumpAttempts bool) error {
	query := `UPDATE feed_items SET process_status = $2, updated_at = NOW() WHERE id = $1`
	if bumpAttempts {
		query = `UPDATE feed_items SET process_status = $2, attempts = attempts + 1, updated_at = NOW() WHERE id = $1`
	}

	result, err := s.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("set item %d status: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d not found", id)
	}
	return nil
}

// Deactivate soft-deletes an item; deactivated items are excluded from all reads
func (s *ItemStore) Deactivate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE feed_items SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// Sort fields accepted by List
var sortColumns = map[string]string{
	"weighted_score": "weighted_score",
	"published_at":   "published_at",
	"created_at":     "created_at",
	"source_score":   "source_score",
}

// ListOptions filters and pages the item listing
type ListOptions struct {
	Keyword   string
	Kind      models.ItemKind // empty = both variants
	Sentiment string
	Channel   string
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// List returns active items matching the filters, plus the total match count
func (s *ItemStore) List(ctx context.Context, opts ListOptions) ([]models.FeedItem, int, error) {
	where := []string{"is_active = TRUE"}
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Keyword != "" {
		where = append(where, fmt.Sprintf("LOWER(keyword) = LOWER(%s)", arg(opts.Keyword)))
	}
	if opts.Kind != "" {
		where = append(where, fmt.Sprintf("kind = %s", arg(opts.Kind)))
	}
	if opts.Sentiment != "" {
		where = append(where, fmt.Sprintf("analysis->'sentiment'->>'classification' = %s", arg(opts.Sentiment)))
	}
	if opts.Channel != "" {
		where = append(where, fmt.Sprintf("LOWER(channel) = LOWER(%s)", arg(opts.Channel)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM feed_items WHERE " + whereClause
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	sortCol, ok := sortColumns[opts.SortBy]
	if !ok {
		sortCol = "weighted_score"
	}
	order := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		order = "ASC"
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := fmt.Sprintf(
		"SELECT * FROM feed_items WHERE %s ORDER BY %s %s, published_at DESC LIMIT %s OFFSET %s",
		whereClause, sortCol, order, arg(pageSize), arg((page-1)*pageSize))

	var items []models.FeedItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}

	return items, total, nil
}

// ByChannel returns active items for one channel, highest scored first
func (s *ItemStore) ByChannel(ctx context.Context, channel string, limit int) ([]models.FeedItem, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var items []models.FeedItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM feed_items
		WHERE is_active = TRUE AND LOWER(channel) = LOWER($1)
		ORDER BY weighted_score DESC, published_at DESC
		LIMIT $2`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("items by channel: %w", err)
	}
	return items, nil
}

// SentimentCounts groups a keyword's active items by sentiment classification
func (s *ItemStore) SentimentCounts(ctx context.Context, keyword string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(analysis->'sentiment'->>'classification', 'neutral') AS classification,
		       COUNT(*)
		FROM feed_items
		WHERE is_active = TRUE AND LOWER(keyword) = LOWER($1)
		GROUP BY classification`, keyword)
	if err != nil {
		return nil, fmt.Errorf("sentiment counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{"positive": 0, "negative": 0, "neutral": 0}
	for rows.Next() {
		var classification string
		var count int
		if err := rows.Scan(&classification, &count); err != nil {
			return nil, err
		}
		counts[classification] = count
	}

	return counts, rows.Err()
}

// ChannelRollup ranks a keyword's channels by active item count, annotating
// each with an average sentiment score on the fixed 100/70/40 scale.
func (s *ItemStore) ChannelRollup(ctx context.Context, keyword string, limit int) ([]models.ChannelStat, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT channel,
		       COUNT(*) AS count,
		       AVG(CASE COALESCE(analysis->'sentiment'->>'classification', 'neutral')
		           WHEN 'positive' THEN 100
		           WHEN 'negative' THEN 40
		           ELSE 70 END) AS avg_sentiment
		FROM feed_items
		WHERE is_active = TRUE AND LOWER(keyword) = LOWER($1) AND channel <> ''
		GROUP BY channel
		ORDER BY count DESC, channel ASC
		LIMIT $2`, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("channel rollup: %w", err)
	}
	defer rows.Close()

	var stats []models.ChannelStat
	for rows.Next() {
		var stat models.ChannelStat
		if err := rows.Scan(&stat.Channel, &stat.Count, &stat.AvgSentimentScore); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

// Volume counts a keyword's active items
func (s *ItemStore) Volume(ctx context.Context, keyword string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM feed_items
		WHERE is_active = TRUE AND LOWER(keyword) = LOWER($1)`, keyword)
	return count, err
}

// VolumeSince counts a keyword's active items published within the window
func (s *ItemStore) VolumeSince(ctx context.Context, keyword string, hours int) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM feed_items
		WHERE is_active = TRUE AND LOWER(keyword) = LOWER($1)
		  AND published_at >= NOW() - ($2 * INTERVAL '1 hour')`, keyword, hours)
	return count, err
}

// AvgWeightedScore averages a keyword's active item scores
func (s *ItemStore) AvgWeightedScore(ctx context.Context, keyword string) (float64, error) {
	var avg float64
	err := s.db.GetContext(ctx, &avg, `
		SELECT COALESCE(AVG(weighted_score), 0) FROM feed_items
		WHERE is_active = TRUE AND LOWER(keyword) = LOWER($1)`, keyword)
	return avg, err
}
