package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/signalhub/keyword-radar/internal/models"
)

// ErrKeywordBusy is returned when a cycle claim finds the keyword already processing
var ErrKeywordBusy = fmt.Errorf("keyword cycle already in progress")

// ErrKeywordNotFound is returned when an operation targets an unknown or inactive keyword
var ErrKeywordNotFound = fmt.Errorf("keyword not found")

// KeywordStore is the keyword registry. Keywords are deduplicated on their
// normalized term and never hard-deleted.
type KeywordStore struct {
	db *sqlx.DB
}

func NewKeywordStore(db *sqlx.DB) *KeywordStore {
	return &KeywordStore{db: db}
}

// NormalizeTerm canonicalizes a search term for registry lookups
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Register creates a keyword or reactivates/reconfigures an existing one
func (s *KeywordStore) Register(ctx context.Context, term string, intervalHours int, autoFetch bool, channels []string) (*models.Keyword, error) {
	normalized := NormalizeTerm(term)
	if normalized == "" {
		return nil, fmt.Errorf("keyword term is empty")
	}

	var kw models.Keyword
	err := s.db.GetContext(ctx, &kw, `
		INSERT INTO keywords (term, fetch_interval_hours, auto_fetch, channels, fetch_status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (term) DO UPDATE SET
			fetch_interval_hours = EXCLUDED.fetch_interval_hours,
			auto_fetch           = EXCLUDED.auto_fetch,
			channels             = EXCLUDED.channels,
			is_active            = TRUE,
			updated_at           = NOW()
		RETURNING *`,
		normalized, intervalHours, autoFetch, models.StringList(channels))
	if err != nil {
		return nil, fmt.Errorf("register keyword '%s': %w", normalized, err)
	}

	return &kw, nil
}

// GetByTerm looks up one active keyword
func (s *KeywordStore) GetByTerm(ctx context.Context, term string) (*models.Keyword, error) {
	var kw models.Keyword
	err := s.db.GetContext(ctx, &kw,
		`SELECT * FROM keywords WHERE term = $1 AND is_active = TRUE`,
		NormalizeTerm(term))
	if err == sql.ErrNoRows {
		return nil, ErrKeywordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get keyword '%s': %w", term, err)
	}
	return &kw, nil
}

// ListActive returns every active keyword with its schedule fields
func (s *KeywordStore) ListActive(ctx context.Context) ([]models.Keyword, error) {
	var keywords []models.Keyword
	err := s.db.SelectContext(ctx, &keywords,
		`SELECT * FROM keywords WHERE is_active = TRUE ORDER BY term ASC`)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	return keywords, nil
}

// ClaimDue atomically selects due keywords and transitions them to processing.
// A keyword is due when it is active, auto-fetch enabled, not already
// processing, and its next scheduled fetch is absent or has passed. Stalest
// first. The single-statement claim guarantees at most one concurrent cycle
// per keyword even across processes.
func (s *KeywordStore) ClaimDue(ctx context.Context, limit int) ([]models.Keyword, error) {
	if limit < 1 {
		limit = 10
	}

	var keywords []models.Keyword
	err := s.db.SelectContext(ctx, &keywords, `
		UPDATE keywords SET fetch_status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM keywords
			WHERE is_active = TRUE
			  AND auto_fetch = TRUE
			  AND fetch_status <> 'processing'
			  AND (next_scheduled_fetch IS NULL OR next_scheduled_fetch <= NOW())
			ORDER BY last_fetched ASC NULLS FIRST
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due keywords: %w", err)
	}
	return keywords, nil
}

// Claim transitions one keyword to processing for an ad-hoc cycle. Returns
// ErrKeywordBusy when a cycle for the keyword is already running.
func (s *KeywordStore) Claim(ctx context.Context, term string) (*models.Keyword, error) {
	var kw models.Keyword
	err := s.db.GetContext(ctx, &kw, `
		UPDATE keywords SET fetch_status = 'processing', updated_at = NOW()
		WHERE term = $1 AND is_active = TRUE AND fetch_status <> 'processing'
		RETURNING *`, NormalizeTerm(term))
	if err == sql.ErrNoRows {
		if _, lookupErr := s.GetByTerm(ctx, term); lookupErr == nil {
			return nil, ErrKeywordBusy
		}
		return nil, ErrKeywordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim keyword '%s': %w", term, err)
	}
	return &kw, nil
}

// MarkCompleted records a successful cycle: the keyword is rescheduled one
// fetch interval after this fetch and its search counter increments.
func (s *KeywordStore) MarkCompleted(ctx context.Context, term string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE keywords SET
			fetch_status         = 'completed',
			last_fetched         = NOW(),
			next_scheduled_fetch = NOW() + (fetch_interval_hours * INTERVAL '1 hour'),
			search_count         = search_count + 1,
			updated_at           = NOW()
		WHERE term = $1`, NormalizeTerm(term))
	if err != nil {
		return fmt.Errorf("mark keyword '%s' completed: %w", term, err)
	}
	return nil
}

// MarkFailed records a failed cycle with the fixed one hour retry backoff,
// independent of the configured fetch interval.
func (s *KeywordStore) MarkFailed(ctx context.Context, term string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE keywords SET
			fetch_status         = 'failed',
			last_fetched         = NOW(),
			next_scheduled_fetch = NOW() + INTERVAL '1 hour',
			updated_at           = NOW()
		WHERE term = $1`, NormalizeTerm(term))
	if err != nil {
		return fmt.Errorf("mark keyword '%s' failed: %w", term, err)
	}
	return nil
}

// UpdateInterval persists a new fetch interval and recomputes the next due time
func (s *KeywordStore) UpdateInterval(ctx context.Context, term string, intervalHours int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE keywords SET
			fetch_interval_hours = $2,
			next_scheduled_fetch = COALESCE(last_fetched, NOW()) + ($2 * INTERVAL '1 hour'),
			updated_at           = NOW()
		WHERE term = $1 AND is_active = TRUE`,
		NormalizeTerm(term), intervalHours)
	if err != nil {
		return fmt.Errorf("update interval for '%s': %w", term, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrKeywordNotFound
	}
	return nil
}

// Deactivate soft-deletes a keyword; it stops being selected for sweeps
func (s *KeywordStore) Deactivate(ctx context.Context, term string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE keywords SET is_active = FALSE, auto_fetch = FALSE, updated_at = NOW()
		WHERE term = $1`, NormalizeTerm(term))
	if err != nil {
		return fmt.Errorf("deactivate keyword '%s': %w", term, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrKeywordNotFound
	}
	return nil
}

// UpdateTrends writes the recomputed rollup fields for one keyword
func (s *KeywordStore) UpdateTrends(ctx context.Context, term string, volume int, sentiment map[string]int, topChannels []models.ChannelStat, growth float64) error {
	total := sentiment["positive"] + sentiment["negative"] + sentiment["neutral"]
	_, err := s.db.ExecContext(ctx, `
		UPDATE keywords SET
			volume             = $2,
			sentiment_positive = $3,
			sentiment_negative = $4,
			sentiment_neutral  = $5,
			sentiment_total    = $6,
			top_channels       = $7,
			growth             = $8,
			updated_at         = NOW()
		WHERE term = $1`,
		NormalizeTerm(term), volume,
		sentiment["positive"], sentiment["negative"], sentiment["neutral"], total,
		models.ChannelStats(topChannels), growth)
	if err != nil {
		return fmt.Errorf("update trends for '%s': %w", term, err)
	}
	return nil
}

// SetTrending flags or unflags keywords as trending
func (s *KeywordStore) SetTrending(ctx context.Context, trendingTerms []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trending update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE keywords SET trending = FALSE WHERE trending = TRUE`); err != nil {
		return fmt.Errorf("clear trending flags: %w", err)
	}

	for _, term := range trendingTerms {
		if _, err := tx.ExecContext(ctx,
			`UPDATE keywords SET trending = TRUE, updated_at = NOW() WHERE term = $1 AND is_active = TRUE`,
			NormalizeTerm(term)); err != nil {
			return fmt.Errorf("flag trending '%s': %w", term, err)
		}
	}

	return tx.Commit()
}

// TrendingKeywords returns trending keywords, highest volume first
func (s *KeywordStore) TrendingKeywords(ctx context.Context, limit int) ([]models.Keyword, error) {
	if limit < 1 || limit > 50 {
		limit = 10
	}

	var keywords []models.Keyword
	err := s.db.SelectContext(ctx, &keywords, `
		SELECT * FROM keywords
		WHERE is_active = TRUE AND trending = TRUE
		ORDER BY volume DESC, updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("trending keywords: %w", err)
	}
	return keywords, nil
}

// Counts returns the number of active keywords and how many are currently due
func (s *KeywordStore) Counts(ctx context.Context) (active int, due int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_active AND auto_fetch
		           AND fetch_status <> 'processing'
		           AND (next_scheduled_fetch IS NULL OR next_scheduled_fetch <= NOW()))
		FROM keywords`).Scan(&active, &due)
	if err != nil {
		return 0, 0, fmt.Errorf("keyword counts: %w", err)
	}
	return active, due, nil
}
