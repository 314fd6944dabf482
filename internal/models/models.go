package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ItemKind distinguishes the two feed item variants
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

// ProcessStatus tracks an item's position in the ingestion pipeline
type ProcessStatus string

const (
	ProcessPending    ProcessStatus = "pending"
	ProcessProcessing ProcessStatus = "processing"
	ProcessCompleted  ProcessStatus = "completed"
	ProcessFailed     ProcessStatus = "failed"
)

// FetchStatus tracks a keyword's fetch cycle state
type FetchStatus string

const (
	FetchPending    FetchStatus = "pending"
	FetchProcessing FetchStatus = "processing"
	FetchCompleted  FetchStatus = "completed"
	FetchFailed     FetchStatus = "failed"
)

// FeedItem represents a normalized post or comment ingested from the feed source
type FeedItem struct {
	ID            int64           `db:"id" json:"id"`
	Kind          ItemKind        `db:"kind" json:"kind"`
	ExternalID    string          `db:"external_id" json:"external_id"`
	ParentID      string          `db:"parent_id" json:"parent_id,omitempty"`
	Author        string          `db:"author" json:"author"`
	Channel       string          `db:"channel" json:"channel"`
	Title         string          `db:"title" json:"title,omitempty"`
	Content       string          `db:"content" json:"content"`
	Permalink     string          `db:"permalink" json:"permalink"`
	SourceScore   *int            `db:"source_score" json:"source_score,omitempty"`
	Keyword       string          `db:"keyword" json:"keyword"`
	Analysis      *AnalysisRecord `db:"analysis" json:"analysis,omitempty"`
	WeightedScore int             `db:"weighted_score" json:"weighted_score"`
	ProcessStatus ProcessStatus   `db:"process_status" json:"process_status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	PublishedAt   time.Time       `db:"published_at" json:"published_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// AnalysisRecord is the classification produced for one feed item.
// Immutable once attached except on reprocessing.
type AnalysisRecord struct {
	Sentiment   SentimentAnalysis   `json:"sentiment"`
	Relevancy   RelevancyAnalysis   `json:"relevancy"`
	Quality     QualityAnalysis     `json:"quality"`
	Engagement  EngagementAnalysis  `json:"engagement"`
	Insights    InsightsAnalysis    `json:"insights"`
	Contributor ContributorAnalysis `json:"contributor"`
	Note        string              `json:"note,omitempty"`
}

// SentimentScores holds the per-class sentiment distribution (sums to ~100)
type SentimentScores struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

type SentimentAnalysis struct {
	Classification string          `json:"classification"` // "positive", "negative", "neutral"
	Confidence     int             `json:"confidence"`
	Scores         SentimentScores `json:"scores"`
}

type RelevancyAnalysis struct {
	Score           int      `json:"score"`
	Reasoning       string   `json:"reasoning"`
	MatchedKeywords []string `json:"matched_keywords"`
}

type QualityAnalysis struct {
	Clarity         int `json:"clarity"`
	Coherence       int `json:"coherence"`
	Informativeness int `json:"informativeness"`
	Overall         int `json:"overall"`
}

type EngagementAnalysis struct {
	Score               int      `json:"score"`
	Factors             []string `json:"factors"`
	DiscussionPotential string   `json:"discussion_potential"`
}

type InsightsAnalysis struct {
	KeyPoints             []string `json:"key_points"`
	Stance                string   `json:"stance"` // "supporting", "opposing", "neutral", "questioning"
	Tone                  string   `json:"tone"`   // "formal", "casual", "emotional", "analytical"
	CredibilityIndicators []string `json:"credibility_indicators"`
}

type ContributorAnalysis struct {
	Score            int    `json:"score"`
	ExpertiseLevel   string `json:"expertise_level"`   // "novice", "intermediate", "expert"
	ContributionType string `json:"contribution_type"` // "opinion", "fact", "experience", "question"
}

// Value implements driver.Valuer so the record persists as JSONB
func (a AnalysisRecord) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for the JSONB analysis column
func (a *AnalysisRecord) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported analysis column type %T", src)
	}
}

// StringList is a JSONB-backed string slice
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("unsupported list column type %T", src)
	}
}

// ChannelStat is one entry in a keyword's top-channel rollup
type ChannelStat struct {
	Channel           string  `json:"channel"`
	Count             int     `json:"count"`
	AvgSentimentScore float64 `json:"avg_sentiment_score"`
}

// ChannelStats is a JSONB-backed top-channel list
type ChannelStats []ChannelStat

func (c ChannelStats) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal([]ChannelStat{})
	}
	return json.Marshal(c)
}

func (c *ChannelStats) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = nil
		return nil
	default:
		return fmt.Errorf("unsupported channel stats column type %T", src)
	}
}

// Keyword is one tracked search term with its fetch configuration and rollups.
// Keywords are never hard-deleted, only deactivated.
type Keyword struct {
	ID                 int64        `db:"id" json:"id"`
	Term               string       `db:"term" json:"term"`
	SearchCount        int          `db:"search_count" json:"search_count"`
	Trending           bool         `db:"trending" json:"trending"`
	SentimentPositive  int          `db:"sentiment_positive" json:"sentiment_positive"`
	SentimentNegative  int          `db:"sentiment_negative" json:"sentiment_negative"`
	SentimentNeutral   int          `db:"sentiment_neutral" json:"sentiment_neutral"`
	SentimentTotal     int          `db:"sentiment_total" json:"sentiment_total"`
	Volume             int          `db:"volume" json:"volume"`
	Growth             float64      `db:"growth" json:"growth"`
	RelatedTerms       StringList   `db:"related_terms" json:"related_terms"`
	TopChannels        ChannelStats `db:"top_channels" json:"top_channels"`
	Channels           StringList   `db:"channels" json:"channels"`
	LastFetched        *time.Time   `db:"last_fetched" json:"last_fetched,omitempty"`
	NextScheduledFetch *time.Time   `db:"next_scheduled_fetch" json:"next_scheduled_fetch,omitempty"`
	FetchStatus        FetchStatus  `db:"fetch_status" json:"fetch_status"`
	IsActive           bool         `db:"is_active" json:"is_active"`
	AutoFetch          bool         `db:"auto_fetch" json:"auto_fetch"`
	FetchIntervalHours int          `db:"fetch_interval_hours" json:"fetch_interval_hours"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}

// KeywordStats is the per-keyword sentiment and volume rollup returned by the API
type KeywordStats struct {
	Keyword          string         `json:"keyword"`
	Volume           int            `json:"volume"`
	Sentiment        map[string]int `json:"sentiment"`
	TopChannels      []ChannelStat  `json:"top_channels"`
	Growth           float64        `json:"growth"`
	Trending         bool           `json:"trending"`
	AvgWeightedScore float64        `json:"avg_weighted_score"`
}

// FetchResult summarizes one completed ingestion cycle
type FetchResult struct {
	Keyword        string        `json:"keyword"`
	TotalPosts     int           `json:"total_posts"`
	TotalComments  int           `json:"total_comments"`
	TotalStored    int           `json:"total_stored"`
	ProcessingTime string        `json:"processing_time"`
	Statistics     *KeywordStats `json:"statistics,omitempty"`
	Errors         []string      `json:"errors"`
}
