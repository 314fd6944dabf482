package trends

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/signalhub/keyword-radar/internal/models"
)

const (
	topChannelLimit   = 10
	recentWindowHours = 24
	trendingTopN      = 5
)

// ItemReader is the item-store view the aggregator reads from
type ItemReader interface {
	Volume(ctx context.Context, keyword string) (int, error)
	VolumeSince(ctx context.Context, keyword string, hours int) (int, error)
	SentimentCounts(ctx context.Context, keyword string) (map[string]int, error)
	ChannelRollup(ctx context.Context, keyword string, limit int) ([]models.ChannelStat, error)
	AvgWeightedScore(ctx context.Context, keyword string) (float64, error)
}

// KeywordWriter is the registry view the aggregator writes to
type KeywordWriter interface {
	ListActive(ctx context.Context) ([]models.Keyword, error)
	GetByTerm(ctx context.Context, term string) (*models.Keyword, error)
	UpdateTrends(ctx context.Context, term string, volume int, sentiment map[string]int, topChannels []models.ChannelStat, growth float64) error
	SetTrending(ctx context.Context, trendingTerms []string) error
}

// Aggregator recomputes per-keyword volume, sentiment distribution and
// top-channel rollups from stored items.
type Aggregator struct {
	items    ItemReader
	keywords KeywordWriter
}

func NewAggregator(items ItemReader, keywords KeywordWriter) *Aggregator {
	return &Aggregator{items: items, keywords: keywords}
}

// RefreshKeyword recomputes and persists one keyword's rollup fields
func (a *Aggregator) RefreshKeyword(ctx context.Context, term string) error {
	volume, err := a.items.Volume(ctx, term)
	if err != nil {
		return fmt.Errorf("volume for '%s': %w", term, err)
	}

	sentiment, err := a.items.SentimentCounts(ctx, term)
	if err != nil {
		return fmt.Errorf("sentiment counts for '%s': %w", term, err)
	}

	topChannels, err := a.items.ChannelRollup(ctx, term, topChannelLimit)
	if err != nil {
		return fmt.Errorf("channel rollup for '%s': %w", term, err)
	}

	growth, err := a.growth(ctx, term)
	if err != nil {
		return fmt.Errorf("growth for '%s': %w", term, err)
	}

	return a.keywords.UpdateTrends(ctx, term, volume, sentiment, topChannels, growth)
}

// growth is the percentage delta between the last 24h window and the 24h
// window before it.
func (a *Aggregator) growth(ctx context.Context, term string) (float64, error) {
	recent, err := a.items.VolumeSince(ctx, term, recentWindowHours)
	if err != nil {
		return 0, err
	}
	upToPrior, err := a.items.VolumeSince(ctx, term, 2*recentWindowHours)
	if err != nil {
		return 0, err
	}

	prior := upToPrior - recent
	if prior <= 0 {
		if recent > 0 {
			return 100, nil
		}
		return 0, nil
	}
	return float64(recent-prior) / float64(prior) * 100, nil
}

// RecomputeTrending ranks all active keywords and flags the leaders.
//
// Policy: trendScore = 2 * items(last 24h) + total volume. Keywords are
// ranked by trendScore descending; the top 5 with nonzero recent activity are
// flagged trending. The score is monotonic in both total volume and recent
// activity, so a keyword can never drop out of trending by gaining items.
func (a *Aggregator) RecomputeTrending(ctx context.Context) error {
	keywords, err := a.keywords.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list keywords: %w", err)
	}

	type ranked struct {
		term   string
		score  int
		recent int
	}

	var ranking []ranked
	for _, kw := range keywords {
		recent, err := a.items.VolumeSince(ctx, kw.Term, recentWindowHours)
		if err != nil {
			logrus.Warnf("Skipping '%s' in trending ranking: %v", kw.Term, err)
			continue
		}
		volume, err := a.items.Volume(ctx, kw.Term)
		if err != nil {
			logrus.Warnf("Skipping '%s' in trending ranking: %v", kw.Term, err)
			continue
		}
		ranking = append(ranking, ranked{
			term:   kw.Term,
			score:  2*recent + volume,
			recent: recent,
		})
	}

	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].score != ranking[j].score {
			return ranking[i].score > ranking[j].score
		}
		return ranking[i].term < ranking[j].term
	})

	var trending []string
	for _, r := range ranking {
		if len(trending) >= trendingTopN {
			break
		}
		if r.recent == 0 {
			continue
		}
		trending = append(trending, r.term)
	}

	logrus.Debugf("Trending recompute flagged %d of %d keywords", len(trending), len(ranking))
	return a.keywords.SetTrending(ctx, trending)
}

// Stats builds the sentiment/volume rollup payload for one keyword
func (a *Aggregator) Stats(ctx context.Context, term string) (*models.KeywordStats, error) {
	kw, err := a.keywords.GetByTerm(ctx, term)
	if err != nil {
		return nil, err
	}

	sentiment, err := a.items.SentimentCounts(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("sentiment counts for '%s': %w", term, err)
	}

	topChannels, err := a.items.ChannelRollup(ctx, term, topChannelLimit)
	if err != nil {
		return nil, fmt.Errorf("channel rollup for '%s': %w", term, err)
	}

	volume, err := a.items.Volume(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("volume for '%s': %w", term, err)
	}

	avgScore, err := a.items.AvgWeightedScore(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("avg score for '%s': %w", term, err)
	}

	return &models.KeywordStats{
		Keyword:          kw.Term,
		Volume:           volume,
		Sentiment:        sentiment,
		TopChannels:      topChannels,
		Growth:           kw.Growth,
		Trending:         kw.Trending,
		AvgWeightedScore: avgScore,
	}, nil
}
