package trends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/signalhub/keyword-radar/internal/models"
)

// MockItemReader is a mock implementation of the ItemReader interface
type MockItemReader struct {
	mock.Mock
}

func (m *MockItemReader) Volume(ctx context.Context, keyword string) (int, error) {
	args := m.Called(ctx, keyword)
	return args.Int(0), args.Error(1)
}

func (m *MockItemReader) VolumeSince(ctx context.Context, keyword string, hours int) (int, error) {
	args := m.Called(ctx, keyword, hours)
	return args.Int(0), args.Error(1)
}

func (m *MockItemReader) SentimentCounts(ctx context.Context, keyword string) (map[string]int, error) {
	args := m.Called(ctx, keyword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockItemReader) ChannelRollup(ctx context.Context, keyword string, limit int) ([]models.ChannelStat, error) {
	args := m.Called(ctx, keyword, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChannelStat), args.Error(1)
}

func (m *MockItemReader) AvgWeightedScore(ctx context.Context, keyword string) (float64, error) {
	args := m.Called(ctx, keyword)
	return args.Get(0).(float64), args.Error(1)
}

// MockKeywordWriter is a mock implementation of the KeywordWriter interface
type MockKeywordWriter struct {
	mock.Mock
}

func (m *MockKeywordWriter) ListActive(ctx context.Context) ([]models.Keyword, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Keyword), args.Error(1)
}

func (m *MockKeywordWriter) GetByTerm(ctx context.Context, term string) (*models.Keyword, error) {
	args := m.Called(ctx, term)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Keyword), args.Error(1)
}

func (m *MockKeywordWriter) UpdateTrends(ctx context.Context, term string, volume int, sentiment map[string]int, topChannels []models.ChannelStat, growth float64) error {
	args := m.Called(ctx, term, volume, sentiment, topChannels, growth)
	return args.Error(0)
}

func (m *MockKeywordWriter) SetTrending(ctx context.Context, trendingTerms []string) error {
	args := m.Called(ctx, trendingTerms)
	return args.Error(0)
}

func TestRefreshKeyword(t *testing.T) {
	items := &MockItemReader{}
	keywords := &MockKeywordWriter{}

	sentiment := map[string]int{"positive": 5, "negative": 2, "neutral": 3}
	channels := []models.ChannelStat{{Channel: "golang", Count: 6, AvgSentimentScore: 82.5}}

	items.On("Volume", mock.Anything, "kubernetes").Return(10, nil)
	items.On("SentimentCounts", mock.Anything, "kubernetes").Return(sentiment, nil)
	items.On("ChannelRollup", mock.Anything, "kubernetes", topChannelLimit).Return(channels, nil)
	items.On("VolumeSince", mock.Anything, "kubernetes", 24).Return(6, nil)
	items.On("VolumeSince", mock.Anything, "kubernetes", 48).Return(10, nil)

	// recent=6, prior=4 -> +50%
	keywords.On("UpdateTrends", mock.Anything, "kubernetes", 10, sentiment, channels, 50.0).Return(nil)

	agg := NewAggregator(items, keywords)
	require.NoError(t, agg.RefreshKeyword(context.Background(), "kubernetes"))
	keywords.AssertExpectations(t)
}

func TestGrowth(t *testing.T) {
	tests := []struct {
		name     string
		recent   int
		upToFull int // items in the last 48 hours
		want     float64
	}{
		{name: "Doubling activity", recent: 10, upToFull: 15, want: 100},
		{name: "Halving activity", recent: 5, upToFull: 15, want: -50},
		{name: "Flat activity", recent: 7, upToFull: 14, want: 0},
		{name: "Fresh keyword with only recent items", recent: 3, upToFull: 3, want: 100},
		{name: "No activity at all", recent: 0, upToFull: 0, want: 0},
		{name: "Activity fell to zero", recent: 0, upToFull: 8, want: -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := &MockItemReader{}
			items.On("VolumeSince", mock.Anything, "term", 24).Return(tt.recent, nil)
			items.On("VolumeSince", mock.Anything, "term", 48).Return(tt.upToFull, nil)

			agg := NewAggregator(items, &MockKeywordWriter{})
			got, err := agg.growth(context.Background(), "term")
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestRecomputeTrending(t *testing.T) {
	items := &MockItemReader{}
	keywords := &MockKeywordWriter{}

	// score = 2*recent + volume
	data := map[string]struct{ recent, volume int }{
		"alpha":   {recent: 10, volume: 30}, // 50
		"bravo":   {recent: 8, volume: 20},  // 36
		"charlie": {recent: 0, volume: 100}, // 100 but stale
		"delta":   {recent: 5, volume: 5},   // 15
		"echo":    {recent: 1, volume: 2},   // 4
		"foxtrot": {recent: 2, volume: 2},   // 6
		"golf":    {recent: 1, volume: 1},   // 3
	}

	var active []models.Keyword
	for term, d := range data {
		active = append(active, models.Keyword{Term: term})
		items.On("VolumeSince", mock.Anything, term, 24).Return(d.recent, nil)
		items.On("Volume", mock.Anything, term).Return(d.volume, nil)
	}
	keywords.On("ListActive", mock.Anything).Return(active, nil)

	// charlie ranks first by score but has no recent activity, so it is
	// skipped; the five remaining leaders get flagged.
	keywords.On("SetTrending", mock.Anything, []string{"alpha", "bravo", "delta", "foxtrot", "echo"}).Return(nil)

	agg := NewAggregator(items, keywords)
	require.NoError(t, agg.RecomputeTrending(context.Background()))
	keywords.AssertExpectations(t)
}

func TestRecomputeTrending_MoreItemsNeverDemotes(t *testing.T) {
	rank := func(recentA, volumeA int) bool {
		items := &MockItemReader{}
		keywords := &MockKeywordWriter{}

		keywords.On("ListActive", mock.Anything).Return([]models.Keyword{{Term: "a"}, {Term: "b"}}, nil)
		items.On("VolumeSince", mock.Anything, "a", 24).Return(recentA, nil)
		items.On("Volume", mock.Anything, "a").Return(volumeA, nil)
		items.On("VolumeSince", mock.Anything, "b", 24).Return(3, nil)
		items.On("Volume", mock.Anything, "b").Return(10, nil)

		var got []string
		keywords.On("SetTrending", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { got = args.Get(1).([]string) }).
			Return(nil)

		agg := NewAggregator(items, keywords)
		require.NoError(t, agg.RecomputeTrending(context.Background()))
		return len(got) > 0 && got[0] == "a"
	}

	// "a" leads "b" (score 16) at recent=5, volume=10 and keeps leading as
	// either count grows.
	assert.True(t, rank(5, 10))
	assert.True(t, rank(5, 50))
	assert.True(t, rank(20, 10))
}

func TestRecomputeTrending_Tiebreak(t *testing.T) {
	items := &MockItemReader{}
	keywords := &MockKeywordWriter{}

	keywords.On("ListActive", mock.Anything).Return([]models.Keyword{{Term: "zulu"}, {Term: "alpha"}}, nil)
	for _, term := range []string{"zulu", "alpha"} {
		items.On("VolumeSince", mock.Anything, term, 24).Return(2, nil)
		items.On("Volume", mock.Anything, term).Return(4, nil)
	}

	keywords.On("SetTrending", mock.Anything, []string{"alpha", "zulu"}).Return(nil)

	agg := NewAggregator(items, keywords)
	require.NoError(t, agg.RecomputeTrending(context.Background()))
	keywords.AssertExpectations(t)
}

func TestStats(t *testing.T) {
	items := &MockItemReader{}
	keywords := &MockKeywordWriter{}

	sentiment := map[string]int{"positive": 4, "negative": 1, "neutral": 2}
	channels := []models.ChannelStat{
		{Channel: "kubernetes", Count: 5, AvgSentimentScore: 88},
		{Channel: "devops", Count: 2, AvgSentimentScore: 70},
	}

	keywords.On("GetByTerm", mock.Anything, "kubernetes").
		Return(&models.Keyword{Term: "kubernetes", Growth: 42.5, Trending: true}, nil)
	items.On("SentimentCounts", mock.Anything, "kubernetes").Return(sentiment, nil)
	items.On("ChannelRollup", mock.Anything, "kubernetes", topChannelLimit).Return(channels, nil)
	items.On("Volume", mock.Anything, "kubernetes").Return(7, nil)
	items.On("AvgWeightedScore", mock.Anything, "kubernetes").Return(64.3, nil)

	agg := NewAggregator(items, keywords)
	stats, err := agg.Stats(context.Background(), "kubernetes")

	require.NoError(t, err)
	assert.Equal(t, "kubernetes", stats.Keyword)
	assert.Equal(t, 7, stats.Volume)
	assert.Equal(t, sentiment, stats.Sentiment)
	assert.Equal(t, channels, stats.TopChannels)
	assert.InDelta(t, 42.5, stats.Growth, 0.001)
	assert.True(t, stats.Trending)
	assert.InDelta(t, 64.3, stats.AvgWeightedScore, 0.001)
}
