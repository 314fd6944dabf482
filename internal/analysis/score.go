package analysis

import (
	"math"

	"github.com/signalhub/keyword-radar/internal/models"
)

// Composite score weights
const (
	weightRelevancy  = 0.4
	weightQuality    = 0.3
	weightSentiment  = 0.2
	weightEngagement = 0.1
)

// Fixed sentiment scale used by the scoring engine and trend rollups
const (
	SentimentScorePositive = 100
	SentimentScoreNeutral  = 70
	SentimentScoreNegative = 40
)

// SentimentScale maps a sentiment classification to its fixed score
func SentimentScale(classification string) int {
	switch classification {
	case "positive":
		return SentimentScorePositive
	case "negative":
		return SentimentScoreNegative
	default:
		return SentimentScoreNeutral
	}
}

// WeightedScore computes the 0-100 composite relevance/quality score for an
// analysis record. Pure function: the same record always yields the same score.
func WeightedScore(a *models.AnalysisRecord) int {
	if a == nil {
		return 0
	}

	rel := float64(Clamp(a.Relevancy.Score)) / 100
	qual := float64(Clamp(a.Quality.Overall)) / 100
	sent := float64(SentimentScale(a.Sentiment.Classification)) / 100
	eng := float64(Clamp(a.Engagement.Score)) / 100

	score := 100 * (weightRelevancy*rel + weightQuality*qual + weightSentiment*sent + weightEngagement*eng)
	return int(math.Round(score))
}

// Clamp bounds a sub-score to [0,100]
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampRecord bounds every numeric field of an analysis record to [0,100].
// Applied once at the classification boundary so stored records are always
// within range.
func ClampRecord(a *models.AnalysisRecord) {
	if a == nil {
		return
	}

	a.Sentiment.Confidence = Clamp(a.Sentiment.Confidence)
	a.Sentiment.Scores.Positive = Clamp(a.Sentiment.Scores.Positive)
	a.Sentiment.Scores.Negative = Clamp(a.Sentiment.Scores.Negative)
	a.Sentiment.Scores.Neutral = Clamp(a.Sentiment.Scores.Neutral)
	a.Relevancy.Score = Clamp(a.Relevancy.Score)
	a.Quality.Clarity = Clamp(a.Quality.Clarity)
	a.Quality.Coherence = Clamp(a.Quality.Coherence)
	a.Quality.Informativeness = Clamp(a.Quality.Informativeness)
	a.Quality.Overall = Clamp(a.Quality.Overall)
	a.Engagement.Score = Clamp(a.Engagement.Score)
	a.Contributor.Score = Clamp(a.Contributor.Score)
}
