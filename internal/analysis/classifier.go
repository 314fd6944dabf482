package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/signalhub/keyword-radar/internal/models"
)

const (
	defaultClassifyTimeout = 8 * time.Second
	maxPromptContentChars  = 4000
)

// ItemContext carries the originating context sent alongside the item text
type ItemContext struct {
	Keyword string
	Channel string
	Title   string
}

// Classifier sends item text to the external classification service and turns
// the reply into an AnalysisRecord. Classification failures are never fatal:
// every failure path degrades to a deterministic neutral fallback record.
type Classifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewClassifier creates a classifier backed by the OpenAI API
func NewClassifier(apiKey, model string, timeout time.Duration) *Classifier {
	config := openai.DefaultConfig(apiKey)
	return NewClassifierWithConfig(config, model, timeout)
}

// NewClassifierWithConfig creates a classifier with a custom client config,
// used by tests to point at a fake endpoint.
func NewClassifierWithConfig(config openai.ClientConfig, model string, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Classifier{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
	}
}

// Classify analyzes one item's text. It always returns a usable record: on
// timeout, transport error or an unparsable reply the fallback record is
// returned instead.
func (c *Classifier) Classify(ctx context.Context, text string, itemCtx ItemContext) *models.AnalysisRecord {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(text, itemCtx)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		logrus.Warnf("Classification request failed for keyword '%s': %v", itemCtx.Keyword, err)
		return FallbackRecord("classification request failed")
	}

	if len(resp.Choices) == 0 {
		logrus.Warn("Classification reply contained no choices")
		return FallbackRecord("classification reply was empty")
	}

	record, err := parseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		logrus.Warnf("Failed to parse classification reply: %v", err)
		return FallbackRecord("classification reply could not be parsed")
	}

	return record
}

// FallbackRecord is the deterministic neutral record substituted when
// classification fails.
func FallbackRecord(note string) *models.AnalysisRecord {
	record := &models.AnalysisRecord{
		Note: note,
	}
	record.Sentiment.Classification = "neutral"
	record.Sentiment.Confidence = 50
	record.Sentiment.Scores.Positive = 33
	record.Sentiment.Scores.Negative = 33
	record.Sentiment.Scores.Neutral = 34
	record.Relevancy.Score = 50
	record.Relevancy.Reasoning = "automated fallback: classification unavailable"
	record.Quality = models.QualityAnalysis{
		Clarity:         50,
		Coherence:       50,
		Informativeness: 50,
		Overall:         50,
	}
	record.Engagement.Score = 50
	record.Engagement.DiscussionPotential = "unknown"
	record.Insights.Stance = "neutral"
	record.Insights.Tone = "casual"
	record.Contributor.Score = 50
	record.Contributor.ExpertiseLevel = "intermediate"
	record.Contributor.ContributionType = "opinion"
	return record
}

// parseAnalysis decodes the service reply into a record. Replies wrapped in
// markdown code fences are unwrapped first; a reply missing the required
// sentiment, quality or insights sections counts as a parse failure.
func parseAnalysis(raw string) (*models.AnalysisRecord, error) {
	cleaned := cleanReply(raw)

	var probe struct {
		Sentiment json.RawMessage `json:"sentiment"`
		Quality   json.RawMessage `json:"quality"`
		Insights  json.RawMessage `json:"insights"`
	}
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if probe.Sentiment == nil || probe.Quality == nil || probe.Insights == nil {
		return nil, fmt.Errorf("reply missing required sections")
	}

	var record models.AnalysisRecord
	if err := json.Unmarshal([]byte(cleaned), &record); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	if record.Sentiment.Classification == "" {
		record.Sentiment.Classification = "neutral"
	}

	ClampRecord(&record)
	return &record, nil
}

// cleanReply strips markdown code fences the model sometimes wraps its JSON in
func cleanReply(reply string) string {
	cleaned := strings.TrimSpace(reply)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "\n")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimPrefix(cleaned, "\n")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}

	return strings.TrimSpace(cleaned)
}

func buildPrompt(text string, itemCtx ItemContext) string {
	if len(text) > maxPromptContentChars {
		text = text[:maxPromptContentChars]
	}

	var sb strings.Builder
	if itemCtx.Keyword != "" {
		fmt.Fprintf(&sb, "Tracked keyword: %s\n", itemCtx.Keyword)
	}
	if itemCtx.Channel != "" {
		fmt.Fprintf(&sb, "Channel: %s\n", itemCtx.Channel)
	}
	if itemCtx.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", itemCtx.Title)
	}
	fmt.Fprintf(&sb, "Content:\n%s", text)
	return sb.String()
}

const classifySystemPrompt = `You analyze discussion posts and comments. Respond only with a valid JSON object, no additional text, using this exact structure:

{
  "sentiment": {"classification": "positive|negative|neutral", "confidence": 0-100, "scores": {"positive": 0-100, "negative": 0-100, "neutral": 0-100}},
  "relevancy": {"score": 0-100, "reasoning": "short explanation", "matched_keywords": ["..."]},
  "quality": {"clarity": 0-100, "coherence": 0-100, "informativeness": 0-100, "overall": 0-100},
  "engagement": {"score": 0-100, "factors": ["..."], "discussion_potential": "low|medium|high"},
  "insights": {"key_points": ["..."], "stance": "supporting|opposing|neutral|questioning", "tone": "formal|casual|emotional|analytical", "credibility_indicators": ["..."]},
  "contributor": {"score": 0-100, "expertise_level": "novice|intermediate|expert", "contribution_type": "opinion|fact|experience|question"}
}

The three sentiment scores must sum to approximately 100. Judge relevancy against the tracked keyword provided in the user message.`
