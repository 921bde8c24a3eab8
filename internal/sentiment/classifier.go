package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/tweetsense/internal/model"
)

// DefaultModel は分類に使用する既定のモデル。
const DefaultModel = "gpt-3.5-turbo-instruct"

// promptTemplate は分類プロンプト。%s に投稿本文が入る。
const promptTemplate = "Analyze the sentiment of this tweet as either 'positive', 'neutral', or 'negative'.\n\nTweet: \"%s\"\n\nSentiment: "

// fallback 理由
const (
	FallbackReasonRequest    = "request_error"
	FallbackReasonEmpty      = "empty_response"
	FallbackReasonOutOfLabel = "out_of_taxonomy"
)

// ClassifierMetrics は分類結果のメトリクス記録インターフェース。
type ClassifierMetrics interface {
	RecordClassification(sentiment model.Sentiment)
	RecordClassificationFallback(reason string)
}

// Classifier はOpenAIのモデルで投稿本文を3値に分類する。
// 失敗時はエラーを返さず neutral にフォールバックする。
type Classifier struct {
	client  *openai.Client
	model   string
	metrics ClassifierMetrics
	logger  *slog.Logger
}

// NewClassifier はClassifierの新しいインスタンスを生成する。
// modelName が空の場合は DefaultModel を使用する。metrics は nil でもよい。
func NewClassifier(client *openai.Client, modelName string, metrics ClassifierMetrics, logger *slog.Logger) *Classifier {
	if modelName == "" {
		modelName = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		client:  client,
		model:   modelName,
		metrics: metrics,
		logger:  logger,
	}
}

// Classify は本文を分類してラベルを返す。
// API呼び出しの失敗、空の応答、3値以外の応答はいずれも neutral を返し、警告ログを出力する。
func (c *Classifier) Classify(ctx context.Context, text string) model.Sentiment {
	raw, err := c.complete(ctx, buildPrompt(text))
	if err != nil {
		reason := FallbackReasonRequest
		if errors.Is(err, errEmptyResponse) {
			reason = FallbackReasonEmpty
		}
		c.logger.Warn("感情分類に失敗したため neutral にフォールバックします",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return c.fallback(reason)
	}

	sentiment, ok := model.ParseSentiment(raw)
	if !ok {
		c.logger.Warn("分類結果が想定外のため neutral にフォールバックします",
			slog.String("raw", raw),
		)
		return c.fallback(FallbackReasonOutOfLabel)
	}

	if c.metrics != nil {
		c.metrics.RecordClassification(sentiment)
	}
	return sentiment
}

// ClassifyBatch は投稿ごとに Classify を適用し、入力順を保持した結果を返す。
func (c *Classifier) ClassifyBatch(ctx context.Context, posts []model.Post) []model.ClassifiedPost {
	out := make([]model.ClassifiedPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, model.ClassifiedPost{Post: p, Sentiment: c.Classify(ctx, p.Text)})
	}
	return out
}

func (c *Classifier) fallback(reason string) model.Sentiment {
	if c.metrics != nil {
		c.metrics.RecordClassificationFallback(reason)
		c.metrics.RecordClassification(model.SentimentNeutral)
	}
	return model.SentimentNeutral
}

var errEmptyResponse = errors.New("empty completion")

// complete はモデル種別に応じて completions / chat completions を呼び分ける。
func (c *Classifier) complete(ctx context.Context, prompt string) (string, error) {
	if isCompletionModel(c.model) {
		resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
			Model:       c.model,
			Prompt:      prompt,
			MaxTokens:   1,
			Temperature: 0,
		})
		if err != nil {
			return "", fmt.Errorf("completion request: %w", err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Text) == "" {
			return "", errEmptyResponse
		}
		return resp.Choices[0].Text, nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   3,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// isCompletionModel はレガシー completions エンドポイントで扱うモデルかを判定する。
func isCompletionModel(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "instruct") ||
		strings.HasPrefix(n, "davinci") ||
		strings.HasPrefix(n, "babbage") ||
		strings.HasPrefix(n, "text-")
}

func buildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}
