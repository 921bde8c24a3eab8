package sentiment

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultEmbeddingModel は既定の埋め込みモデル（1536次元）。
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder はOpenAIの埋め込みAPIで本文をベクトル化する。
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder はEmbedderの新しいインスタンスを生成する。
func NewEmbedder(client *openai.Client, modelName string) *Embedder {
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	return &Embedder{client: client, model: openai.EmbeddingModel(modelName)}
}

// Embed は本文の埋め込みベクトルを返す。
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding response has no data")
	}
	return resp.Data[0].Embedding, nil
}
