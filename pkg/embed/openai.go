package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEncoder produces embeddings through the OpenAI API.
type OpenAIEncoder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEncoder creates an OpenAI-backed encoder.
func NewOpenAIEncoder(apiKey, model string) (*OpenAIEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embed: api key is required")
	}
	return &OpenAIEncoder{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Encode embeds text and L2-normalizes the result.
func (e *OpenAIEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: no embedding data returned")
	}

	out := append([]float32(nil), resp.Data[0].Embedding...)
	return Normalize(out), nil
}
