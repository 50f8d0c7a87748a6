// Package gemini provides the embedding client for the market index, backed
// by the Google Gemini API.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
)

const (
	DefaultModel     = "gemini-embedding-001"
	DefaultBatchSize = 100
)

// Client implements interfaces.Embedder on the Gemini embedding API.
type Client struct {
	client    *genai.Client
	model     string
	batchSize int
	logger    *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the embedding model to use
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithBatchSize sets the maximum texts per embedding request
func WithBatchSize(n int) ClientOption {
	return func(c *Client) {
		c.batchSize = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Gemini embedding client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client:    genaiClient,
		model:     DefaultModel,
		batchSize: DefaultBatchSize,
		logger:    common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// EmbedTexts embeds texts in API-sized batches, preserving input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		c.logger.Debug().Str("model", c.model).Int("count", len(contents)).Msg("Embedding batch")
		result, err := c.client.Models.EmbedContent(ctx, c.model, contents, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(result.Embeddings) != len(contents) {
			return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(result.Embeddings), len(contents))
		}
		for _, emb := range result.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}

// Compile-time check
var _ interfaces.Embedder = (*Client)(nil)
