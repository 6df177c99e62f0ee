// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/retry"
)

// ErrEmptyEmbedding 表示接口返回了空向量。
var ErrEmptyEmbedding = errors.New("received empty embedding from api")

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	cfg         config.EmbeddingConfig
	client      *openai.Client
	maxAttempts int
	backoff     time.Duration
}

// NewClient creates a new OpenAI-compatible embedding client with bounded retries.
func NewClient(cfg config.EmbeddingConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &openAICompatibleClient{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		maxAttempts: attempts,
		backoff:     config.Millis(cfg.BackoffMS),
	}
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(c.cfg.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.cfg.Dimensions > 0 {
		req.Dimensions = c.cfg.Dimensions
	}

	var vector []float32
	err := retry.Do(ctx, c.maxAttempts, c.backoff, func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return parseAPIError(err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return ErrEmptyEmbedding
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, err
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(vector))
	return vector, nil
}

// parseAPIError 提取可读的错误信息，认证/配置类错误标记为不可重试。
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return markPermanent(reqErr.HTTPStatusCode,
			fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body)))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return markPermanent(apiErr.HTTPStatusCode,
			fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}
	return fmt.Errorf("embedding request failed: %w", err)
}

func markPermanent(status int, err error) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return retry.Permanent(err)
	}
	return err
}
