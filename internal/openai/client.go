// Copyright 2025 Consent DocGen Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// EmbeddingModel defines the model used for embeddings
	EmbeddingModel = openai.SmallEmbedding3
	// ExpectedEmbeddingDimensions defines the expected embedding dimensions
	ExpectedEmbeddingDimensions = 1536
	// MaxRetries defines the maximum number of retry attempts
	MaxRetries = 3
	// BaseRetryDelay defines the base delay for exponential backoff
	BaseRetryDelay = time.Second
)

// Client wraps the go-openai client for embedding generation and streaming
// chat completions
type Client struct {
	client *openai.Client
	logger *zap.Logger
}

// RetryableError represents an API error that can be retried
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, e.Message)
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if !strings.HasPrefix(apiKey, "sk-") {
		return nil, fmt.Errorf("invalid API key format")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		client: openai.NewClient(apiKey),
		logger: logger,
	}

	client.logger.Info("OpenAI client initialized",
		zap.String("embedding_model", string(EmbeddingModel)),
		zap.Int("expected_dimensions", ExpectedEmbeddingDimensions),
		zap.Int("max_retries", MaxRetries),
	)

	return client, nil
}

// EmbedTexts generates embeddings for a batch of text chunks
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	c.logger.Debug("Starting batch embedding generation",
		zap.Int("text_count", len(texts)),
		zap.String("model", string(EmbeddingModel)),
	)

	start := time.Now()

	embeddings, usage, err := c.createEmbeddingsWithRetry(ctx, texts)
	if err != nil {
		c.logger.Error("Failed to create embeddings",
			zap.Error(err),
			zap.Int("text_count", len(texts)),
		)
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if err := c.validateEmbeddingDimensions(embeddings); err != nil {
		c.logger.Error("Invalid embedding dimensions",
			zap.Error(err),
			zap.Int("expected_dimensions", ExpectedEmbeddingDimensions),
		)
		return nil, fmt.Errorf("embedding validation failed: %w", err)
	}

	c.logger.Info("Batch embedding generation completed",
		zap.Int("text_count", len(texts)),
		zap.Int("tokens_used", usage.PromptTokens),
		zap.Duration("processing_time", time.Since(start)),
	)

	return embeddings, nil
}

// EmbedQuery generates an embedding for a single query text
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, fmt.Errorf("query text cannot be empty")
	}

	embeddings, err := c.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned for query")
	}

	return embeddings[0], nil
}

// createEmbeddingsWithRetry creates embeddings with exponential backoff retry logic
func (c *Client) createEmbeddingsWithRetry(ctx context.Context, texts []string) ([][]float32, openai.Usage, error) {
	var lastErr error
	delay := BaseRetryDelay

	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", MaxRetries),
				zap.Duration("delay", delay),
			)

			select {
			case <-ctx.Done():
				return nil, openai.Usage{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		embeddings, usage, err := c.createEmbeddings(ctx, texts)
		if err != nil {
			lastErr = err

			var retryErr *RetryableError
			if errors.As(err, &retryErr) {
				if retryErr.RetryAfter > 0 {
					delay = retryErr.RetryAfter
				} else {
					delay = BaseRetryDelay * time.Duration(1<<uint(attempt))
				}
				continue
			}

			return nil, openai.Usage{}, err
		}

		return embeddings, usage, nil
	}

	return nil, openai.Usage{}, fmt.Errorf("exhausted all retry attempts: %w", lastErr)
}

// createEmbeddings creates embeddings using the OpenAI API
func (c *Client) createEmbeddings(ctx context.Context, texts []string) ([][]float32, openai.Usage, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: EmbeddingModel,
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, openai.Usage{}, c.handleAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, openai.Usage{}, fmt.Errorf("unexpected response: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, embedding := range resp.Data {
		embeddings[i] = embedding.Embedding
	}

	return embeddings, resp.Usage, nil
}

// handleAPIError classifies OpenAI API errors into retryable and terminal
func (c *Client) handleAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("invalid API key or unauthorized access: %w", err)
		case http.StatusTooManyRequests:
			return &RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
				RetryAfter: parseRetryAfter(apiErr.Message),
			}
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
			}
		default:
			return fmt.Errorf("OpenAI API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
	}

	return fmt.Errorf("OpenAI client error: %w", err)
}

// parseRetryAfter extracts the wait hint embedded in OpenAI rate-limit
// messages ("Rate limit reached ... Please try again in 20s."). Returns 0
// when the message carries no parseable hint, in which case the caller
// falls back to exponential backoff.
func parseRetryAfter(message string) time.Duration {
	const marker = "try again in "
	idx := strings.Index(message, marker)
	if idx == -1 {
		return 0
	}
	token := message[idx+len(marker):]
	if end := strings.IndexByte(token, ' '); end != -1 {
		token = token[:end]
	}
	token = strings.TrimRight(token, ".,")
	delay, err := time.ParseDuration(token)
	if err != nil || delay <= 0 {
		return 0
	}
	return delay
}

// validateEmbeddingDimensions validates that embeddings have the expected dimensions
func (c *Client) validateEmbeddingDimensions(embeddings [][]float32) error {
	for i, embedding := range embeddings {
		if len(embedding) != ExpectedEmbeddingDimensions {
			return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(embedding), ExpectedEmbeddingDimensions)
		}
	}
	return nil
}

// CompletionRequest holds the parameters for a streaming chat completion
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// CompletionStream yields text deltas from a streaming chat completion.
// Recv returns io.EOF when the model finishes.
type CompletionStream struct {
	stream *openai.ChatCompletionStream
	logger *zap.Logger
}

// StreamChatCompletion opens a streaming chat completion. The returned
// stream is finite and not restartable; the caller owns Close.
func (c *Client) StreamChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionStream, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	c.logger.Debug("Opening streaming chat completion",
		zap.String("model", req.Model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Float64("temperature", float64(req.Temperature)),
		zap.Int("prompt_tokens_estimate", len(req.Prompt)/4),
	)

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
	})
	if err != nil {
		return nil, c.handleAPIError(err)
	}

	return &CompletionStream{stream: stream, logger: c.logger}, nil
}

// Recv returns the next text delta. Empty deltas (role frames, finish
// frames) are skipped. Returns io.EOF once the completion finishes.
func (s *CompletionStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("stream receive failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return delta, nil
	}
}

// Close releases the underlying HTTP stream
func (s *CompletionStream) Close() error {
	return s.stream.Close()
}
