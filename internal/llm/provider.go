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

// Package llm provides the model gateway: streaming chat completions with
// primary-model-with-fallback selection.
package llm

import (
	"context"

	"github.com/your-org/consent-docgen/internal/openai"
)

// TokenStream yields text deltas from one streaming completion attempt.
// Recv returns io.EOF when the model finishes cleanly.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens streaming completions against a named model. Implemented
// by the OpenAI adapter in production and by fakes in tests.
type Provider interface {
	Stream(ctx context.Context, model, prompt string) (TokenStream, error)
}

// OpenAIProvider adapts the internal OpenAI client to the Provider interface
type OpenAIProvider struct {
	client      *openai.Client
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a provider backed by the OpenAI client
func NewOpenAIProvider(client *openai.Client, maxTokens int, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		client:      client,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Stream opens a streaming chat completion for the given model
func (p *OpenAIProvider) Stream(ctx context.Context, model, prompt string) (TokenStream, error) {
	return p.client.StreamChatCompletion(ctx, openai.CompletionRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
}
