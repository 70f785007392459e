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

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/your-org/consent-docgen/internal/resilience"
)

// FallbackPolicy decides what happens to partial primary-model output when
// the gateway falls back mid-stream
type FallbackPolicy string

const (
	// PolicyRestart discards partial primary output and regenerates the
	// whole completion on the fallback model (default). Mixing providers
	// mid-text produces inconsistent tone, so restart is preferred.
	PolicyRestart FallbackPolicy = "restart"
	// PolicyResume keeps partial primary output and lets the fallback
	// model continue from the original prompt
	PolicyResume FallbackPolicy = "resume"
)

// Delta is one gateway output message. Reset instructs the consumer to
// discard everything accumulated so far; it is emitted when the gateway
// falls back after the primary model already produced output under the
// restart policy.
type Delta struct {
	Text  string
	Reset bool
}

// GatewayConfig holds model selection settings
type GatewayConfig struct {
	PrimaryModel  string
	FallbackModel string
	Policy        FallbackPolicy
}

// Gateway streams completions with primary-model-with-fallback selection
type Gateway struct {
	provider Provider
	config   GatewayConfig
	logger   *zap.Logger
}

// NewGateway creates a gateway over the given provider
func NewGateway(provider Provider, config GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Policy == "" {
		config.Policy = PolicyRestart
	}
	return &Gateway{
		provider: provider,
		config:   config,
		logger:   logger,
	}
}

// Completion is a lazy, finite, non-restartable sequence of deltas.
// Err and UsedFallback are valid only after the Deltas channel closes.
type Completion struct {
	deltas       chan Delta
	err          error
	usedFallback bool
}

// Deltas returns the delta channel; it closes when the completion ends
func (c *Completion) Deltas() <-chan Delta {
	return c.deltas
}

// Err reports the terminal error, if any. Only meaningful after Deltas
// has closed.
func (c *Completion) Err() error {
	return c.err
}

// UsedFallback reports whether the fallback model produced the final
// output. Only meaningful after Deltas has closed.
func (c *Completion) UsedFallback() bool {
	return c.usedFallback
}

// StreamCompletion starts a completion for the prompt. The primary model
// is tried first; on any primary failure the fallback model is tried once.
// If the primary had already emitted output, the policy decides whether
// the consumer restarts from empty (a Reset delta) or keeps the partial
// text. If the fallback also fails the completion ends with a
// GENERATION_FAILED error. A cancelled context ends the completion with
// context.Canceled; an expired deadline ends it with a TIMEOUT error.
func (g *Gateway) StreamCompletion(ctx context.Context, prompt string) *Completion {
	completion := &Completion{
		deltas: make(chan Delta),
	}

	go func() {
		defer close(completion.deltas)

		emitted, primaryErr := g.runAttempt(ctx, g.config.PrimaryModel, prompt, completion.deltas)
		if primaryErr == nil {
			return
		}

		// A cancelled session is not a model failure; don't burn a
		// fallback attempt on it.
		if ctx.Err() != nil {
			completion.err = completionErr(ctx)
			return
		}

		if g.config.FallbackModel == "" {
			completion.err = resilience.NewGenerationError(
				fmt.Sprintf("model %s failed and no fallback is configured", g.config.PrimaryModel),
				primaryErr)
			return
		}

		g.logger.Warn("Primary model failed, falling back",
			zap.String("primary_model", g.config.PrimaryModel),
			zap.String("fallback_model", g.config.FallbackModel),
			zap.Bool("partial_output", emitted),
			zap.String("policy", string(g.config.Policy)),
			zap.Error(primaryErr))

		completion.usedFallback = true

		if emitted && g.config.Policy == PolicyRestart {
			select {
			case completion.deltas <- Delta{Reset: true}:
			case <-ctx.Done():
				completion.err = completionErr(ctx)
				return
			}
		}

		_, fallbackErr := g.runAttempt(ctx, g.config.FallbackModel, prompt, completion.deltas)
		if fallbackErr != nil {
			if ctx.Err() != nil {
				completion.err = completionErr(ctx)
				return
			}
			completion.err = resilience.NewGenerationError(
				"both primary and fallback models failed",
				errors.Join(primaryErr, fallbackErr))
		}
	}()

	return completion
}

// completionErr maps a finished context to the completion's terminal
// error. An expired deadline is a TIMEOUT the caller can report; a plain
// cancellation passes through untouched.
func completionErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return resilience.NewTimeoutError("model stream exceeded its deadline", ctx.Err())
	}
	return ctx.Err()
}

// runAttempt streams one model attempt into out. It reports whether any
// delta was emitted and the terminal error, nil on clean EOF.
func (g *Gateway) runAttempt(ctx context.Context, model, prompt string, out chan<- Delta) (bool, error) {
	stream, err := g.provider.Stream(ctx, model, prompt)
	if err != nil {
		return false, fmt.Errorf("failed to open stream for model %s: %w", model, err)
	}
	defer func() { _ = stream.Close() }()

	emitted := false
	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return emitted, nil
		}
		if err != nil {
			return emitted, fmt.Errorf("stream from model %s failed: %w", model, err)
		}

		select {
		case out <- Delta{Text: text}:
			emitted = true
		case <-ctx.Done():
			return emitted, ctx.Err()
		}
	}
}
