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

package generation

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/your-org/consent-docgen/internal/llm"
	"github.com/your-org/consent-docgen/internal/retrieval"
	"github.com/your-org/consent-docgen/internal/sections"
	"github.com/your-org/consent-docgen/internal/streaming"
)

// stubStream replays scripted deltas. With hangAfter it blocks on the
// context after the deltas instead of returning EOF; with release set it
// blocks before the first delta until the channel closes.
type stubStream struct {
	ctx       context.Context
	deltas    []string
	err       error
	hangAfter bool
	release   <-chan struct{}
	pos       int
}

func (s *stubStream) Recv() (string, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if s.ctx.Err() != nil {
		return "", s.ctx.Err()
	}
	if s.pos < len(s.deltas) {
		delta := s.deltas[s.pos]
		s.pos++
		return delta, nil
	}
	if s.hangAfter {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *stubStream) Close() error { return nil }

// providerScript selects a stream by prompt substring and model name.
// Empty fields match anything; the first matching script wins.
type providerScript struct {
	promptMatch string
	model       string
	openErr     error
	stream      func(ctx context.Context) llm.TokenStream
}

type stubProvider struct {
	mu      sync.Mutex
	scripts []providerScript
	prompts []string
}

func (p *stubProvider) Stream(ctx context.Context, model, prompt string) (llm.TokenStream, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	scripts := p.scripts
	p.mu.Unlock()

	for _, script := range scripts {
		if script.promptMatch != "" && !strings.Contains(prompt, script.promptMatch) {
			continue
		}
		if script.model != "" && script.model != model {
			continue
		}
		if script.openErr != nil {
			return nil, script.openErr
		}
		return script.stream(ctx), nil
	}
	return nil, fmt.Errorf("no script for model %s", model)
}

func (p *stubProvider) recordedPrompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

// textStream builds a script stream factory for a plain delta sequence
func textStream(deltas ...string) func(ctx context.Context) llm.TokenStream {
	return func(ctx context.Context) llm.TokenStream {
		return &stubStream{ctx: ctx, deltas: deltas}
	}
}

type retrievalCall struct {
	CollectionID string
	Query        string
	K            int
}

// stubRetriever records every call and serves canned passages, with
// optional per-query failures
type stubRetriever struct {
	mu      sync.Mutex
	calls   []retrievalCall
	failFor map[string]error
}

func (r *stubRetriever) Retrieve(ctx context.Context, collectionID, queryText string, k int) (*retrieval.Context, error) {
	r.mu.Lock()
	r.calls = append(r.calls, retrievalCall{CollectionID: collectionID, Query: queryText, K: k})
	r.mu.Unlock()

	if err, ok := r.failFor[queryText]; ok {
		return nil, err
	}
	return &retrieval.Context{
		CollectionID: collectionID,
		Query:        queryText,
		Passages: []retrieval.Passage{
			{
				ChunkText:      "Relevant protocol text for: " + queryText,
				RelevanceScore: 0.9,
				SourceMetadata: map[string]string{"chunk_id": "chunk_0001"},
			},
		},
	}, nil
}

func (r *stubRetriever) recordedCalls() []retrievalCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]retrievalCall(nil), r.calls...)
}

func (r *stubRetriever) queryFor(query string) (retrievalCall, bool) {
	for _, call := range r.recordedCalls() {
		if call.Query == query {
			return call, true
		}
	}
	return retrievalCall{}, false
}

func testRegistry(t *testing.T) *sections.Registry {
	t.Helper()
	registry, err := sections.NewRegistryWithSpecs([]sections.Spec{
		{
			Name:           "summary",
			Title:          "Study Summary",
			PromptTemplate: "Summarize the study in plain language.",
			RetrievalQuery: "study synopsis objectives",
		},
		{
			Name:           "risks",
			Title:          "Risks and Discomforts",
			PromptTemplate: "Describe the known risks of the study.",
			RetrievalQuery: "adverse events side effects",
		},
	})
	require.NoError(t, err)
	return registry
}

func testGateway(provider llm.Provider) *llm.Gateway {
	return llm.NewGateway(provider, llm.GatewayConfig{
		PrimaryModel:  "primary",
		FallbackModel: "fallback",
		Policy:        llm.PolicyRestart,
	}, nil)
}

func testConfig() Config {
	return Config{
		ChunksPerSection: 5,
		SinkBuffer:       128,
		SinkSendTimeout:  time.Second,
		PromptConfig:     sections.DefaultPromptConfig(),
	}
}

// drainEvents reads the stream to completion with a watchdog so a wedged
// test fails instead of hanging
func drainEvents(t *testing.T, events <-chan streaming.Event) []streaming.Event {
	t.Helper()

	var collected []streaming.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			t.Fatalf("Event stream did not close; got %d events so far", len(collected))
		}
	}
}

// eventsForSection filters the stream down to one section's events
func eventsForSection(events []streaming.Event, section string) []streaming.Event {
	var filtered []streaming.Event
	for _, event := range events {
		if event.Section == section {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
