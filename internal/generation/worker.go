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
	"errors"

	"go.uber.org/zap"

	"github.com/your-org/consent-docgen/internal/llm"
	"github.com/your-org/consent-docgen/internal/retrieval"
	"github.com/your-org/consent-docgen/internal/sections"
	"github.com/your-org/consent-docgen/internal/streaming"
)

// CancelledMessage is the error message recorded on sections whose worker
// was interrupted by session cancellation
const CancelledMessage = "generation cancelled"

// Worker drives one section through its state machine:
// pending -> generating -> {ready_for_review | error}.
// Initial generation and regeneration both run through this type, so a
// section's retrieval query and prompt template cannot diverge between
// the two paths.
type Worker struct {
	spec         sections.Spec
	collectionID string
	metadata     map[string]string
	feedback     string
	state        *SectionState
	retriever    retrieval.Retriever
	gateway      *llm.Gateway
	sink         *streaming.Sink
	promptConfig sections.PromptConfig
	chunks       int
	logger       *zap.Logger
}

// WorkerParams bundles the collaborators and inputs for one section worker
type WorkerParams struct {
	Spec         sections.Spec
	CollectionID string
	Metadata     map[string]string
	Feedback     string
	State        *SectionState
	Retriever    retrieval.Retriever
	Gateway      *llm.Gateway
	Sink         *streaming.Sink
	PromptConfig sections.PromptConfig
	Chunks       int
	Logger       *zap.Logger
}

// NewWorker creates a worker for one section
func NewWorker(params WorkerParams) *Worker {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		spec:         params.Spec,
		collectionID: params.CollectionID,
		metadata:     params.Metadata,
		feedback:     params.Feedback,
		state:        params.State,
		retriever:    params.Retriever,
		gateway:      params.Gateway,
		sink:         params.Sink,
		promptConfig: params.PromptConfig,
		chunks:       params.Chunks,
		logger:       logger.With(zap.String("section", params.Spec.Name)),
	}
}

// Run executes the section's full generation attempt. Errors are absorbed
// into the section's state and a section_error event; they never
// propagate to sibling workers. On exit the section is always in a
// terminal state, even when the context was cancelled mid-stream.
func (w *Worker) Run(ctx context.Context) {
	// Whatever happens above, never leave the section stuck in
	// generating. Cancellation mid-stream lands here.
	defer func() {
		if w.state.markError(CancelledMessage) {
			w.logger.Info("Section cancelled before completion")
			w.sink.Send(context.Background(), streaming.SectionFailed(w.spec.Name, CancelledMessage))
		}
	}()

	w.state.markGenerating()
	w.sink.Send(ctx, streaming.SectionStart(w.spec.Name))

	w.logger.Info("Section generation started",
		zap.String("collection_id", w.collectionID),
		zap.String("retrieval_query", w.spec.RetrievalQuery))

	retrieved, err := w.retriever.Retrieve(ctx, w.collectionID, w.spec.RetrievalQuery, w.chunks)
	if err != nil {
		w.fail("context retrieval failed: "+err.Error(), err)
		return
	}

	passages := make([]sections.ContextPassage, 0, len(retrieved.Passages))
	for _, passage := range retrieved.Passages {
		passages = append(passages, sections.ContextPassage{
			Content:  passage.ChunkText,
			SourceID: passage.SourceMetadata["chunk_id"],
			Score:    passage.RelevanceScore,
		})
	}

	var prompt string
	if w.feedback == "" {
		prompt = sections.BuildPrompt(w.spec, passages, w.metadata, w.promptConfig)
	} else {
		prompt = sections.BuildPromptWithFeedback(w.spec, passages, w.metadata, w.feedback, w.promptConfig)
	}

	completion := w.gateway.StreamCompletion(ctx, prompt)
	for delta := range completion.Deltas() {
		if delta.Reset {
			// Fallback restart: the partial primary output is gone.
			w.state.reset()
			continue
		}
		accumulated := w.state.appendDelta(delta.Text)
		w.sink.Send(ctx, streaming.Token(w.spec.Name, delta.Text, accumulated))
	}

	if err := completion.Err(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Session cancelled; the deferred cleanup records it.
			return
		}
		w.fail("generation failed: "+err.Error(), err)
		return
	}

	content := w.state.markReady(completion.UsedFallback())
	wordCount := sections.WordCount(content)

	w.logger.Info("Section generation completed",
		zap.Int("word_count", wordCount),
		zap.Bool("used_fallback_model", completion.UsedFallback()))

	w.sink.Send(ctx, streaming.SectionComplete(w.spec.Name, content, wordCount, completion.UsedFallback()))
}

// fail records a section-scoped error and emits the section_error event.
// The send is detached from the session context so an expired deadline
// does not swallow its own failure report; the sink bounds it either way.
func (w *Worker) fail(message string, err error) {
	w.logger.Warn("Section generation failed", zap.Error(err))
	if w.state.markError(message) {
		w.sink.Send(context.Background(), streaming.SectionFailed(w.spec.Name, message))
	}
}
