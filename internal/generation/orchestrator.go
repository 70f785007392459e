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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/consent-docgen/internal/llm"
	"github.com/your-org/consent-docgen/internal/retrieval"
	"github.com/your-org/consent-docgen/internal/sections"
	"github.com/your-org/consent-docgen/internal/streaming"
)

// Config holds the tunables shared by the orchestrator and the
// regeneration service
type Config struct {
	ChunksPerSection int
	SinkBuffer       int
	SinkSendTimeout  time.Duration
	PromptConfig     sections.PromptConfig
}

// DefaultConfig returns the default orchestration configuration
func DefaultConfig() Config {
	return Config{
		ChunksPerSection: 5,
		SinkBuffer:       streaming.DefaultSinkBuffer,
		SinkSendTimeout:  streaming.DefaultSendTimeout,
		PromptConfig:     sections.DefaultPromptConfig(),
	}
}

// Orchestrator runs one SectionWorker per registry entry for a session,
// multiplexes their events onto a single stream, and tracks aggregate
// completion
type Orchestrator struct {
	registry  *sections.Registry
	retriever retrieval.Retriever
	gateway   *llm.Gateway
	config    Config
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator over the given collaborators
func NewOrchestrator(registry *sections.Registry, retriever retrieval.Retriever, gateway *llm.Gateway, config Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:  registry,
		retriever: retriever,
		gateway:   gateway,
		config:    config,
		logger:    logger,
	}
}

// Generate starts all section workers concurrently and returns the merged
// event stream. The stream ends with a complete event carrying every
// section error, after which the channel closes. Cancelling ctx stops all
// workers promptly; none is left in generating.
//
// Event ordering is FIFO within a section; interleaving across sections
// is whatever the scheduler produces. A session is generated at most
// once: a second call yields a stream carrying a single session-scoped
// error event.
func (o *Orchestrator) Generate(ctx context.Context, session *Session, metadata map[string]string) <-chan streaming.Event {
	sink := streaming.NewSink(o.config.SinkBuffer, o.config.SinkSendTimeout, o.logger)

	// Session-scoped failure: a second Generate on the same session would
	// attach a duplicate worker to every section state. The stream carries
	// a single error event and ends; no section state is touched.
	if !session.begin() {
		o.logger.Warn("Rejected duplicate generation for session",
			zap.String("session_id", session.ID))
		go func() {
			defer sink.Close()
			sink.Send(context.Background(), streaming.SessionError("generation already started for this session"))
		}()
		return sink.Events()
	}

	go func() {
		defer sink.Close()

		o.logger.Info("Session generation started",
			zap.String("session_id", session.ID),
			zap.String("collection_id", session.CollectionID),
			zap.Int("sections", o.registry.Len()))

		var wg sync.WaitGroup
		for _, spec := range o.registry.All() {
			state, ok := session.Section(spec.Name)
			if !ok {
				continue
			}

			worker := NewWorker(WorkerParams{
				Spec:         spec,
				CollectionID: session.CollectionID,
				Metadata:     metadata,
				State:        state,
				Retriever:    o.retriever,
				Gateway:      o.gateway,
				Sink:         sink,
				PromptConfig: o.config.PromptConfig,
				Chunks:       o.config.ChunksPerSection,
				Logger:       o.logger,
			})

			wg.Add(1)
			go func() {
				defer wg.Done()
				worker.Run(ctx)
			}()
		}

		wg.Wait()

		sectionErrors := collectSectionErrors(session)
		if ctx.Err() != nil {
			session.setStatus(AggregateCancelled)
		} else {
			session.setStatus(AggregateCompleted)
		}

		o.logger.Info("Session generation finished",
			zap.String("session_id", session.ID),
			zap.String("aggregate_status", string(session.Status())),
			zap.Int("section_errors", len(sectionErrors)))

		// Every section is terminal at this point. Delivery of the final
		// event is best effort when the client is already gone; the send
		// is bounded by the sink timeout either way.
		sink.Send(context.Background(), streaming.Complete(sectionErrors))
	}()

	return sink.Events()
}

// collectSectionErrors gathers the failure messages of errored sections
// in document order
func collectSectionErrors(session *Session) []streaming.SectionError {
	errors := []streaming.SectionError{}
	for _, snapshot := range session.Snapshot() {
		if snapshot.Status == StatusError {
			errors = append(errors, streaming.SectionError{
				Section: snapshot.Name,
				Message: snapshot.ErrorMessage,
			})
		}
	}
	return errors
}
