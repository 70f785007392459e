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
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/consent-docgen/internal/llm"
	"github.com/your-org/consent-docgen/internal/resilience"
	"github.com/your-org/consent-docgen/internal/retrieval"
	"github.com/your-org/consent-docgen/internal/sections"
	"github.com/your-org/consent-docgen/internal/streaming"
)

// RegenerationService re-runs a single section outside full-session
// orchestration. It resolves the section through the same registry and
// runs the same Worker as initial generation, so the retrieval query and
// prompt template are identical to the first pass by construction.
type RegenerationService struct {
	registry  *sections.Registry
	retriever retrieval.Retriever
	gateway   *llm.Gateway
	config    Config
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewRegenerationService creates a regeneration service sharing the
// orchestrator's collaborators
func NewRegenerationService(registry *sections.Registry, retriever retrieval.Retriever, gateway *llm.Gateway, config Config, logger *zap.Logger) *RegenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegenerationService{
		registry:  registry,
		retriever: retriever,
		gateway:   gateway,
		config:    config,
		logger:    logger,
		inflight:  make(map[string]bool),
	}
}

// Result carries the stream and the regenerated section's state
type Result struct {
	Events <-chan streaming.Event
	State  *SectionState
}

// Regenerate re-runs one section, optionally applying reviewer feedback
// to the prompt. A second regeneration of the same (collection, section)
// while one is in flight is rejected, never run concurrently with itself.
// The returned stream carries the single-section event vocabulary and
// ends with a complete event.
func (s *RegenerationService) Regenerate(ctx context.Context, collectionID, sectionName, feedback string, metadata map[string]string) (*Result, error) {
	spec, ok := s.registry.Get(sectionName)
	if !ok {
		return nil, resilience.NewNotFoundError(
			fmt.Sprintf("unknown section %q", sectionName), nil)
	}

	key := collectionID + "/" + sectionName
	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		return nil, resilience.NewServiceError(
			fmt.Sprintf("section %q is already generating for collection %s", sectionName, collectionID),
			resilience.ErrorCodeValidation, http.StatusConflict, nil)
	}
	s.inflight[key] = true
	s.mu.Unlock()

	sink := streaming.NewSink(s.config.SinkBuffer, s.config.SinkSendTimeout, s.logger)
	state := NewSectionState(sectionName)

	worker := NewWorker(WorkerParams{
		Spec:         spec,
		CollectionID: collectionID,
		Metadata:     metadata,
		Feedback:     feedback,
		State:        state,
		Retriever:    s.retriever,
		Gateway:      s.gateway,
		Sink:         sink,
		PromptConfig: s.config.PromptConfig,
		Chunks:       s.config.ChunksPerSection,
		Logger:       s.logger,
	})

	s.logger.Info("Section regeneration started",
		zap.String("collection_id", collectionID),
		zap.String("section", sectionName),
		zap.Bool("has_feedback", feedback != ""))

	go func() {
		defer sink.Close()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
		}()

		worker.Run(ctx)

		var sectionErrors []streaming.SectionError
		if snapshot := state.Snapshot(); snapshot.Status == StatusError {
			sectionErrors = append(sectionErrors, streaming.SectionError{
				Section: snapshot.Name,
				Message: snapshot.ErrorMessage,
			})
		}
		sink.Send(context.Background(), streaming.Complete(sectionErrors))
	}()

	return &Result{Events: sink.Events(), State: state}, nil
}

// Generating reports whether a regeneration is in flight for the given
// collection and section
func (s *RegenerationService) Generating(collectionID, sectionName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[collectionID+"/"+sectionName]
}
