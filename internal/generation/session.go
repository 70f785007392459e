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

// Package generation implements the streaming multi-section document
// generation core: per-section workers, the session orchestrator, and the
// single-section regeneration service.
package generation

import (
	"fmt"
	"sync"
	"time"

	"github.com/your-org/consent-docgen/internal/sections"
)

// SectionStatus is the lifecycle state of one section
type SectionStatus string

const (
	// StatusPending means the section's worker has not started yet
	StatusPending SectionStatus = "pending"
	// StatusGenerating means the worker is streaming model output
	StatusGenerating SectionStatus = "generating"
	// StatusReadyForReview means generation finished and a human may review
	StatusReadyForReview SectionStatus = "ready_for_review"
	// StatusApproved means a reviewer accepted the section
	StatusApproved SectionStatus = "approved"
	// StatusError means the section failed; siblings are unaffected
	StatusError SectionStatus = "error"
)

// Terminal reports whether the status is an end state
func (s SectionStatus) Terminal() bool {
	switch s {
	case StatusReadyForReview, StatusApproved, StatusError:
		return true
	}
	return false
}

// AggregateStatus is the lifecycle state of a whole session
type AggregateStatus string

const (
	// AggregateInProgress means at least one section is not terminal
	AggregateInProgress AggregateStatus = "in_progress"
	// AggregateCompleted means every section reached a terminal status
	AggregateCompleted AggregateStatus = "completed"
	// AggregateCancelled means the client disconnected or cancelled
	AggregateCancelled AggregateStatus = "cancelled"
)

// SectionState holds one section's mutable generation state. Only the
// owning worker writes it; everyone else reads through Snapshot.
type SectionState struct {
	mu                sync.Mutex
	name              string
	status            SectionStatus
	content           string
	tokenCount        int
	errorMessage      string
	usedFallbackModel bool
}

// SectionSnapshot is a consistent copy of a SectionState
type SectionSnapshot struct {
	Name              string        `json:"name"`
	Status            SectionStatus `json:"status"`
	Content           string        `json:"content"`
	TokenCount        int           `json:"token_count"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	UsedFallbackModel bool          `json:"used_fallback_model"`
}

// NewSectionState creates a pending section state
func NewSectionState(name string) *SectionState {
	return &SectionState{name: name, status: StatusPending}
}

// Snapshot returns a consistent copy of the state
func (s *SectionState) Snapshot() SectionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SectionSnapshot{
		Name:              s.name,
		Status:            s.status,
		Content:           s.content,
		TokenCount:        s.tokenCount,
		ErrorMessage:      s.errorMessage,
		UsedFallbackModel: s.usedFallbackModel,
	}
}

// Terminal reports whether the section reached an end state
func (s *SectionState) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Terminal()
}

// markGenerating transitions pending -> generating
func (s *SectionState) markGenerating() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusGenerating
}

// appendDelta appends one model delta and returns the accumulated content.
// Content length is non-decreasing across calls.
func (s *SectionState) appendDelta(delta string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content += delta
	s.tokenCount++
	return s.content
}

// reset discards accumulated content after a fallback restart
func (s *SectionState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = ""
	s.tokenCount = 0
}

// markReady transitions generating -> ready_for_review
func (s *SectionState) markReady(usedFallback bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusReadyForReview
	s.usedFallbackModel = usedFallback
	return s.content
}

// markError transitions to error with a human-readable message. A section
// that already reached a terminal state keeps it.
func (s *SectionState) markError(message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = StatusError
	s.errorMessage = message
	return true
}

// Approve transitions ready_for_review -> approved, driven by an external
// reviewer rather than the worker
func (s *SectionState) Approve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReadyForReview {
		return fmt.Errorf("section %s is %s, only ready_for_review sections can be approved", s.name, s.status)
	}
	s.status = StatusApproved
	return nil
}

// Session tracks one full-document generation run
type Session struct {
	ID           string
	CollectionID string

	mu       sync.Mutex
	status   AggregateStatus
	started  bool
	sections map[string]*SectionState
	order    []string
}

// NewSession creates a session with one pending section state per
// registry entry
func NewSession(collectionID string, registry *sections.Registry) *Session {
	session := &Session{
		ID:           fmt.Sprintf("session_%d", time.Now().UnixNano()),
		CollectionID: collectionID,
		status:       AggregateInProgress,
		sections:     make(map[string]*SectionState),
	}
	for _, name := range registry.Names() {
		session.sections[name] = NewSectionState(name)
		session.order = append(session.order, name)
	}
	return session
}

// Section returns the state for a section name
func (s *Session) Section(name string) (*SectionState, bool) {
	state, ok := s.sections[name]
	return state, ok
}

// SectionNames returns section names in document order
func (s *Session) SectionNames() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Status returns the aggregate session status
func (s *Session) Status() AggregateStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// begin marks the session as started. Only the first caller wins; a
// session is generated at most once so no section ever has two workers.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

// setStatus updates the aggregate status
func (s *Session) setStatus(status AggregateStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// AllTerminal reports whether every section reached a terminal status
func (s *Session) AllTerminal() bool {
	for _, state := range s.sections {
		if !state.Terminal() {
			return false
		}
	}
	return true
}

// Snapshot returns a consistent copy of all section states in document order
func (s *Session) Snapshot() []SectionSnapshot {
	snapshots := make([]SectionSnapshot, 0, len(s.order))
	for _, name := range s.order {
		snapshots = append(snapshots, s.sections[name].Snapshot())
	}
	return snapshots
}
