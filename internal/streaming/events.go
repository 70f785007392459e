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

// Package streaming defines the typed event vocabulary emitted during
// document generation and the shutdown-safe sink that bridges section
// workers to the transport layer.
package streaming

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of progress event
type EventType string

const (
	// EventSectionStart marks the start of one section's generation
	EventSectionStart EventType = "section_start"
	// EventToken carries one streamed model delta for a section
	EventToken EventType = "token"
	// EventSectionComplete marks successful completion of one section
	EventSectionComplete EventType = "section_complete"
	// EventSectionError marks a failed section; siblings keep running
	EventSectionError EventType = "section_error"
	// EventComplete marks the end of a whole session
	EventComplete EventType = "complete"
	// EventError marks a session-scoped failure before workers start
	EventError EventType = "error"
)

// Event is one typed progress message. Fields are populated according to
// the event type; unused fields are omitted from the JSON payload.
type Event struct {
	Type EventType `json:"type"`

	// Section-scoped fields
	Section            string `json:"section,omitempty"`
	Delta              string `json:"delta,omitempty"`
	AccumulatedContent string `json:"accumulated_content,omitempty"`
	Content            string `json:"content,omitempty"`
	WordCount          int    `json:"word_count,omitempty"`
	UsedFallbackModel  bool   `json:"used_fallback_model,omitempty"`

	// Error fields
	Message string `json:"message,omitempty"`

	// Session completion
	Errors []SectionError `json:"errors,omitempty"`
}

// SectionError pairs a section name with its failure message in the final
// complete event
type SectionError struct {
	Section string `json:"section"`
	Message string `json:"message"`
}

// SectionStart builds a section_start event
func SectionStart(section string) Event {
	return Event{Type: EventSectionStart, Section: section}
}

// Token builds a token event carrying the delta and the content so far
func Token(section, delta, accumulated string) Event {
	return Event{
		Type:               EventToken,
		Section:            section,
		Delta:              delta,
		AccumulatedContent: accumulated,
	}
}

// SectionComplete builds a section_complete event
func SectionComplete(section, content string, wordCount int, usedFallback bool) Event {
	return Event{
		Type:              EventSectionComplete,
		Section:           section,
		Content:           content,
		WordCount:         wordCount,
		UsedFallbackModel: usedFallback,
	}
}

// SectionFailed builds a section_error event
func SectionFailed(section, message string) Event {
	return Event{Type: EventSectionError, Section: section, Message: message}
}

// Complete builds the final session event. errors is never nil so the
// payload always carries an errors array.
func Complete(errors []SectionError) Event {
	if errors == nil {
		errors = []SectionError{}
	}
	return Event{Type: EventComplete, Errors: errors}
}

// SessionError builds a session-scoped error event
func SessionError(message string) Event {
	return Event{Type: EventError, Message: message}
}

// MarshalJSON writes the wire payload. The complete event always carries
// its errors array, even when empty; every other event type omits unused
// fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventComplete {
		errs := e.Errors
		if errs == nil {
			errs = []SectionError{}
		}
		return json.Marshal(struct {
			Type   EventType      `json:"type"`
			Errors []SectionError `json:"errors"`
		}{e.Type, errs})
	}
	type wireEvent Event
	return json.Marshal(wireEvent(e))
}

// ToSSEMessage converts an event to Server-Sent Events wire format using
// the event type as the SSE event name
func (e Event) ToSSEMessage() string {
	data, _ := json.Marshal(e)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, data)
}
