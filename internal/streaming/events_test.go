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

package streaming

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTokenEventFields(t *testing.T) {
	event := Token("risks", " headaches", "Common side effects include headaches")

	if event.Type != EventToken {
		t.Errorf("Expected type token, got %s", event.Type)
	}
	if event.Section != "risks" {
		t.Errorf("Expected section risks, got %s", event.Section)
	}
	if event.Delta != " headaches" {
		t.Errorf("Unexpected delta: %q", event.Delta)
	}
	if event.AccumulatedContent != "Common side effects include headaches" {
		t.Errorf("Unexpected accumulated content: %q", event.AccumulatedContent)
	}
}

func TestSectionCompleteEventFields(t *testing.T) {
	event := SectionComplete("summary", "This study tests a new drug.", 6, true)

	if event.Type != EventSectionComplete {
		t.Errorf("Expected type section_complete, got %s", event.Type)
	}
	if event.WordCount != 6 {
		t.Errorf("Expected word count 6, got %d", event.WordCount)
	}
	if !event.UsedFallbackModel {
		t.Error("Expected used_fallback_model true")
	}
}

func TestCompleteEventAlwaysCarriesErrorsArray(t *testing.T) {
	event := Complete(nil)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal complete event: %v", err)
	}
	if !strings.Contains(string(data), `"errors":[]`) {
		t.Errorf("Complete event payload should carry an empty errors array, got %s", data)
	}

	// The wire format must carry the array too, not just direct marshalling.
	if sse := event.ToSSEMessage(); !strings.Contains(sse, `"errors":[]`) {
		t.Errorf("Complete SSE message should carry an empty errors array, got %s", sse)
	}
}

func TestCompleteEventCarriesSectionErrors(t *testing.T) {
	event := Complete([]SectionError{
		{Section: "risks", Message: "context retrieval failed"},
	})

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal complete event: %v", err)
	}
	if !strings.Contains(string(data), `"section":"risks"`) {
		t.Errorf("Expected section error in payload, got %s", data)
	}
}

func TestToSSEMessageFormat(t *testing.T) {
	message := Token("purpose", "A", "A").ToSSEMessage()

	if !strings.HasPrefix(message, "event: token\n") {
		t.Errorf("SSE message missing event line: %q", message)
	}
	if !strings.Contains(message, "data: {") {
		t.Errorf("SSE message missing data line: %q", message)
	}
	if !strings.HasSuffix(message, "\n\n") {
		t.Errorf("SSE message must end with a blank line: %q", message)
	}
}

func TestEventOmitsUnusedFields(t *testing.T) {
	data, err := json.Marshal(SectionStart("duration"))
	if err != nil {
		t.Fatalf("Failed to marshal section_start event: %v", err)
	}
	payload := string(data)
	for _, field := range []string{"delta", "accumulated_content", "content", "word_count", "message", "errors"} {
		if strings.Contains(payload, `"`+field+`"`) {
			t.Errorf("section_start payload should omit %s, got %s", field, payload)
		}
	}
}
