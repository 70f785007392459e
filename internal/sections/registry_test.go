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

package sections

import (
	"strings"
	"testing"
)

func TestDefaultRegistryIsComplete(t *testing.T) {
	registry := NewRegistry()

	if registry.Len() != 11 {
		t.Errorf("Expected 11 sections, got %d", registry.Len())
	}

	names := registry.Names()
	if names[0] != "summary" {
		t.Errorf("Expected first section to be summary, got %s", names[0])
	}
	if names[len(names)-1] != "contacts" {
		t.Errorf("Expected last section to be contacts, got %s", names[len(names)-1])
	}

	for _, spec := range registry.All() {
		if spec.Title == "" {
			t.Errorf("Section %s has no title", spec.Name)
		}
		if spec.PromptTemplate == "" {
			t.Errorf("Section %s has no prompt template", spec.Name)
		}
		if spec.RetrievalQuery == "" {
			t.Errorf("Section %s has no retrieval query", spec.Name)
		}
	}
}

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()

	spec, ok := registry.Get("risks")
	if !ok {
		t.Fatal("Expected risks section to exist")
	}
	if spec.Title != "Risks and Discomforts" {
		t.Errorf("Unexpected title: %s", spec.Title)
	}
	if !strings.Contains(spec.RetrievalQuery, "adverse events") {
		t.Errorf("Risks retrieval query should target adverse events, got %q", spec.RetrievalQuery)
	}

	if _, ok := registry.Get("nonexistent"); ok {
		t.Error("Get should report false for unknown sections")
	}
}

func TestRegistryNamesReturnsCopy(t *testing.T) {
	registry := NewRegistry()

	names := registry.Names()
	names[0] = "mutated"

	if registry.Names()[0] != "summary" {
		t.Error("Mutating the returned slice must not affect the registry")
	}
}

func TestNewRegistryWithSpecsValidation(t *testing.T) {
	valid := Spec{
		Name:           "summary",
		Title:          "Summary",
		PromptTemplate: "Write a summary.",
		RetrievalQuery: "study synopsis",
	}

	tests := []struct {
		name    string
		specs   []Spec
		wantErr string
	}{
		{
			name:  "valid single section",
			specs: []Spec{valid},
		},
		{
			name:    "empty name",
			specs:   []Spec{{PromptTemplate: "x", RetrievalQuery: "y"}},
			wantErr: "empty name",
		},
		{
			name:    "missing retrieval query",
			specs:   []Spec{{Name: "summary", PromptTemplate: "x"}},
			wantErr: "missing prompt template or retrieval query",
		},
		{
			name:    "duplicate name",
			specs:   []Spec{valid, valid},
			wantErr: "duplicate section name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := NewRegistryWithSpecs(tt.specs)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if registry.Len() != len(tt.specs) {
					t.Errorf("Expected %d sections, got %d", len(tt.specs), registry.Len())
				}
				return
			}
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
