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

package metadata

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "protocols.db"))
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleProtocol() Protocol {
	return Protocol{
		CollectionID: "protocol_xyz123",
		Title:        "A Phase 2 Study of XYZ-123 in Adults with Hypertension",
		Sponsor:      "Acme Pharma",
		Indication:   "Hypertension",
		ChunkCount:   42,
	}
}

func TestAddAndGetProtocol(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddProtocol(sampleProtocol()); err != nil {
		t.Fatalf("AddProtocol failed: %v", err)
	}

	got, err := store.GetProtocol("protocol_xyz123")
	if err != nil {
		t.Fatalf("GetProtocol failed: %v", err)
	}
	if got.Title != "A Phase 2 Study of XYZ-123 in Adults with Hypertension" {
		t.Errorf("Unexpected title: %s", got.Title)
	}
	if got.Sponsor != "Acme Pharma" {
		t.Errorf("Unexpected sponsor: %s", got.Sponsor)
	}
	if got.ChunkCount != 42 {
		t.Errorf("Unexpected chunk count: %d", got.ChunkCount)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be populated")
	}
}

func TestGetProtocolNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetProtocol("missing")
	if !errors.Is(err, ErrProtocolNotFound) {
		t.Errorf("Expected ErrProtocolNotFound, got %v", err)
	}
}

func TestAddProtocolReplacesExisting(t *testing.T) {
	store := newTestStore(t)

	protocol := sampleProtocol()
	if err := store.AddProtocol(protocol); err != nil {
		t.Fatalf("First AddProtocol failed: %v", err)
	}

	protocol.ChunkCount = 99
	if err := store.AddProtocol(protocol); err != nil {
		t.Fatalf("Second AddProtocol failed: %v", err)
	}

	got, err := store.GetProtocol(protocol.CollectionID)
	if err != nil {
		t.Fatalf("GetProtocol failed: %v", err)
	}
	if got.ChunkCount != 99 {
		t.Errorf("Re-ingestion should replace the entry, got chunk count %d", got.ChunkCount)
	}

	protocols, err := store.ListProtocols()
	if err != nil {
		t.Fatalf("ListProtocols failed: %v", err)
	}
	if len(protocols) != 1 {
		t.Errorf("Expected 1 protocol after replace, got %d", len(protocols))
	}
}

func TestListProtocols(t *testing.T) {
	store := newTestStore(t)

	first := sampleProtocol()
	second := sampleProtocol()
	second.CollectionID = "protocol_abc456"
	second.Title = "An Open-Label Extension Study"

	if err := store.AddProtocol(first); err != nil {
		t.Fatalf("AddProtocol failed: %v", err)
	}
	if err := store.AddProtocol(second); err != nil {
		t.Fatalf("AddProtocol failed: %v", err)
	}

	protocols, err := store.ListProtocols()
	if err != nil {
		t.Fatalf("ListProtocols failed: %v", err)
	}
	if len(protocols) != 2 {
		t.Fatalf("Expected 2 protocols, got %d", len(protocols))
	}
}

func TestDeleteProtocol(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddProtocol(sampleProtocol()); err != nil {
		t.Fatalf("AddProtocol failed: %v", err)
	}
	if err := store.DeleteProtocol("protocol_xyz123"); err != nil {
		t.Fatalf("DeleteProtocol failed: %v", err)
	}

	if _, err := store.GetProtocol("protocol_xyz123"); !errors.Is(err, ErrProtocolNotFound) {
		t.Errorf("Expected ErrProtocolNotFound after delete, got %v", err)
	}

	if err := store.DeleteProtocol("protocol_xyz123"); !errors.Is(err, ErrProtocolNotFound) {
		t.Errorf("Deleting a missing protocol should report ErrProtocolNotFound, got %v", err)
	}
}

func TestPromptMetadata(t *testing.T) {
	protocol := sampleProtocol()
	m := protocol.PromptMetadata()

	if m["Study Title"] != protocol.Title {
		t.Errorf("Unexpected study title: %s", m["Study Title"])
	}
	if m["Sponsor"] != "Acme Pharma" {
		t.Errorf("Unexpected sponsor: %s", m["Sponsor"])
	}
	if m["Indication"] != "Hypertension" {
		t.Errorf("Unexpected indication: %s", m["Indication"])
	}

	// Empty fields are omitted rather than rendered blank.
	empty := Protocol{CollectionID: "protocol_bare"}
	if len(empty.PromptMetadata()) != 0 {
		t.Errorf("Expected empty metadata map, got %v", empty.PromptMetadata())
	}
}
