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

package chroma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/your-org/consent-docgen/internal/resilience"
)

// fastClient returns a client pointed at a test server with retry delays
// shrunk so failure paths finish quickly
func fastClient(baseURL string) *Client {
	client := NewClient(baseURL, nil)
	client.backoff.BaseDelay = time.Millisecond
	client.backoff.MaxDelay = 5 * time.Millisecond
	client.backoff.MaxRetries = 1
	return client
}

func TestEnsureCollection(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/collections" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	if err := client.EnsureCollection(context.Background(), "protocol_abc"); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}

	if received["name"] != "protocol_abc" {
		t.Errorf("Expected collection name protocol_abc, got %v", received["name"])
	}
	if received["get_or_create"] != true {
		t.Error("EnsureCollection must use get_or_create")
	}
}

func TestHasCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/collections/exists":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := fastClient(server.URL)

	exists, err := client.HasCollection(context.Background(), "exists")
	if err != nil || !exists {
		t.Errorf("Expected collection to exist, got exists=%v err=%v", exists, err)
	}

	exists, err = client.HasCollection(context.Background(), "missing")
	if err != nil {
		t.Errorf("Missing collection should not be an error, got %v", err)
	}
	if exists {
		t.Error("Expected missing collection to report false")
	}
}

func TestSearchParsesParallelArrays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/collections/protocol_abc/query" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode search request: %v", err)
		}
		if req.NResults != 5 {
			t.Errorf("Expected n_results 5, got %d", req.NResults)
		}

		resp := SearchResponse{
			IDs:       [][]string{{"c1", "c2"}},
			Documents: [][]string{{"first chunk", "second chunk"}},
			Metadatas: [][]map[string]interface{}{{
				{"chunk_id": "c1", "page": float64(3)},
				{"chunk_id": "c2"},
			}},
			Distances: [][]float64{{0.12, 0.34}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	results, err := client.Search(context.Background(), "protocol_abc", []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].ID != "c1" || results[0].Content != "first chunk" {
		t.Errorf("Unexpected first result: %+v", results[0])
	}
	if results[0].Distance != 0.12 {
		t.Errorf("Unexpected distance: %f", results[0].Distance)
	}
	// Only string metadata values survive the conversion.
	if results[0].Metadata["chunk_id"] != "c1" {
		t.Errorf("Expected chunk_id c1, got %v", results[0].Metadata)
	}
	if _, ok := results[0].Metadata["page"]; ok {
		t.Error("Non-string metadata values should be dropped")
	}
}

func TestSearchRejectsMalformedParallelArrays(t *testing.T) {
	tests := []struct {
		name string
		resp SearchResponse
	}{
		{
			name: "short documents array",
			resp: SearchResponse{
				IDs:       [][]string{{"c1", "c2"}},
				Documents: [][]string{{"only one"}},
				Distances: [][]float64{{0.1, 0.2}},
			},
		},
		{
			name: "missing distances",
			resp: SearchResponse{
				IDs:       [][]string{{"c1"}},
				Documents: [][]string{{"chunk"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.resp)
			}))
			defer server.Close()

			client := fastClient(server.URL)
			_, err := client.Search(context.Background(), "protocol_abc", []float32{0.1}, 5)

			if err == nil {
				t.Fatal("Expected error for malformed search response")
			}
			if !strings.Contains(err.Error(), "malformed search response") {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestDeleteCollection(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	if err := client.DeleteCollection(context.Background(), "protocol_abc"); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}

	if method != http.MethodDelete {
		t.Errorf("Expected DELETE, got %s", method)
	}
	if path != "/api/v1/collections/protocol_abc" {
		t.Errorf("Unexpected path: %s", path)
	}
}

func TestDeleteCollectionMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	err := client.DeleteCollection(context.Background(), "missing")

	if !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Expected ErrCollectionNotFound, got %v", err)
	}
}

func TestSearchMissingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	_, err := client.Search(context.Background(), "missing", []float32{0.1}, 5)

	if !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Expected ErrCollectionNotFound, got %v", err)
	}
}

func TestAddDocumentsMismatchedEmbeddings(t *testing.T) {
	client := fastClient("http://unused")

	err := client.AddDocuments(context.Background(), "protocol_abc",
		[]Document{{ID: "c1", Content: "text"}},
		[][]float32{{0.1}, {0.2}})

	if err == nil {
		t.Fatal("Expected error for mismatched document and embedding counts")
	}
}

func TestAddDocumentsSendsPayload(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/collections/protocol_abc/add" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	err := client.AddDocuments(context.Background(), "protocol_abc",
		[]Document{{ID: "c1", Content: "chunk text", Metadata: map[string]string{"chunk_id": "c1"}}},
		[][]float32{{0.1, 0.2}})
	if err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}

	ids, ok := payload["ids"].([]interface{})
	if !ok || len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("Unexpected ids payload: %v", payload["ids"])
	}
	docs, ok := payload["documents"].([]interface{})
	if !ok || docs[0] != "chunk text" {
		t.Errorf("Unexpected documents payload: %v", payload["documents"])
	}
}

func TestChromaErrorDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ChromaError{Detail: "index corrupted", Type: "InternalError"})
	}))
	defer server.Close()

	client := fastClient(server.URL)
	_, err := client.Search(context.Background(), "protocol_abc", []float32{0.1}, 5)

	var chromaErr ChromaError
	if !errors.As(err, &chromaErr) {
		t.Fatalf("Expected ChromaError, got %v", err)
	}
	if chromaErr.Detail != "index corrupted" {
		t.Errorf("Unexpected detail: %s", chromaErr.Detail)
	}
}

func TestCircuitBreakerFailsFastAfterRepeatedErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	for i := 0; i < 6; i++ {
		_, _ = client.Search(context.Background(), "protocol_abc", []float32{0.1}, 5)
	}

	_, err := client.Search(context.Background(), "protocol_abc", []float32{0.1}, 5)
	if !errors.Is(err, resilience.ErrCircuitBreakerOpen) {
		t.Errorf("Expected circuit breaker to fail fast, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/heartbeat" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := fastClient(server.URL)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestHealthCheckUnreachable(t *testing.T) {
	client := fastClient("http://127.0.0.1:1")

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("Expected health check failure for unreachable server")
	}
}
