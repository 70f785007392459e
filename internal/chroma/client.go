package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/consent-docgen/internal/resilience"
)

// ErrCollectionNotFound is returned when a collection does not exist
var ErrCollectionNotFound = errors.New("collection not found")

// Client wraps the ChromaDB REST API. Each ingested protocol gets its own
// collection, so every operation takes the collection name explicitly.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	backoff    resilience.BackoffConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a new ChromaDB client with default settings
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		backoff:    resilience.DefaultBackoffConfig(),
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("chromadb"), logger),
	}
}

// Document represents a document chunk stored in ChromaDB
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// SearchResult represents one ranked chunk from a vector search
type SearchResult struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// SearchRequest represents a query request payload
type SearchRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
}

// SearchResponse represents the response from a query
type SearchResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

// ChromaError represents an error response from ChromaDB
type ChromaError struct {
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func (e ChromaError) Error() string {
	return fmt.Sprintf("ChromaDB error [%s]: %s", e.Type, e.Detail)
}

// doJSON performs a JSON request through the circuit breaker with
// structured error handling. A 404 maps to ErrCollectionNotFound.
func (c *Client) doJSON(ctx context.Context, method, url string, payload interface{}, out interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			jsonPayload, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}
			body = bytes.NewBuffer(jsonPayload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return ErrCollectionNotFound
		}
		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(resp.Body)
			var chromaErr ChromaError
			if json.Unmarshal(respBody, &chromaErr) == nil && chromaErr.Detail != "" {
				return chromaErr
			}
			return fmt.Errorf("ChromaDB returned status %d: %s", resp.StatusCode, string(respBody))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	})
}

// EnsureCollection creates the collection if it does not already exist
func (c *Client) EnsureCollection(ctx context.Context, collection string) error {
	url := fmt.Sprintf("%s/api/v1/collections", c.baseURL)
	payload := map[string]interface{}{
		"name":          collection,
		"get_or_create": true,
	}

	return resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		if err := c.doJSON(ctx, http.MethodPost, url, payload, nil); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", collection, err)
		}
		return nil
	})
}

// HasCollection reports whether the collection exists
func (c *Client) HasCollection(ctx context.Context, collection string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/collections/%s", c.baseURL, collection)

	err := c.doJSON(ctx, http.MethodGet, url, nil, nil)
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddDocuments adds documents with embeddings to a collection
func (c *Client) AddDocuments(ctx context.Context, collection string, documents []Document, embeddings [][]float32) error {
	if len(documents) != len(embeddings) {
		return fmt.Errorf("document count %d does not match embedding count %d", len(documents), len(embeddings))
	}

	c.logger.Info("Adding documents to ChromaDB",
		zap.String("collection", collection),
		zap.Int("document_count", len(documents)))

	url := fmt.Sprintf("%s/api/v1/collections/%s/add", c.baseURL, collection)

	var metadatas []map[string]string
	var ids []string
	var docTexts []string
	for _, doc := range documents {
		metadatas = append(metadatas, doc.Metadata)
		ids = append(ids, doc.ID)
		docTexts = append(docTexts, doc.Content)
	}

	payload := map[string]interface{}{
		"documents":  docTexts,
		"metadatas":  metadatas,
		"ids":        ids,
		"embeddings": embeddings,
	}

	return resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, url, payload, nil)
	})
}

// Search performs a vector search in a collection and returns ranked chunks
func (c *Client) Search(ctx context.Context, collection string, queryEmbedding []float32, nResults int) ([]SearchResult, error) {
	url := fmt.Sprintf("%s/api/v1/collections/%s/query", c.baseURL, collection)

	searchReq := SearchRequest{
		QueryEmbeddings: [][]float32{queryEmbedding},
		NResults:        nResults,
	}

	var searchResp SearchResponse
	if err := c.doJSON(ctx, http.MethodPost, url, searchReq, &searchResp); err != nil {
		return nil, err
	}

	var results []SearchResult
	if len(searchResp.IDs) > 0 {
		ids := searchResp.IDs[0]

		// The response carries parallel arrays; never index one past the
		// length of another on a malformed payload.
		var documents []string
		if len(searchResp.Documents) > 0 {
			documents = searchResp.Documents[0]
		}
		var distances []float64
		if len(searchResp.Distances) > 0 {
			distances = searchResp.Distances[0]
		}
		if len(documents) != len(ids) || len(distances) != len(ids) {
			return nil, fmt.Errorf("malformed search response from collection %s: %d ids, %d documents, %d distances",
				collection, len(ids), len(documents), len(distances))
		}

		for i, id := range ids {
			result := SearchResult{
				ID:       id,
				Content:  documents[i],
				Distance: distances[i],
			}

			if len(searchResp.Metadatas) > 0 && len(searchResp.Metadatas[0]) > i {
				result.Metadata = make(map[string]string)
				for k, v := range searchResp.Metadatas[0][i] {
					if str, ok := v.(string); ok {
						result.Metadata[k] = str
					}
				}
			}

			results = append(results, result)
		}
	}

	c.logger.Debug("ChromaDB search completed",
		zap.String("collection", collection),
		zap.Int("n_results", nResults),
		zap.Int("returned", len(results)))

	return results, nil
}

// DeleteCollection removes a collection and all of its documents.
// Deleting a collection that does not exist reports ErrCollectionNotFound.
func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	url := fmt.Sprintf("%s/api/v1/collections/%s", c.baseURL, collection)

	if err := c.doJSON(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return err
	}

	c.logger.Info("Deleted ChromaDB collection", zap.String("collection", collection))
	return nil
}

// HealthCheck checks if ChromaDB is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/heartbeat", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check ChromaDB health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ChromaDB health check failed with status %d", resp.StatusCode)
	}

	return nil
}
