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

// Package retrieval turns a section's retrieval query into ranked protocol
// passages by embedding the query and searching the vector store.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/consent-docgen/internal/chroma"
	"github.com/your-org/consent-docgen/internal/resilience"
)

const (
	// MinChunks is the lower bound for the number of retrieved passages
	MinChunks = 3
	// MaxChunks is the upper bound for the number of retrieved passages
	MaxChunks = 10
)

// Passage is one ranked chunk of protocol text
type Passage struct {
	ChunkText      string            `json:"chunk_text"`
	RelevanceScore float64           `json:"relevance_score"`
	SourceMetadata map[string]string `json:"source_metadata"`
}

// Context is the ordered retrieval result for one query. Ephemeral:
// produced per generation attempt, never persisted.
type Context struct {
	CollectionID string    `json:"collection_id"`
	Query        string    `json:"query"`
	Passages     []Passage `json:"passages"`
}

// Retriever returns ranked text passages for a retrieval query. The
// orchestrator and the regeneration path share one Retriever so both see
// identical behavior for the same query.
type Retriever interface {
	Retrieve(ctx context.Context, collectionID, queryText string, k int) (*Context, error)
}

// Embedder turns query text into an embedding vector
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorSearcher is the slice of the ChromaDB client the retriever needs
type VectorSearcher interface {
	HasCollection(ctx context.Context, collection string) (bool, error)
	Search(ctx context.Context, collection string, queryEmbedding []float32, nResults int) ([]chroma.SearchResult, error)
}

// ChromaRetriever implements Retriever over the embedding provider and the
// ChromaDB client
type ChromaRetriever struct {
	embedder Embedder
	searcher VectorSearcher
	logger   *zap.Logger
}

// NewChromaRetriever creates a retriever over the given collaborators
func NewChromaRetriever(embedder Embedder, searcher VectorSearcher, logger *zap.Logger) *ChromaRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromaRetriever{
		embedder: embedder,
		searcher: searcher,
		logger:   logger,
	}
}

// Retrieve embeds queryText and returns the k most similar passages from
// the protocol's collection. k is clamped to [MinChunks, MaxChunks].
// Unknown collections fail with a NOT_FOUND error; store failures and
// empty result sets surface as RETRIEVAL_FAILED and are never swallowed.
func (r *ChromaRetriever) Retrieve(ctx context.Context, collectionID, queryText string, k int) (*Context, error) {
	if collectionID == "" {
		return nil, resilience.NewValidationError("collection ID cannot be empty", nil)
	}
	if queryText == "" {
		return nil, resilience.NewValidationError("retrieval query cannot be empty", nil)
	}
	k = ClampK(k)

	exists, err := r.searcher.HasCollection(ctx, collectionID)
	if err != nil {
		return nil, resilience.NewRetrievalError(
			fmt.Sprintf("vector store unavailable while checking collection %s", collectionID), err)
	}
	if !exists {
		return nil, resilience.NewNotFoundError(
			fmt.Sprintf("collection %s does not exist", collectionID), nil)
	}

	embedding, err := r.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, resilience.NewRetrievalError("failed to embed retrieval query", err)
	}

	results, err := r.searcher.Search(ctx, collectionID, embedding, k)
	if err != nil {
		if errors.Is(err, chroma.ErrCollectionNotFound) {
			return nil, resilience.NewNotFoundError(
				fmt.Sprintf("collection %s does not exist", collectionID), err)
		}
		return nil, resilience.NewRetrievalError(
			fmt.Sprintf("vector search failed for collection %s", collectionID), err)
	}
	if len(results) == 0 {
		// Generating without excerpts would force the model to invent
		// protocol facts, so an empty result set is a retrieval failure.
		return nil, resilience.NewRetrievalError(
			fmt.Sprintf("vector search returned no passages for collection %s", collectionID), nil)
	}

	passages := make([]Passage, 0, len(results))
	for _, result := range results {
		passages = append(passages, Passage{
			ChunkText:      result.Content,
			RelevanceScore: distanceToRelevance(result.Distance),
			SourceMetadata: result.Metadata,
		})
	}

	r.logger.Debug("Context retrieval completed",
		zap.String("collection_id", collectionID),
		zap.String("query", queryText),
		zap.Int("k", k),
		zap.Int("passages", len(passages)))

	return &Context{
		CollectionID: collectionID,
		Query:        queryText,
		Passages:     passages,
	}, nil
}

// ClampK bounds the passage count to [MinChunks, MaxChunks]
func ClampK(k int) int {
	if k < MinChunks {
		return MinChunks
	}
	if k > MaxChunks {
		return MaxChunks
	}
	return k
}

// distanceToRelevance converts a ChromaDB cosine distance to a relevance
// score in [0, 1]
func distanceToRelevance(distance float64) float64 {
	score := 1.0 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
