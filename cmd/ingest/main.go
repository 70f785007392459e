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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/consent-docgen/internal/chroma"
	"github.com/your-org/consent-docgen/internal/chunker"
	"github.com/your-org/consent-docgen/internal/config"
	"github.com/your-org/consent-docgen/internal/metadata"
	internalopenai "github.com/your-org/consent-docgen/internal/openai"
)

// protocolFile is the JSON layout produced by the upstream extraction and
// chunking pipeline. Either chunks or raw text must be present; raw text
// is chunked locally.
type protocolFile struct {
	CollectionID string `json:"collection_id"`
	Title        string `json:"title"`
	Sponsor      string `json:"sponsor"`
	Indication   string `json:"indication"`
	Text         string `json:"text"`
	Chunks       []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"chunks"`
}

func main() {
	var configPath string
	var chunkSize int

	rootCmd := &cobra.Command{
		Use:   "ingest <protocol.json>",
		Short: "Load a clinical protocol into the vector store",
		Long: `Reads a protocol JSON file produced by the extraction pipeline,
embeds its chunks, stores them in a per-protocol ChromaDB collection, and
registers the protocol metadata. Files carrying raw text instead of
pre-chunked spans are chunked locally.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, args[0], chunkSize)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", chunker.DefaultChunkSize, "Target chunk size in characters for raw-text protocols")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runIngest(configPath, protocolPath string, chunkSize int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(protocolPath)
	if err != nil {
		return fmt.Errorf("failed to read protocol file: %w", err)
	}

	var protocol protocolFile
	if err := json.Unmarshal(data, &protocol); err != nil {
		return fmt.Errorf("failed to parse protocol file: %w", err)
	}
	if protocol.CollectionID == "" {
		return fmt.Errorf("protocol file missing collection_id")
	}
	if len(protocol.Chunks) == 0 && protocol.Text != "" {
		for _, span := range chunker.Split(protocol.Text, chunkSize) {
			protocol.Chunks = append(protocol.Chunks, struct {
				ID   string `json:"id"`
				Text string `json:"text"`
			}{Text: span})
		}
		logger.Info("Chunked raw protocol text",
			zap.Int("chunk_size", chunkSize),
			zap.Int("chunks", len(protocol.Chunks)))
	}
	if len(protocol.Chunks) == 0 {
		return fmt.Errorf("protocol file contains no chunks or text")
	}

	logger.Info("Starting protocol ingestion",
		zap.String("collection_id", protocol.CollectionID),
		zap.String("title", protocol.Title),
		zap.Int("chunks", len(protocol.Chunks)),
		zap.String("chroma_url", cfg.Chroma.URL))

	openaiClient, err := internalopenai.NewClient(cfg.OpenAI.APIKey, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	chromaClient := chroma.NewClient(cfg.Chroma.URL, logger)

	metadataStore, err := metadata.NewStore(cfg.Metadata.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open protocol metadata store: %w", err)
	}
	defer func() { _ = metadataStore.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	texts := make([]string, len(protocol.Chunks))
	documents := make([]chroma.Document, len(protocol.Chunks))
	for i, chunk := range protocol.Chunks {
		id := chunk.ID
		if id == "" {
			id = fmt.Sprintf("%s_chunk_%04d", protocol.CollectionID, i)
		}
		texts[i] = chunk.Text
		documents[i] = chroma.Document{
			ID:      id,
			Content: chunk.Text,
			Metadata: map[string]string{
				"chunk_id":      id,
				"collection_id": protocol.CollectionID,
			},
		}
	}

	embeddings, err := openaiClient.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed protocol chunks: %w", err)
	}

	if err := chromaClient.EnsureCollection(ctx, protocol.CollectionID); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if err := chromaClient.AddDocuments(ctx, protocol.CollectionID, documents, embeddings); err != nil {
		return fmt.Errorf("failed to store protocol chunks: %w", err)
	}

	if err := metadataStore.AddProtocol(metadata.Protocol{
		CollectionID: protocol.CollectionID,
		Title:        protocol.Title,
		Sponsor:      protocol.Sponsor,
		Indication:   protocol.Indication,
		ChunkCount:   len(protocol.Chunks),
	}); err != nil {
		return fmt.Errorf("failed to register protocol: %w", err)
	}

	logger.Info("Protocol ingestion completed",
		zap.String("collection_id", protocol.CollectionID),
		zap.Int("chunks", len(protocol.Chunks)))

	fmt.Printf("Ingested %d chunks into collection %s\n", len(protocol.Chunks), protocol.CollectionID)
	return nil
}
