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
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/consent-docgen/internal/chroma"
	"github.com/your-org/consent-docgen/internal/config"
	"github.com/your-org/consent-docgen/internal/generation"
	"github.com/your-org/consent-docgen/internal/health"
	"github.com/your-org/consent-docgen/internal/llm"
	"github.com/your-org/consent-docgen/internal/metadata"
	internalopenai "github.com/your-org/consent-docgen/internal/openai"
	"github.com/your-org/consent-docgen/internal/resilience"
	"github.com/your-org/consent-docgen/internal/retrieval"
	"github.com/your-org/consent-docgen/internal/sections"
	"github.com/your-org/consent-docgen/internal/streaming"
)

// GenerateRequest starts a full-document generation session
type GenerateRequest struct {
	CollectionID string `json:"collection_id" binding:"required"`
}

// RegenerateRequest re-runs one section
type RegenerateRequest struct {
	CollectionID string `json:"collection_id" binding:"required"`
	Feedback     string `json:"feedback"`
}

// IngestRequest registers a protocol with pre-chunked text. Extraction
// and chunking happen upstream of this service.
type IngestRequest struct {
	CollectionID string        `json:"collection_id" binding:"required"`
	Title        string        `json:"title"`
	Sponsor      string        `json:"sponsor"`
	Indication   string        `json:"indication"`
	Chunks       []IngestChunk `json:"chunks" binding:"required"`
}

// IngestChunk is one pre-chunked span of protocol text
type IngestChunk struct {
	ID   string `json:"id"`
	Text string `json:"text" binding:"required"`
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	maskedConfig := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", "server"),
		zap.String("environment", os.Getenv("ENVIRONMENT")),
		zap.String("primary_model", maskedConfig.Generation.PrimaryModel),
		zap.String("fallback_model", maskedConfig.Generation.FallbackModel),
		zap.String("fallback_policy", maskedConfig.Generation.FallbackPolicy),
		zap.String("feedback_strategy", maskedConfig.Generation.FeedbackStrategy),
		zap.String("chroma_url", maskedConfig.Chroma.URL),
		zap.String("openai_api_key", maskedConfig.OpenAI.APIKey),
	)

	openaiClient, err := internalopenai.NewClient(cfg.OpenAI.APIKey, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OpenAI client", zap.Error(err))
	}

	chromaClient := chroma.NewClient(cfg.Chroma.URL, logger)

	metadataStore, err := metadata.NewStore(cfg.Metadata.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize protocol metadata store", zap.Error(err))
	}
	defer func() {
		if err := metadataStore.Close(); err != nil {
			logger.Warn("Failed to close metadata store", zap.Error(err))
		}
	}()

	registry := sections.NewRegistry()
	retriever := retrieval.NewChromaRetriever(openaiClient, chromaClient, logger)

	provider := llm.NewOpenAIProvider(openaiClient, cfg.Generation.MaxTokens, float32(cfg.Generation.Temperature))
	gateway := llm.NewGateway(provider, llm.GatewayConfig{
		PrimaryModel:  cfg.Generation.PrimaryModel,
		FallbackModel: cfg.Generation.FallbackModel,
		Policy:        llm.FallbackPolicy(cfg.Generation.FallbackPolicy),
	}, logger)

	genConfig := generation.Config{
		ChunksPerSection: cfg.Retrieval.ChunksPerSection,
		SinkBuffer:       cfg.Generation.SinkBuffer,
		SinkSendTimeout:  cfg.Generation.SinkSendTimeout,
		PromptConfig: sections.PromptConfig{
			MaxTokens:        cfg.Generation.MaxTokens * 3,
			MaxPassages:      cfg.Retrieval.MaxChunks,
			FeedbackStrategy: sections.FeedbackStrategy(cfg.Generation.FeedbackStrategy),
		},
	}

	orchestrator := generation.NewOrchestrator(registry, retriever, gateway, genConfig, logger)
	regenerator := generation.NewRegenerationService(registry, retriever, gateway, genConfig, logger)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	healthManager := health.NewManager("consent-docgen", "1.0.0", logger)
	healthManager.AddCheckerFunc("chromadb", chromaClient.HealthCheck)
	healthManager.AddCheckerFunc("metadata", func(ctx context.Context) error {
		_, err := metadataStore.ListProtocols()
		return err
	})

	router.GET("/health", func(c *gin.Context) {
		report := healthManager.Check(c.Request.Context())

		status := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":       report.Status,
			"service":      report.Service,
			"version":      report.Version,
			"environment":  os.Getenv("ENVIRONMENT"),
			"dependencies": report.Dependencies,
			"sections":     registry.Names(),
			"config": gin.H{
				"primary_model":   cfg.Generation.PrimaryModel,
				"fallback_model":  cfg.Generation.FallbackModel,
				"fallback_policy": cfg.Generation.FallbackPolicy,
			},
		})
	})

	router.POST("/api/protocols", func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, resilience.NewValidationError("invalid request format", err), logger)
			return
		}
		if err := validateIngestRequest(req); err != nil {
			writeError(c, err, logger)
			return
		}

		ctx := c.Request.Context()

		texts := make([]string, len(req.Chunks))
		documents := make([]chroma.Document, len(req.Chunks))
		for i, chunk := range req.Chunks {
			id := chunk.ID
			if id == "" {
				id = fmt.Sprintf("%s_chunk_%04d", req.CollectionID, i)
			}
			texts[i] = chunk.Text
			documents[i] = chroma.Document{
				ID:      id,
				Content: chunk.Text,
				Metadata: map[string]string{
					"chunk_id":      id,
					"collection_id": req.CollectionID,
				},
			}
		}

		embeddings, err := openaiClient.EmbedTexts(ctx, texts)
		if err != nil {
			writeError(c, resilience.NewRetrievalError("failed to embed protocol chunks", err), logger)
			return
		}

		if err := chromaClient.EnsureCollection(ctx, req.CollectionID); err != nil {
			writeError(c, resilience.NewRetrievalError("failed to create collection", err), logger)
			return
		}
		if err := chromaClient.AddDocuments(ctx, req.CollectionID, documents, embeddings); err != nil {
			writeError(c, resilience.NewRetrievalError("failed to store protocol chunks", err), logger)
			return
		}

		if err := metadataStore.AddProtocol(metadata.Protocol{
			CollectionID: req.CollectionID,
			Title:        req.Title,
			Sponsor:      req.Sponsor,
			Indication:   req.Indication,
			ChunkCount:   len(req.Chunks),
		}); err != nil {
			writeError(c, resilience.NewInternalError("failed to register protocol", err), logger)
			return
		}

		logger.Info("Protocol ingested",
			zap.String("collection_id", req.CollectionID),
			zap.Int("chunks", len(req.Chunks)))

		c.JSON(http.StatusCreated, gin.H{
			"collection_id": req.CollectionID,
			"chunk_count":   len(req.Chunks),
		})
	})

	router.GET("/api/protocols", func(c *gin.Context) {
		protocols, err := metadataStore.ListProtocols()
		if err != nil {
			writeError(c, resilience.NewInternalError("failed to list protocols", err), logger)
			return
		}
		c.JSON(http.StatusOK, gin.H{"protocols": protocols})
	})

	router.DELETE("/api/protocols/:collection_id", func(c *gin.Context) {
		collectionID := c.Param("collection_id")

		if err := metadataStore.DeleteProtocol(collectionID); err != nil {
			if errors.Is(err, metadata.ErrProtocolNotFound) {
				writeError(c, resilience.NewNotFoundError(
					fmt.Sprintf("no protocol registered for collection %s", collectionID), err), logger)
				return
			}
			writeError(c, resilience.NewInternalError("failed to delete protocol", err), logger)
			return
		}

		// The metadata row is gone either way; a stale vector collection
		// only wastes space, so its deletion is best effort.
		if err := chromaClient.DeleteCollection(c.Request.Context(), collectionID); err != nil && !errors.Is(err, chroma.ErrCollectionNotFound) {
			logger.Warn("Failed to delete vector collection",
				zap.String("collection_id", collectionID),
				zap.Error(err))
		}

		logger.Info("Protocol deleted", zap.String("collection_id", collectionID))
		c.JSON(http.StatusOK, gin.H{"collection_id": collectionID, "deleted": true})
	})

	router.POST("/api/generate", func(c *gin.Context) {
		var req GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, resilience.NewValidationError("invalid request format", err), logger)
			return
		}

		protocol, err := metadataStore.GetProtocol(req.CollectionID)
		if err != nil {
			if errors.Is(err, metadata.ErrProtocolNotFound) {
				writeError(c, resilience.NewNotFoundError(
					fmt.Sprintf("no protocol registered for collection %s", req.CollectionID), err), logger)
				return
			}
			writeError(c, resilience.NewInternalError("failed to look up protocol", err), logger)
			return
		}

		session := generation.NewSession(req.CollectionID, registry)
		events := orchestrator.Generate(c.Request.Context(), session, protocol.PromptMetadata())

		logger.Info("Generation session streaming",
			zap.String("session_id", session.ID),
			zap.String("collection_id", req.CollectionID))

		streamSSE(c, events)
	})

	router.POST("/api/sections/:name/regenerate", func(c *gin.Context) {
		sectionName := c.Param("name")

		var req RegenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, resilience.NewValidationError("invalid request format", err), logger)
			return
		}

		protocol, err := metadataStore.GetProtocol(req.CollectionID)
		if err != nil {
			if errors.Is(err, metadata.ErrProtocolNotFound) {
				writeError(c, resilience.NewNotFoundError(
					fmt.Sprintf("no protocol registered for collection %s", req.CollectionID), err), logger)
				return
			}
			writeError(c, resilience.NewInternalError("failed to look up protocol", err), logger)
			return
		}

		result, err := regenerator.Regenerate(c.Request.Context(), req.CollectionID, sectionName, req.Feedback, protocol.PromptMetadata())
		if err != nil {
			writeError(c, err, logger)
			return
		}

		streamSSE(c, result.Events)
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Starting consent document generation server", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// streamSSE relays the event channel to the client as Server-Sent Events.
// A session-scoped error event arriving before any section starts is the
// abort signal for the whole request; everything else streams through.
func streamSSE(c *gin.Context, events <-chan streaming.Event) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		_, _ = io.WriteString(w, event.ToSSEMessage())
		return true
	})
}

// writeError maps pipeline errors to HTTP responses
func writeError(c *gin.Context, err error, logger *zap.Logger) {
	var serviceErr *resilience.ServiceError
	if !resilience.AsServiceError(err, &serviceErr) {
		serviceErr = resilience.NewInternalError("An unexpected error occurred", err)
	}

	logger.Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.String("error_code", string(serviceErr.Code)),
		zap.Error(err))

	c.JSON(serviceErr.StatusCode, serviceErr.ToErrorResponse())
}

// validateIngestRequest validates the ingest payload beyond binding tags
func validateIngestRequest(req IngestRequest) error {
	if strings.TrimSpace(req.CollectionID) == "" {
		return resilience.NewValidationError("collection_id cannot be blank", nil)
	}
	if strings.ContainsAny(req.CollectionID, " /\\") {
		return resilience.NewValidationError("collection_id must not contain spaces or slashes", nil)
	}
	if len(req.Chunks) == 0 {
		return resilience.NewValidationError("at least one chunk is required", nil)
	}
	for i, chunk := range req.Chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			return resilience.NewValidationError(fmt.Sprintf("chunk %d text cannot be empty", i), nil)
		}
	}
	return nil
}

// initializeLogger creates a logger based on configuration settings
func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.Logging.Output != "" && cfg.Logging.Output != "stdout" {
		zapConfig.OutputPaths = []string{cfg.Logging.Output}
	}

	return zapConfig.Build()
}
