package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miofuku/ai-diary/internal/adapter"
	"github.com/miofuku/ai-diary/internal/detection"
	"github.com/miofuku/ai-diary/internal/diary"
	"github.com/miofuku/ai-diary/internal/httpapi"
	"github.com/miofuku/ai-diary/internal/storage"
	"github.com/miofuku/ai-diary/internal/topicconfig"
	"github.com/miofuku/ai-diary/internal/topicgraph"
	"github.com/miofuku/ai-diary/pkg/config"
	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Load configuration first so the logger knows the environment
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting diary server...")

	ctx := context.Background()

	// Document storage
	docs, err := storage.New(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize document store", zap.Error(err))
	}

	// Graph persistence backend
	var persist topicgraph.Persistence
	switch cfg.GraphBackend {
	case "neo4j":
		neoPersist, err := topicgraph.NewNeo4jPersistence(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			log.Fatal("Failed to connect to Neo4j", zap.Error(err))
		}
		defer neoPersist.Close(ctx)
		persist = neoPersist
	default:
		persist = topicgraph.NewFilePersistence(docs)
	}

	graph, err := topicgraph.NewStore(ctx, persist)
	if err != nil {
		log.Fatal("Failed to load topic graph", zap.Error(err))
	}

	// Initialize dependencies
	llmAdapter := adapter.NewLLMAdapter(
		cfg.OpenAIBaseURL,
		cfg.OpenAIAPIKey,
		cfg.ModelID,
		cfg.TranscribeModelID,
		time.Duration(cfg.LLMTimeoutSeconds)*time.Second,
	)

	entries, err := diary.NewStore(docs, llmAdapter)
	if err != nil {
		log.Fatal("Failed to load diary entries", zap.Error(err))
	}

	topics, err := topicconfig.NewManager(docs, graph, entries)
	if err != nil {
		log.Fatal("Failed to load topic configuration", zap.Error(err))
	}

	suggestions, err := detection.NewSuggestionStore(docs)
	if err != nil {
		log.Fatal("Failed to load topic suggestions", zap.Error(err))
	}

	pipeline := detection.NewPipeline(llmAdapter, graph, entries, topics, suggestions, detection.Options{
		BatchSize: cfg.DetectionBatchSize,
		MinQueued: cfg.DetectionMinQueued,
		Tick:      time.Duration(cfg.DetectionTickSeconds) * time.Second,
	})
	pipeline.Start(ctx)
	defer pipeline.Stop()

	// Setup router
	server := httpapi.NewServer(entries, graph, pipeline, topics, llmAdapter)
	router := server.Router(cfg.IsProduction())

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
