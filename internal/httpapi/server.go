package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/miofuku/ai-diary/internal/adapter"
	"github.com/miofuku/ai-diary/internal/detection"
	"github.com/miofuku/ai-diary/internal/diary"
	"github.com/miofuku/ai-diary/internal/topicconfig"
	"github.com/miofuku/ai-diary/internal/topicgraph"
	apperrors "github.com/miofuku/ai-diary/pkg/errors"
	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
)

// Server wires the diary core behind the HTTP surface.
type Server struct {
	entries  *diary.Store
	graph    *topicgraph.Store
	pipeline *detection.Pipeline
	topics   *topicconfig.Manager
	llm      *adapter.LLMAdapter
	logger   *zap.Logger
}

// NewServer creates the HTTP server over the assembled components.
func NewServer(entries *diary.Store, graph *topicgraph.Store, pipeline *detection.Pipeline, topics *topicconfig.Manager, llm *adapter.LLMAdapter) *Server {
	return &Server{
		entries:  entries,
		graph:    graph,
		pipeline: pipeline,
		topics:   topics,
		llm:      llm,
		logger:   logger.Get(),
	}
}

// Router assembles the gin engine with middleware and all routes.
func (s *Server) Router(production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/transcribe", s.handleTranscribe)

	api := router.Group("/api")
	{
		api.POST("/entries", s.handleCreateEntry)
		api.GET("/entries", s.handleListEntries)
		api.GET("/entries/:date", s.handleEntriesByDate)
		api.PUT("/entries/:id", s.handleUpdateEntry)

		api.GET("/topic-threads", s.handleTopicThreads)

		api.GET("/topic-graph", s.handleGetGraph)
		api.POST("/topic-graph/rebuild", s.handleRebuildGraph)
		api.POST("/topic-graph/cleanup", s.handleCleanupGraph)

		api.GET("/topics", s.handleVisibleTopics)
		api.GET("/topic-config", s.handleGetConfig)
		api.PUT("/topic-config", s.handleUpdateConfig)
		api.POST("/topic-config/custom", s.handleAddCustomTopic)
		api.POST("/topic-config/priority", s.handleSetPriority)
		api.POST("/topic-config/hide", s.handleHideTopic)
		api.POST("/topic-config/show", s.handleShowTopic)

		api.POST("/detection/run", s.handleRunDetection)
		api.GET("/detection/status", s.handleDetectionStatus)
		api.POST("/detection/queue/clear", s.handleClearQueue)

		api.GET("/suggestions", s.handleListSuggestions)
		api.POST("/suggestions/:id/approve", s.handleApproveSuggestion)
		api.POST("/suggestions/:id/reject", s.handleRejectSuggestion)
	}

	return router
}

// respondError maps domain errors onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
