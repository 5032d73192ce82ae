package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/miofuku/ai-diary/internal/adapter"
	"github.com/miofuku/ai-diary/internal/detection"
	"github.com/miofuku/ai-diary/internal/diary"
	"github.com/miofuku/ai-diary/internal/topicconfig"
	"github.com/miofuku/ai-diary/internal/topicgraph"
	"go.uber.org/zap"
)

// Transcribe audio to text
func (s *Server) handleTranscribe(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing audio file"})
		return
	}
	defer file.Close()

	language := c.PostForm("language")

	text, err := s.llm.Transcribe(c.Request.Context(), file, header.Filename, language)
	if err != nil {
		s.logger.Error("Transcription failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transcription failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"text": text})
}

// Create a diary entry
func (s *Server) handleCreateEntry(c *gin.Context) {
	var req struct {
		Content    string `json:"content" binding:"required"`
		Type       string `json:"type"`
		TargetDate string `json:"targetDate"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Type == "" {
		req.Type = "text"
	}

	entry, err := s.entries.Create(c.Request.Context(), req.Content, req.Type, req.TargetDate)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.pipeline.Enqueue(entry.ID, entry.Content, 1)
	s.pipeline.MaybeTrigger(context.Background())

	c.JSON(http.StatusCreated, entry)
}

// List all diary entries
func (s *Server) handleListEntries(c *gin.Context) {
	c.JSON(http.StatusOK, s.entries.List())
}

// List entries for a calendar day
func (s *Server) handleEntriesByDate(c *gin.Context) {
	entries, err := s.entries.ListByDate(c.Param("date"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// Update a diary entry, directly or in append mode
func (s *Server) handleUpdateEntry(c *gin.Context) {
	var req diary.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := s.entries.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.pipeline.Enqueue(entry.ID, entry.Content, 1)
	s.pipeline.MaybeTrigger(context.Background())

	c.JSON(http.StatusOK, entry)
}

// Analyze recurring topic threads across the corpus
func (s *Server) handleTopicThreads(c *gin.Context) {
	entries := s.entries.List()
	threadEntries := make([]adapter.ThreadEntry, 0, len(entries))
	for _, e := range entries {
		threadEntries = append(threadEntries, adapter.ThreadEntry{
			ID:      e.ID,
			Date:    e.CreatedAt,
			Content: e.Content,
		})
	}

	analysis := s.llm.AnalyzeThreads(c.Request.Context(), threadEntries)
	c.JSON(http.StatusOK, analysis)
}

// Get the current topic graph
func (s *Server) handleGetGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.graph.Snapshot())
}

// Rebuild the topic graph from the entire corpus
func (s *Server) handleRebuildGraph(c *gin.Context) {
	entries := s.entries.List()
	rebuild := make([]detection.RebuildEntry, 0, len(entries))
	for _, e := range entries {
		rebuild = append(rebuild, detection.RebuildEntry{ID: e.ID, Content: e.Content})
	}

	if err := s.pipeline.Rebuild(c.Request.Context(), rebuild); err != nil {
		s.respondError(c, err)
		return
	}

	graph := s.graph.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status": "rebuilt",
		"nodes":  len(graph.Nodes),
		"edges":  len(graph.Edges),
	})
}

// Deduplicate the topic graph in place
func (s *Server) handleCleanupGraph(c *gin.Context) {
	stats, err := s.graph.DedupeAll(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// List topics after visibility, priority and display rules
func (s *Server) handleVisibleTopics(c *gin.Context) {
	c.JSON(http.StatusOK, s.topics.VisibleTopics())
}

// Get the topic configuration
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.topics.Config())
}

// Replace the topic configuration
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var cfg topicconfig.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.topics.Update(cfg); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.topics.Config())
}

// Add a user-defined topic
func (s *Server) handleAddCustomTopic(c *gin.Context) {
	var req struct {
		Name       string   `json:"name" binding:"required"`
		Category   string   `json:"category"`
		TopicType  string   `json:"topicType"`
		Importance int      `json:"importance"`
		Keywords   []string `json:"keywords"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entity, err := s.topics.AddCustomTopic(topicgraph.Entity{
		Name:       req.Name,
		Kind:       topicgraph.KindTopic,
		Category:   req.Category,
		TopicType:  req.TopicType,
		Importance: req.Importance,
		Keywords:   req.Keywords,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entity)
}

// Set a topic's user priority
func (s *Server) handleSetPriority(c *gin.Context) {
	var req struct {
		TopicID  string `json:"topicId" binding:"required"`
		Priority int    `json:"priority" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.topics.SetTopicPriority(req.TopicID, req.Priority); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Hide a topic from the visible list
func (s *Server) handleHideTopic(c *gin.Context) {
	var req struct {
		TopicID string `json:"topicId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.topics.HideTopic(req.TopicID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "hidden"})
}

// Show a previously hidden topic
func (s *Server) handleShowTopic(c *gin.Context) {
	var req struct {
		TopicID string `json:"topicId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.topics.ShowTopic(req.TopicID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "shown"})
}

// Run a detection pass now
func (s *Server) handleRunDetection(c *gin.Context) {
	processed, err := s.pipeline.Trigger(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed", "processed": processed})
}

// Get pipeline status
func (s *Server) handleDetectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipeline.Status())
}

// Clear the detection queue
func (s *Server) handleClearQueue(c *gin.Context) {
	s.pipeline.ClearQueue()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// List pending topic suggestions
func (s *Server) handleListSuggestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"suggestions": s.pipeline.Suggestions().Pending()})
}

// Approve a suggestion and upsert it into the graph
func (s *Server) handleApproveSuggestion(c *gin.Context) {
	sug, err := s.pipeline.ApproveSuggestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "approved", "suggestion": sug})
}

// Reject a suggestion permanently
func (s *Server) handleRejectSuggestion(c *gin.Context) {
	sug, err := s.pipeline.RejectSuggestion(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rejected", "suggestion": sug})
}
