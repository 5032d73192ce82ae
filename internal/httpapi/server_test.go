package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/miofuku/ai-diary/internal/adapter"
	"github.com/miofuku/ai-diary/internal/detection"
	"github.com/miofuku/ai-diary/internal/diary"
	"github.com/miofuku/ai-diary/internal/storage"
	"github.com/miofuku/ai-diary/internal/topicconfig"
	"github.com/miofuku/ai-diary/internal/topicgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter assembles the full server over temp-dir storage, with the
// LLM adapter pointed at a stub endpoint that answers every chat completion
// with a fixed message.
func newTestRouter(t *testing.T) (*gin.Engine, *topicgraph.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"polished entry"}}]}`))
	}))
	t.Cleanup(stub.Close)

	docs, err := storage.New(t.TempDir())
	require.NoError(t, err)

	graph, err := topicgraph.NewStore(context.Background(), topicgraph.NewFilePersistence(docs))
	require.NoError(t, err)

	llm := adapter.NewLLMAdapter(stub.URL, "", "test-model", "whisper-1", time.Second)

	entries, err := diary.NewStore(docs, llm)
	require.NoError(t, err)

	topics, err := topicconfig.NewManager(docs, graph, entries)
	require.NoError(t, err)

	suggestions, err := detection.NewSuggestionStore(docs)
	require.NoError(t, err)

	pipeline := detection.NewPipeline(llm, graph, entries, topics, suggestions, detection.Options{
		BatchSize: 10,
		MinQueued: 100, // keep background triggers out of handler tests
		Tick:      time.Hour,
	})

	server := NewServer(entries, graph, pipeline, topics, llm)
	return server.Router(false), graph
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "ok", response["status"])
}

func TestCreateEntry(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/entries", gin.H{
		"content":    "today I shipped the diary backend",
		"targetDate": "2025-04-01T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var entry diary.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "text", entry.Type)
	assert.Equal(t, "2025-04-01T10:00:00Z", entry.CreatedAt)
	// content passes through the optimization step before storage
	assert.Equal(t, "polished entry", entry.Content)
}

func TestCreateEntry_MissingContent(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/entries", gin.H{"type": "text"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEntries(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, "POST", "/api/entries", gin.H{"content": "first"})
	doJSON(t, router, "POST", "/api/entries", gin.H{"content": "second"})

	w := doJSON(t, router, "GET", "/api/entries", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []diary.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)
}

func TestEntriesByDate(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, "POST", "/api/entries", gin.H{"content": "dated", "targetDate": "2025-04-01T10:00:00Z"})
	doJSON(t, router, "POST", "/api/entries", gin.H{"content": "other day", "targetDate": "2025-04-02T10:00:00Z"})

	w := doJSON(t, router, "GET", "/api/entries/2025-04-01", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []diary.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	w = doJSON(t, router, "GET", "/api/entries/not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateEntry(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/entries", gin.H{"content": "original"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created diary.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, "PUT", "/api/entries/"+created.ID, gin.H{"content": "replaced"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated diary.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "replaced", updated.Content)
}

func TestUpdateEntry_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "PUT", "/api/entries/missing", gin.H{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetGraph(t *testing.T) {
	router, graph := newTestRouter(t)

	err := graph.UpsertBatch(context.Background(), []topicgraph.Entity{
		{ID: "topic_golang", Name: "Golang", Kind: topicgraph.KindTopic, Importance: 4},
	}, nil)
	require.NoError(t, err)

	w := doJSON(t, router, "GET", "/api/topic-graph", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var g topicgraph.Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Len(t, g.Nodes, 1)
}

func TestCleanupGraph(t *testing.T) {
	router, graph := newTestRouter(t)

	err := graph.UpsertBatch(context.Background(), []topicgraph.Entity{
		{ID: "topic_a", Name: "alpha topic", Kind: topicgraph.KindTopic},
	}, nil)
	require.NoError(t, err)

	w := doJSON(t, router, "POST", "/api/topic-graph/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats topicgraph.CleanupStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.NodesBefore)
	assert.Equal(t, 1, stats.NodesAfter)
}

func TestTopicConfigRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/topic-config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cfg topicconfig.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "daily", cfg.AutoDetection.Frequency)

	cfg.AutoDetection.Frequency = "weekly"
	w = doJSON(t, router, "PUT", "/api/topic-config", cfg)
	require.Equal(t, http.StatusOK, w.Code)

	var updated topicconfig.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "weekly", updated.AutoDetection.Frequency)
}

func TestTopicConfig_InvalidFrequency(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/topic-config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg topicconfig.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))

	cfg.AutoDetection.Frequency = "hourly"
	w = doJSON(t, router, "PUT", "/api/topic-config", cfg)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddCustomTopic(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/topic-config/custom", gin.H{"name": "Side Project"})
	require.Equal(t, http.StatusCreated, w.Code)

	var entity topicgraph.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entity))
	assert.Equal(t, "topic_side_project", entity.ID)

	// custom topics appear in the visible list immediately
	w = doJSON(t, router, "GET", "/api/topics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var topics []topicconfig.VisibleTopic
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &topics))
	assert.Len(t, topics, 1)
}

func TestAddCustomTopic_MissingName(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/topic-config/custom", gin.H{"category": "projects"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetPriority_UnknownTopic(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/topic-config/priority", gin.H{
		"topicId":  "topic_missing",
		"priority": 4,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHideAndShowTopic(t *testing.T) {
	router, graph := newTestRouter(t)

	err := graph.UpsertBatch(context.Background(), []topicgraph.Entity{
		{ID: "topic_golang", Name: "Golang", Kind: topicgraph.KindTopic, Importance: 3},
	}, nil)
	require.NoError(t, err)

	w := doJSON(t, router, "POST", "/api/topic-config/hide", gin.H{"topicId": "topic_golang"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "POST", "/api/topic-config/show", gin.H{"topicId": "topic_golang"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDetectionStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/detection/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status detection.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Running)
	assert.Equal(t, 0, status.QueueLength)
}

func TestClearQueue(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, "POST", "/api/entries", gin.H{"content": "queued entry"})

	w := doJSON(t, router, "POST", "/api/detection/queue/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/detection/status", nil)
	var status detection.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 0, status.QueueLength)
}

func TestListSuggestions_Empty(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/suggestions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Suggestions []detection.Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Empty(t, response.Suggestions)
}

func TestApproveSuggestion_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/suggestions/missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectSuggestion_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/suggestions/missing/reject", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTranscribe_MissingFile(t *testing.T) {
	router, _ := newTestRouter(t)

	req, _ := http.NewRequest("POST", "/transcribe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
