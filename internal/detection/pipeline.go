package detection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/miofuku/ai-diary/internal/topicconfig"
	"github.com/miofuku/ai-diary/internal/topicgraph"
	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ============================================================================
// Detection Pipeline / Scheduler
// ============================================================================

// QueueItem is one diary entry waiting for batched extraction. Items stay in
// the queue as history after processing until the queue is cleared.
type QueueItem struct {
	EntryID   string    `json:"entryId"`
	Content   string    `json:"content"`
	Priority  int       `json:"priority"`
	AddedAt   time.Time `json:"addedAt"`
	Processed bool      `json:"processed"`
}

// Status is a snapshot of the pipeline for the status endpoint.
type Status struct {
	QueueLength        int       `json:"queue_length"`
	Unprocessed        int       `json:"unprocessed"`
	Running            bool      `json:"running"`
	LastRun            time.Time `json:"last_run"`
	PendingSuggestions int       `json:"pending_suggestions"`
}

// Extractor is the LLM extraction capability. Implementations return the
// empty result shape on failure instead of an error.
type Extractor interface {
	Extract(ctx context.Context, text string) *topicgraph.Extraction
}

// Corpus supplies the raw diary text for mention counting. The diary store
// satisfies this.
type Corpus interface {
	CountMentions(name string) int
}

// SettingsProvider supplies the user's auto-detection settings. The topic
// configuration manager satisfies this.
type SettingsProvider interface {
	DetectionSettings() topicconfig.DetectionSettings
}

// Options tune the scheduler.
type Options struct {
	BatchSize int           // entries per extraction call, default 10
	MinQueued int           // unprocessed items needed to trigger, default 3
	Tick      time.Duration // scheduler wake interval, default 1m
}

// Pipeline queues diary entries and runs batched extraction when enough
// entries accumulate or enough time has passed. Entities that resolve
// against the existing graph are written directly; newly seen entities go
// through the review-gated suggestion queue. At most one run is in flight at
// a time; concurrent triggers coalesce into it.
type Pipeline struct {
	mu      sync.Mutex
	queue   []*QueueItem
	running bool
	lastRun time.Time

	batchSize int
	minQueued int
	tick      time.Duration

	extractor   Extractor
	graph       *topicgraph.Store
	corpus      Corpus
	settings    SettingsProvider
	suggestions *SuggestionStore

	group  singleflight.Group
	stopCh chan struct{}
	logger *zap.Logger
	now    func() time.Time
}

// NewPipeline assembles the pipeline. The last run time is restored from the
// suggestion document so restarts do not reset the schedule.
func NewPipeline(extractor Extractor, graph *topicgraph.Store, corpus Corpus, settings SettingsProvider, suggestions *SuggestionStore, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MinQueued <= 0 {
		opts.MinQueued = 3
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	return &Pipeline{
		batchSize:   opts.BatchSize,
		minQueued:   opts.MinQueued,
		tick:        opts.Tick,
		extractor:   extractor,
		graph:       graph,
		corpus:      corpus,
		settings:    settings,
		suggestions: suggestions,
		lastRun:     suggestions.LastRun(),
		stopCh:      make(chan struct{}),
		logger:      logger.Get(),
		now:         time.Now,
	}
}

// Enqueue adds a diary entry to the detection queue. Cheap and in-memory;
// safe to call from request handlers.
func (p *Pipeline) Enqueue(entryID, content string, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, &QueueItem{
		EntryID:  entryID,
		Content:  content,
		Priority: priority,
		AddedAt:  p.now(),
	})
	p.logger.Debug("Entry queued for detection",
		zap.String("entry_id", entryID),
		zap.Int("queue_length", len(p.queue)),
	)
}

// Start launches the background scheduler. It wakes on a fixed tick, checks
// the trigger conditions, and hands actual runs off to a worker goroutine so
// the loop is never blocked by slow LLM calls.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if p.shouldRunDetection() {
					go func() {
						if _, err := p.Trigger(ctx); err != nil {
							p.logger.Error("Scheduled detection run failed", zap.Error(err))
						}
					}()
				}
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	p.logger.Info("Detection scheduler started", zap.Duration("tick", p.tick))
}

// Stop terminates the background scheduler. An in-flight run finishes on its
// own.
func (p *Pipeline) Stop() {
	close(p.stopCh)
}

// Trigger requests a detection run immediately, bypassing the schedule but
// not the single-run invariant: concurrent triggers coalesce into one
// in-flight run and share its outcome.
func (p *Pipeline) Trigger(ctx context.Context) (int, error) {
	processed, err, _ := p.group.Do("detection", func() (any, error) {
		return p.run(ctx)
	})
	if err != nil {
		return 0, err
	}
	return processed.(int), nil
}

// MaybeTrigger starts a background detection run when the trigger conditions
// are currently met, and returns immediately either way. Entry handlers call
// this after enqueueing so the HTTP response is never held up by extraction
// latency.
func (p *Pipeline) MaybeTrigger(ctx context.Context) {
	if !p.shouldRunDetection() {
		return
	}
	go func() {
		if _, err := p.Trigger(ctx); err != nil {
			p.logger.Error("Background detection run failed", zap.Error(err))
		}
	}()
}

// Status reports the pipeline snapshot.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	unprocessed := 0
	for _, item := range p.queue {
		if !item.Processed {
			unprocessed++
		}
	}
	return Status{
		QueueLength:        len(p.queue),
		Unprocessed:        unprocessed,
		Running:            p.running,
		LastRun:            p.lastRun,
		PendingSuggestions: len(p.suggestions.Pending()),
	}
}

// ClearQueue drops all queue items, processed history included.
func (p *Pipeline) ClearQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	p.logger.Info("Detection queue cleared")
}

// shouldRunDetection checks the trigger conditions: auto-detection enabled,
// enough unprocessed items, and enough wall-clock time since the last run
// for the configured frequency (a missing prior run always satisfies the
// time condition).
func (p *Pipeline) shouldRunDetection() bool {
	settings := p.settings.DetectionSettings()
	if !settings.Enabled {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	unprocessed := 0
	for _, item := range p.queue {
		if !item.Processed {
			unprocessed++
		}
	}
	if unprocessed < p.minQueued {
		return false
	}

	if p.lastRun.IsZero() {
		return true
	}
	return p.now().Sub(p.lastRun) >= frequencyInterval(settings.Frequency)
}

func frequencyInterval(frequency string) time.Duration {
	switch frequency {
	case "weekly":
		return 7 * 24 * time.Hour
	case "monthly":
		return 30 * 24 * time.Hour
	default: // daily
		return 24 * time.Hour
	}
}

// run executes one detection pass over a snapshot of the unprocessed queue.
// Items added after the snapshot is taken are left for the next run. The
// running flag is checked and set under the same lock as the snapshot to
// close the race between "check idle" and "set running".
func (p *Pipeline) run(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Info("Detection run requested while already running, skipping")
		return 0, nil
	}
	p.running = true
	var pending []*QueueItem
	for _, item := range p.queue {
		if !item.Processed {
			pending = append(pending, item)
		}
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if len(pending) == 0 {
		return 0, nil
	}

	p.logger.Info("Detection run started",
		zap.Int("items", len(pending)),
		zap.Int("batch_size", p.batchSize),
	)

	settings := p.settings.DetectionSettings()
	processed := 0
	for start := 0; start < len(pending); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		p.runBatch(ctx, batch, settings)
		processed += len(batch)
	}

	finished := p.now()
	p.mu.Lock()
	p.lastRun = finished
	p.mu.Unlock()
	if err := p.suggestions.SetLastRun(finished); err != nil {
		p.logger.Error("Failed to persist last detection run time", zap.Error(err))
	}

	p.logger.Info("Detection run finished", zap.Int("processed", processed))
	return processed, nil
}

// runBatch extracts one batch and folds the results into the graph and the
// suggestion queue. Items are marked processed whether or not extraction
// succeeded - an at-most-once policy that keeps a poisoned batch from being
// retried forever. A failed batch never aborts the run; the next batch
// proceeds.
func (p *Pipeline) runBatch(ctx context.Context, batch []*QueueItem, settings topicconfig.DetectionSettings) {
	var parts []string
	var entryIDs []string
	for _, item := range batch {
		parts = append(parts, fmt.Sprintf("[Entry %s]\n%s", item.EntryID, item.Content))
		entryIDs = append(entryIDs, item.EntryID)
	}
	text := strings.Join(parts, "\n\n")

	result := p.extractor.Extract(ctx, text)

	p.mu.Lock()
	for _, item := range batch {
		item.Processed = true
	}
	p.mu.Unlock()

	if result.IsEmpty() {
		p.logger.Warn("Batch extraction returned no results",
			zap.Int("batch_entries", len(batch)),
		)
		return
	}

	var direct []topicgraph.Entity
	for _, entity := range result.Entities() {
		if _, ok := p.graph.Resolve(entity); ok {
			// known entity: merge straight into the graph
			direct = append(direct, entity)
			continue
		}
		p.maybeSuggest(entity, entryIDs, settings)
	}

	if err := p.graph.UpsertBatch(ctx, direct, result.Relations); err != nil {
		p.logger.Error("Failed to upsert extraction batch", zap.Error(err))
	}
}

// maybeSuggest creates a review-gated suggestion for a newly seen entity
// once it clears the mention threshold. Categories outside the enabled set
// are skipped.
func (p *Pipeline) maybeSuggest(entity topicgraph.Entity, entryIDs []string, settings topicconfig.DetectionSettings) {
	if !categoryEnabled(entity, settings.EnabledCategories) {
		return
	}
	if p.suggestions.Known(entity.Name) {
		return
	}

	mentions := p.corpus.CountMentions(entity.Name)
	minMentions := settings.MinMentions
	if minMentions <= 0 {
		minMentions = 3
	}
	if mentions < minMentions {
		p.logger.Debug("Entity below mention threshold, skipping suggestion",
			zap.String("name", entity.Name),
			zap.Int("mentions", mentions),
			zap.Int("min_mentions", minMentions),
		)
		return
	}

	sug := Suggestion{
		ID:             uuid.NewString(),
		Name:           entity.Name,
		Kind:           entity.Kind,
		Category:       entity.Category,
		Confidence:     suggestionConfidence(mentions, entity.Importance, len(entity.Keywords) > 0),
		MentionCount:   mentions,
		FirstDetected:  p.now().Format(time.RFC3339),
		SampleEntryIDs: entryIDs,
		Keywords:       entity.Keywords,
		Role:           entity.Role,
		Importance:     entity.Importance,
	}
	if err := p.suggestions.Add(sug); err != nil {
		p.logger.Error("Failed to store topic suggestion", zap.Error(err))
	}
}

// suggestionConfidence scores a suggestion from its evidence: a 0.5 base,
// up to 0.3 for mention volume, a nudge for above-average importance and a
// small bonus when keywords were extracted. Clamped to 1.0.
func suggestionConfidence(mentions, importance int, hasKeywords bool) float64 {
	confidence := 0.5
	mentionBoost := float64(mentions) * 0.1
	if mentionBoost > 0.3 {
		mentionBoost = 0.3
	}
	confidence += mentionBoost
	confidence += float64(importance-3) * 0.05
	if hasKeywords {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

func categoryEnabled(entity topicgraph.Entity, enabled []string) bool {
	if len(enabled) == 0 {
		return true
	}
	category := entity.Category
	if entity.Kind == topicgraph.KindPerson {
		category = topicgraph.CategoryPeople
	}
	for _, c := range enabled {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// ApproveSuggestion accepts a pending suggestion: it leaves the pending
// queue and the entity is upserted into the graph, making it visible and
// graph-eligible.
func (p *Pipeline) ApproveSuggestion(ctx context.Context, id string) (Suggestion, error) {
	sug, err := p.suggestions.Approve(id)
	if err != nil {
		return Suggestion{}, err
	}

	entity := topicgraph.Entity{
		Name:       sug.Name,
		Kind:       sug.Kind,
		Category:   sug.Category,
		Importance: sug.Importance,
		Keywords:   sug.Keywords,
		Role:       sug.Role,
		Context:    fmt.Sprintf("approved suggestion (%d mentions)", sug.MentionCount),
	}
	if entity.Importance < 1 {
		entity.Importance = 3
	}
	if err := p.graph.UpsertBatch(ctx, []topicgraph.Entity{entity}, nil); err != nil {
		return Suggestion{}, err
	}
	return sug, nil
}

// RejectSuggestion declines a pending suggestion. The name will not be
// suggested again.
func (p *Pipeline) RejectSuggestion(id string) (Suggestion, error) {
	return p.suggestions.Reject(id)
}

// Suggestions exposes the underlying suggestion store.
func (p *Pipeline) Suggestions() *SuggestionStore {
	return p.suggestions
}
