package diary

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/miofuku/ai-diary/internal/storage"
	apperrors "github.com/miofuku/ai-diary/pkg/errors"
	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
)

// entriesDocument is the on-disk name of the diary corpus.
const entriesDocument = "entries.json"

// Entry is one diary entry. Type is "text" or "voice" depending on how the
// content arrived.
type Entry struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
}

// Enricher is the LLM capability the store uses to polish content. Both
// methods degrade gracefully: optimization returns the input on failure and
// integration falls back to concatenation, so entry writes always succeed.
type Enricher interface {
	OptimizeText(ctx context.Context, content string) string
	IntegrateContent(ctx context.Context, existing, newContent string) string
}

// UpdateRequest carries either a direct content replacement or an append-mode
// merge of new content into the existing entry.
type UpdateRequest struct {
	Content         string `json:"content"`
	AppendMode      bool   `json:"appendMode"`
	ExistingContent string `json:"existingContent"`
	NewContent      string `json:"newContent"`
}

// Store keeps the diary corpus in memory, persisted as a JSON document.
type Store struct {
	mu       sync.Mutex
	entries  []Entry
	docs     *storage.JSONStore
	enricher Enricher
	logger   *zap.Logger
}

// NewStore loads the persisted entries and returns a store over them.
func NewStore(docs *storage.JSONStore, enricher Enricher) (*Store, error) {
	entries := []Entry{}
	if err := docs.Load(entriesDocument, &entries); err != nil {
		return nil, err
	}
	return &Store{
		entries:  entries,
		docs:     docs,
		enricher: enricher,
		logger:   logger.Get(),
	}, nil
}

// Create optimizes and stores a new entry. When targetDate is set the entry
// is backdated to it; otherwise the current time is used. Optimization
// failure stores the original content.
func (s *Store) Create(ctx context.Context, content, entryType, targetDate string) (Entry, error) {
	if strings.TrimSpace(content) == "" {
		return Entry{}, apperrors.NewValidation("content", "must not be empty")
	}
	if entryType == "" {
		entryType = "text"
	}

	optimized := s.enricher.OptimizeText(ctx, content)

	createdAt := targetDate
	if createdAt == "" {
		createdAt = time.Now().Format(time.RFC3339)
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Content:   optimized,
		Type:      entryType,
		CreatedAt: createdAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if err := s.docs.Save(entriesDocument, s.entries); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return Entry{}, err
	}

	s.logger.Info("Diary entry created",
		zap.String("entry_id", entry.ID),
		zap.String("type", entry.Type),
		zap.Int("chars", len(entry.Content)),
	)
	return entry, nil
}

// List returns all entries.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, apperrors.NewEntryNotFound(id)
}

// ListByDate returns all entries created on the same calendar day as the
// given ISO date string.
func (s *Store) ListByDate(date string) ([]Entry, error) {
	target, err := parseISODate(date)
	if err != nil {
		return nil, apperrors.NewValidation("date", "invalid date format")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []Entry{}
	for _, e := range s.entries {
		created, err := parseISODate(e.CreatedAt)
		if err != nil {
			s.logger.Warn("Entry has unparseable date",
				zap.String("entry_id", e.ID),
				zap.String("created_at", e.CreatedAt),
			)
			continue
		}
		if created.Year() == target.Year() && created.Month() == target.Month() && created.Day() == target.Day() {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// Update replaces an entry's content, either directly or by integrating new
// content into the existing text (append mode). Integration failure falls
// back to concatenation inside the enricher, so the update itself always
// applies. Validation happens before any mutation.
func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (Entry, error) {
	var finalContent string
	switch {
	case req.AppendMode && req.ExistingContent != "" && req.NewContent != "":
		finalContent = s.enricher.IntegrateContent(ctx, req.ExistingContent, req.NewContent)
	case strings.TrimSpace(req.Content) != "":
		finalContent = req.Content
	default:
		return Entry{}, apperrors.NewValidation("update", "content or append-mode fields required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID != id {
			continue
		}
		previous := s.entries[i].Content
		s.entries[i].Content = finalContent
		if err := s.docs.Save(entriesDocument, s.entries); err != nil {
			s.entries[i].Content = previous
			return Entry{}, err
		}
		s.logger.Info("Diary entry updated",
			zap.String("entry_id", id),
			zap.Bool("append_mode", req.AppendMode),
		)
		return s.entries[i], nil
	}

	return Entry{}, apperrors.NewEntryNotFound(id)
}

// CountMentions returns how many entries contain the given name,
// case-insensitive. Used by suggestion thresholds and visibility filtering.
func (s *Store) CountMentions(name string) int {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.Content), needle) {
			count++
		}
	}
	return count
}

// parseISODate accepts bare dates and RFC3339 timestamps, tolerating a
// trailing Z.
func parseISODate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.RFC3339, strings.Replace(value, "Z", "+00:00", 1))
}
