package detection

import (
	"strings"
	"sync"
	"time"

	"github.com/miofuku/ai-diary/internal/storage"
	"github.com/miofuku/ai-diary/internal/topicgraph"
	apperrors "github.com/miofuku/ai-diary/pkg/errors"
	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
)

// suggestionsDocument is the on-disk name of the suggestion queue.
const suggestionsDocument = "topic_suggestions.json"

// Suggestion is a candidate entity awaiting human review before it becomes
// part of the visible graph.
type Suggestion struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Kind           topicgraph.Kind `json:"kind"`
	Category       string          `json:"category,omitempty"`
	Confidence     float64         `json:"confidence"`
	MentionCount   int             `json:"mentionCount"`
	FirstDetected  string          `json:"firstDetected"`
	SampleEntryIDs []string        `json:"sampleEntryIds"`
	Keywords       []string        `json:"keywords,omitempty"`
	Role           string          `json:"role,omitempty"`
	Importance     int             `json:"importance"`
}

// suggestionsDoc is the persisted document shape.
type suggestionsDoc struct {
	PendingReview    []Suggestion `json:"pending_review"`
	AutoApproved     []Suggestion `json:"auto_approved"`
	Rejected         []Suggestion `json:"rejected"`
	LastDetectionRun string       `json:"last_detection_run"`
}

// SuggestionStore owns the review-gated suggestion queue. Approved and
// rejected are terminal states; a rejected name is never re-suggested.
type SuggestionStore struct {
	mu     sync.Mutex
	doc    suggestionsDoc
	docs   *storage.JSONStore
	logger *zap.Logger
}

// NewSuggestionStore loads the persisted suggestion document.
func NewSuggestionStore(docs *storage.JSONStore) (*SuggestionStore, error) {
	doc := suggestionsDoc{
		PendingReview: []Suggestion{},
		AutoApproved:  []Suggestion{},
		Rejected:      []Suggestion{},
	}
	if err := docs.Load(suggestionsDocument, &doc); err != nil {
		return nil, err
	}
	return &SuggestionStore{
		doc:    doc,
		docs:   docs,
		logger: logger.Get(),
	}, nil
}

// Pending returns the suggestions awaiting review.
func (s *SuggestionStore) Pending() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Suggestion, len(s.doc.PendingReview))
	copy(out, s.doc.PendingReview)
	return out
}

// Known reports whether a name is already pending or was already rejected.
// Rejection is terminal user intent, so the pipeline does not resurface it.
func (s *SuggestionStore) Known(name string) bool {
	needle := strings.ToLower(strings.TrimSpace(name))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sug := range s.doc.PendingReview {
		if strings.ToLower(sug.Name) == needle {
			return true
		}
	}
	for _, sug := range s.doc.Rejected {
		if strings.ToLower(sug.Name) == needle {
			return true
		}
	}
	return false
}

// Add appends a suggestion to the pending queue.
func (s *SuggestionStore) Add(sug Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.PendingReview = append(s.doc.PendingReview, sug)
	if err := s.saveLocked(); err != nil {
		s.doc.PendingReview = s.doc.PendingReview[:len(s.doc.PendingReview)-1]
		return err
	}
	s.logger.Info("Topic suggestion created",
		zap.String("suggestion_id", sug.ID),
		zap.String("name", sug.Name),
		zap.Int("mentions", sug.MentionCount),
		zap.Float64("confidence", sug.Confidence),
	)
	return nil
}

// Approve moves a pending suggestion to the approved list and returns it.
func (s *SuggestionStore) Approve(id string) (Suggestion, error) {
	return s.resolve(id, true)
}

// Reject moves a pending suggestion to the rejected list and returns it.
func (s *SuggestionStore) Reject(id string) (Suggestion, error) {
	return s.resolve(id, false)
}

func (s *SuggestionStore) resolve(id string, approved bool) (Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sug := range s.doc.PendingReview {
		if sug.ID != id {
			continue
		}
		s.doc.PendingReview = append(s.doc.PendingReview[:i], s.doc.PendingReview[i+1:]...)
		if approved {
			s.doc.AutoApproved = append(s.doc.AutoApproved, sug)
		} else {
			s.doc.Rejected = append(s.doc.Rejected, sug)
		}
		if err := s.saveLocked(); err != nil {
			return Suggestion{}, err
		}
		s.logger.Info("Topic suggestion resolved",
			zap.String("suggestion_id", id),
			zap.Bool("approved", approved),
		)
		return sug, nil
	}

	return Suggestion{}, apperrors.NewSuggestionNotFound(id)
}

// LastRun returns the recorded time of the last detection run, zero if none.
func (s *SuggestionStore) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.LastDetectionRun == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.doc.LastDetectionRun)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetLastRun records the completion time of a detection run.
func (s *SuggestionStore) SetLastRun(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.LastDetectionRun = t.Format(time.RFC3339)
	return s.saveLocked()
}

func (s *SuggestionStore) saveLocked() error {
	return s.docs.Save(suggestionsDocument, s.doc)
}
