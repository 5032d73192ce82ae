package topicconfig

import (
	"sort"
	"strings"
	"sync"

	"github.com/miofuku/ai-diary/internal/storage"
	"github.com/miofuku/ai-diary/internal/topicgraph"
	apperrors "github.com/miofuku/ai-diary/pkg/errors"
	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
)

// configDocument is the on-disk name of the user topic configuration.
const configDocument = "topic_config.json"

// DetectionSettings controls the automatic detection pipeline.
type DetectionSettings struct {
	Enabled           bool     `json:"enabled"`
	Frequency         string   `json:"frequency"` // daily, weekly, monthly
	MinMentions       int      `json:"min_mentions"`
	EnabledCategories []string `json:"enabled_categories"`
}

// DisplaySettings controls how visible topics are presented.
type DisplaySettings struct {
	MaxTopics       int    `json:"max_topics"` // 0 = unlimited
	SortBy          string `json:"sort_by"`    // priority, name, category
	GroupByCategory bool   `json:"group_by_category"`
}

// Config is the persisted user topic configuration.
type Config struct {
	VisibleTopics   []string            `json:"visible_topics"`
	HiddenTopics    []string            `json:"hidden_topics"`
	TopicPriorities map[string]int      `json:"topic_priorities"`
	CustomTopics    []topicgraph.Entity `json:"custom_topics"`
	AutoDetection   DetectionSettings   `json:"auto_detection"`
	Display         DisplaySettings     `json:"display"`
}

// VisibleTopic is a graph entity annotated with the user's effective priority.
type VisibleTopic struct {
	topicgraph.Entity
	UserPriority int  `json:"user_priority"`
	Custom       bool `json:"custom"`
}

// MentionCounter reports how many diary entries mention a name. The diary
// store satisfies this.
type MentionCounter interface {
	CountMentions(name string) int
}

// Manager owns the user topic configuration and computes the visible topic
// list over the graph contents.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	docs     *storage.JSONStore
	graph    *topicgraph.Store
	mentions MentionCounter
	logger   *zap.Logger
}

// NewManager loads the persisted configuration, applying defaults on first
// access.
func NewManager(docs *storage.JSONStore, graph *topicgraph.Store, mentions MentionCounter) (*Manager, error) {
	cfg := Config{}
	if err := docs.Load(configDocument, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &Manager{
		cfg:      cfg,
		docs:     docs,
		graph:    graph,
		mentions: mentions,
		logger:   logger.Get(),
	}, nil
}

// applyDefaults fills zero values for a freshly created configuration.
func applyDefaults(cfg *Config) {
	if cfg.TopicPriorities == nil {
		cfg.TopicPriorities = map[string]int{}
	}
	if cfg.AutoDetection.Frequency == "" {
		cfg.AutoDetection.Enabled = true
		cfg.AutoDetection.Frequency = "daily"
	}
	if cfg.AutoDetection.MinMentions == 0 {
		cfg.AutoDetection.MinMentions = 3
	}
	if len(cfg.AutoDetection.EnabledCategories) == 0 {
		cfg.AutoDetection.EnabledCategories = []string{
			topicgraph.CategoryPeople,
			topicgraph.CategoryProjects,
			topicgraph.CategoryPlaces,
			topicgraph.CategoryActivities,
			topicgraph.CategoryConcepts,
			topicgraph.CategoryTechnologies,
			topicgraph.CategoryObjects,
		}
	}
	if cfg.Display.SortBy == "" {
		cfg.Display.SortBy = "priority"
	}
}

// Config returns a copy of the current configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

func (m *Manager) copyLocked() Config {
	out := m.cfg
	out.VisibleTopics = append([]string(nil), m.cfg.VisibleTopics...)
	out.HiddenTopics = append([]string(nil), m.cfg.HiddenTopics...)
	out.CustomTopics = append([]topicgraph.Entity(nil), m.cfg.CustomTopics...)
	out.TopicPriorities = make(map[string]int, len(m.cfg.TopicPriorities))
	for k, v := range m.cfg.TopicPriorities {
		out.TopicPriorities[k] = v
	}
	return out
}

// Update replaces the configuration after validating priorities and settings.
// Nothing is mutated on validation failure.
func (m *Manager) Update(cfg Config) error {
	for id, priority := range cfg.TopicPriorities {
		if priority < 1 || priority > 5 {
			return apperrors.NewValidation("priority", "must be between 1 and 5 for topic "+id)
		}
	}
	switch cfg.AutoDetection.Frequency {
	case "", "daily", "weekly", "monthly":
	default:
		return apperrors.NewValidation("frequency", "must be daily, weekly or monthly")
	}
	switch cfg.Display.SortBy {
	case "", "priority", "name", "category":
	default:
		return apperrors.NewValidation("sort_by", "must be priority, name or category")
	}

	applyDefaults(&cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	return m.saveLocked()
}

// SetTopicPriority overrides the priority of one topic.
func (m *Manager) SetTopicPriority(id string, priority int) error {
	if priority < 1 || priority > 5 {
		return apperrors.NewValidation("priority", "must be between 1 and 5")
	}
	if !m.topicExists(id) {
		return apperrors.NewTopicNotFound(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.TopicPriorities[id] = priority
	return m.saveLocked()
}

// HideTopic adds the topic id to the hidden set.
func (m *Manager) HideTopic(id string) error {
	if !m.topicExists(id) {
		return apperrors.NewTopicNotFound(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hidden := range m.cfg.HiddenTopics {
		if hidden == id {
			return nil
		}
	}
	m.cfg.HiddenTopics = append(m.cfg.HiddenTopics, id)
	return m.saveLocked()
}

// ShowTopic removes the topic id from the hidden set.
func (m *Manager) ShowTopic(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, hidden := range m.cfg.HiddenTopics {
		if hidden == id {
			m.cfg.HiddenTopics = append(m.cfg.HiddenTopics[:i], m.cfg.HiddenTopics[i+1:]...)
			return m.saveLocked()
		}
	}
	return nil
}

// AddCustomTopic stores a user-authored topic. Custom topics are user intent,
// not extraction artifacts, so they are always retained in the visible list
// regardless of mention count.
func (m *Manager) AddCustomTopic(entity topicgraph.Entity) (topicgraph.Entity, error) {
	if strings.TrimSpace(entity.Name) == "" {
		return topicgraph.Entity{}, apperrors.NewValidation("name", "must not be empty")
	}
	if entity.Kind == "" {
		entity.Kind = topicgraph.KindTopic
	}
	if entity.Importance < 1 || entity.Importance > 5 {
		entity.Importance = 3
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	taken := func(id string) bool {
		if _, ok := m.graph.FindByID(id); ok {
			return true
		}
		for _, custom := range m.cfg.CustomTopics {
			if custom.ID == id {
				return true
			}
		}
		return false
	}
	if topicgraph.LooksGenerated(entity.ID) || taken(entity.ID) {
		entity.ID = topicgraph.GenerateID(entity.Name, entity.Kind, taken)
	}

	m.cfg.CustomTopics = append(m.cfg.CustomTopics, entity)
	if err := m.saveLocked(); err != nil {
		m.cfg.CustomTopics = m.cfg.CustomTopics[:len(m.cfg.CustomTopics)-1]
		return topicgraph.Entity{}, err
	}

	m.logger.Info("Custom topic added",
		zap.String("topic_id", entity.ID),
		zap.String("name", entity.Name),
	)
	return entity, nil
}

// DetectionSettings returns the current auto-detection settings.
func (m *Manager) DetectionSettings() DetectionSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.AutoDetection
}

// VisibleTopics gathers graph entities and custom topics, filters out
// extraction artifacts that no entry mentions, applies the visible/hidden
// sets, attaches effective priorities and sorts per the configured strategy,
// truncated to the configured maximum.
func (m *Manager) VisibleTopics() []VisibleTopic {
	graph := m.graph.Snapshot()

	m.mu.Lock()
	cfg := m.copyLocked()
	m.mu.Unlock()

	hidden := make(map[string]struct{}, len(cfg.HiddenTopics))
	for _, id := range cfg.HiddenTopics {
		hidden[id] = struct{}{}
	}
	visible := make(map[string]struct{}, len(cfg.VisibleTopics))
	for _, id := range cfg.VisibleTopics {
		visible[id] = struct{}{}
	}

	var topics []VisibleTopic
	appendTopic := func(e topicgraph.Entity, custom bool) {
		// no explicit visible set means default-allow everything not hidden
		if len(visible) > 0 {
			if _, ok := visible[e.ID]; !ok && !custom {
				return
			}
		}
		if _, ok := hidden[e.ID]; ok {
			return
		}
		priority := e.Importance
		if override, ok := cfg.TopicPriorities[e.ID]; ok {
			priority = override
		}
		topics = append(topics, VisibleTopic{Entity: e, UserPriority: priority, Custom: custom})
	}

	for _, node := range graph.Nodes {
		// drop extraction artifacts nothing in the corpus mentions
		if m.mentions.CountMentions(node.Name) == 0 {
			continue
		}
		appendTopic(node, false)
	}
	for _, custom := range cfg.CustomTopics {
		appendTopic(custom, true)
	}

	sortTopics(topics, cfg.Display.SortBy)

	if cfg.Display.MaxTopics > 0 && len(topics) > cfg.Display.MaxTopics {
		topics = topics[:cfg.Display.MaxTopics]
	}
	return topics
}

func sortTopics(topics []VisibleTopic, strategy string) {
	switch strategy {
	case "name":
		sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	case "category":
		sort.Slice(topics, func(i, j int) bool {
			if topics[i].Category != topics[j].Category {
				return topics[i].Category < topics[j].Category
			}
			return topics[i].Name < topics[j].Name
		})
	default: // priority
		sort.Slice(topics, func(i, j int) bool {
			if topics[i].UserPriority != topics[j].UserPriority {
				return topics[i].UserPriority > topics[j].UserPriority
			}
			return topics[i].Name < topics[j].Name
		})
	}
}

func (m *Manager) topicExists(id string) bool {
	if _, ok := m.graph.FindByID(id); ok {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, custom := range m.cfg.CustomTopics {
		if custom.ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) saveLocked() error {
	return m.docs.Save(configDocument, m.cfg)
}
