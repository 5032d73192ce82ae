package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/miofuku/ai-diary/internal/topicgraph"
	"go.uber.org/zap"
)

// ============================================================================
// Entity/Relation Extraction
// ============================================================================

const extractSystemPrompt = `You are an AI that extracts a knowledge graph from diary entries.

Identify the topics, people and relationships mentioned in the text and return them as JSON with this exact structure:
{
  "topics": [
    {
      "id": "",
      "name": "Topic Name",
      "category": "projects|places|activities|concepts|technologies|objects",
      "topicType": "concept|activity|event",
      "importance": 3,
      "sentiment": 0,
      "context": "short snippet explaining where this came from",
      "keywords": ["keyword1", "keyword2"]
    }
  ],
  "people": [
    {
      "id": "",
      "name": "Person Name",
      "importance": 3,
      "role": "their role relative to the writer",
      "aliases": ["nickname"],
      "context": "short snippet explaining where this came from"
    }
  ],
  "relations": [
    {"source": "topic or person id", "target": "topic or person id", "type": "works_on", "strength": 3}
  ]
}

Rules:
- importance is an integer 1-5, sentiment is a number between -2 and 2
- relation strength is an integer 1-5
- leave ids empty, they are assigned later; in relations, reference entities by name if you left ids empty
- CRITICAL: KEEP ALL NAMES AND TEXT IN THE ORIGINAL LANGUAGE OF THE ENTRIES - if the entries are in Chinese, respond in Chinese. DO NOT TRANSLATE.`

// Extract runs entity/relation extraction over the given text and normalizes
// the result: placeholder ids are replaced with deterministic name-derived
// ids, numeric fields are clamped to their ranges, and relations are remapped
// through any rewritten ids. On empty input or any failure (provider error,
// malformed JSON) the empty result shape is returned - extraction failure
// must never abort the caller's flow.
func (a *LLMAdapter) Extract(ctx context.Context, text string) *topicgraph.Extraction {
	if strings.TrimSpace(text) == "" {
		return topicgraph.EmptyExtraction()
	}

	userMsg := "Extract the knowledge graph from these diary entries, keeping the original language: " + text
	raw, err := a.chat(ctx, extractSystemPrompt, userMsg, 0.1, true)
	if err != nil {
		a.logger.Warn("Entity extraction failed, returning empty result", zap.Error(err))
		return topicgraph.EmptyExtraction()
	}

	var parsed topicgraph.Extraction
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		a.logger.Warn("Entity extraction returned malformed JSON, returning empty result",
			zap.Error(err),
			zap.String("preview", preview(raw, 120)),
		)
		return topicgraph.EmptyExtraction()
	}

	return normalizeExtraction(&parsed)
}

// normalizeExtraction assigns canonical ids, clamps numeric fields and
// remaps relations so they reference the final ids.
func normalizeExtraction(parsed *topicgraph.Extraction) *topicgraph.Extraction {
	out := topicgraph.EmptyExtraction()
	used := make(map[string]bool)
	idTaken := func(id string) bool { return used[id] }

	// relations may reference entities by LLM-invented id or by name
	remap := make(map[string]string)

	for _, t := range parsed.Topics {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		t.Kind = topicgraph.KindTopic
		t.Importance = clampInt(t.Importance, 1, 5)
		t.Sentiment = clampFloat(t.Sentiment, -2, 2)
		original := t.ID
		if topicgraph.LooksGenerated(t.ID) || used[t.ID] {
			t.ID = topicgraph.GenerateID(t.Name, topicgraph.KindTopic, idTaken)
		}
		used[t.ID] = true
		if original != "" {
			remap[original] = t.ID
		}
		remap[t.Name] = t.ID
		out.Topics = append(out.Topics, t)
	}

	for _, p := range parsed.People {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		p.Kind = topicgraph.KindPerson
		p.Importance = clampInt(p.Importance, 1, 5)
		p.Sentiment = 0 // people carry no sentiment
		original := p.ID
		if topicgraph.LooksGenerated(p.ID) || used[p.ID] {
			p.ID = topicgraph.GenerateID(p.Name, topicgraph.KindPerson, idTaken)
		}
		used[p.ID] = true
		if original != "" {
			remap[original] = p.ID
		}
		remap[p.Name] = p.ID
		out.People = append(out.People, p)
	}

	for _, r := range parsed.Relations {
		if mapped, ok := remap[r.Source]; ok {
			r.Source = mapped
		}
		if mapped, ok := remap[r.Target]; ok {
			r.Target = mapped
		}
		if r.Source == "" || r.Target == "" || r.Source == r.Target {
			continue
		}
		r.Strength = clampInt(r.Strength, 1, 5)
		out.Relations = append(out.Relations, r)
	}

	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
