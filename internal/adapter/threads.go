package adapter

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"
)

// ============================================================================
// Topic Thread Analysis
// ============================================================================

// ThreadEntry is one diary entry handed to the thread analyzer.
type ThreadEntry struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

// ThreadMention links a topic thread back to a specific entry.
type ThreadMention struct {
	EntryID     string `json:"entryId"`
	Date        string `json:"date"`
	Excerpt     string `json:"excerpt"`
	FullContent string `json:"fullContent,omitempty"`
}

// TopicThread is one recurring topic with its progression over time.
type TopicThread struct {
	Name        string          `json:"name"`
	Summary     string          `json:"summary"`
	Progression string          `json:"progression"`
	Mentions    []ThreadMention `json:"mentions"`
}

// ThreadAnalysis is the result of a thread analysis run.
type ThreadAnalysis struct {
	Topics []TopicThread `json:"topics"`
}

const threadSystemPrompt = `You are an AI that analyzes diary entries to identify recurring topics and their progression over time.

Your task:
1. Identify ANY recurring topics/themes across these diary entries
2. For each topic, identify relevant entries that mention or relate to it
3. Analyze how the topic progresses or evolves across these entries
4. Return your analysis in a structured JSON format with the following exact structure:
{
  "topics": [
    {
      "name": "Topic Name",
      "summary": "Brief summary of what this topic is about",
      "progression": "Description of how this topic evolves over time",
      "mentions": [
        {
          "entryId": "entry id",
          "date": "ISO date",
          "excerpt": "Relevant excerpt from the entry"
        }
      ]
    }
  ]
}

IMPORTANT:
- The diary entries are mainly in Chinese (中文)
- CAREFULLY look for recurring topics
- Even if topics only appear in 2 entries, include them as important connections
- Pay close attention to projects, tools, platforms, and activities mentioned repeatedly
- CRITICAL: RESPOND IN THE SAME LANGUAGE AS THE ENTRIES - If entries are in Chinese, all topic names, summaries, progressions, and excerpts MUST BE IN CHINESE
- DO NOT TRANSLATE ANYTHING TO ENGLISH - preserve the original language`

// AnalyzeThreads runs a one-shot analysis over the whole corpus and returns
// recurring topics with their progression. Duplicate mentions of the same
// entry are removed and each surviving mention is backfilled with the full
// entry content. Failure returns an empty topic list.
func (a *LLMAdapter) AnalyzeThreads(ctx context.Context, entries []ThreadEntry) *ThreadAnalysis {
	empty := &ThreadAnalysis{Topics: []TopicThread{}}
	if len(entries) == 0 {
		return empty
	}

	sorted := make([]ThreadEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	payload, err := json.Marshal(sorted)
	if err != nil {
		a.logger.Warn("Failed to encode entries for thread analysis", zap.Error(err))
		return empty
	}

	userMsg := "Here are the diary entries in chronological order. Please identify ALL recurring topics and respond in the SAME LANGUAGE as the entries (mainly Chinese): " + string(payload)
	raw, err := a.chat(ctx, threadSystemPrompt, userMsg, 0.1, true)
	if err != nil {
		a.logger.Warn("Topic thread analysis failed", zap.Error(err))
		return empty
	}

	var analysis ThreadAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		a.logger.Warn("Topic thread analysis returned malformed JSON",
			zap.Error(err),
			zap.String("preview", preview(raw, 120)),
		)
		return empty
	}

	byID := make(map[string]ThreadEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	for ti := range analysis.Topics {
		seen := make(map[string]struct{})
		unique := make([]ThreadMention, 0, len(analysis.Topics[ti].Mentions))
		for _, mention := range analysis.Topics[ti].Mentions {
			if mention.EntryID == "" {
				continue
			}
			if _, ok := seen[mention.EntryID]; ok {
				continue
			}
			seen[mention.EntryID] = struct{}{}
			if full, ok := byID[mention.EntryID]; ok {
				mention.FullContent = full.Content
				mention.Date = full.Date
			}
			unique = append(unique, mention)
		}
		analysis.Topics[ti].Mentions = unique
	}

	return &analysis
}
