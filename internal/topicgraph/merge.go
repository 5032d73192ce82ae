package topicgraph

import (
	"math"
	"strings"
)

// ============================================================================
// Entity Merging
// ============================================================================

// maxMergedContextLen bounds the combined context of a merged entity.
const maxMergedContextLen = 200

// Merge combines a group of entities adjudged similar into one canonical
// entity. The first member is the base record (first-seen wins the id); the
// longest name wins on the assumption that longer names are more specific.
// Callers must pass a non-empty group.
func Merge(group []Entity) Entity {
	merged := group[0]
	if len(group) == 1 {
		return merged
	}

	merged.Name = longestName(group)
	merged.Keywords = unionStrings(collectKeywords(group))
	merged.Importance = roundedMeanImportance(group)
	merged.Sentiment = roundTo2(meanSentiment(group))
	merged.Context = joinContexts(group)

	if merged.Kind == KindPerson {
		mergePersonFields(&merged, group)
	}

	return merged
}

// mergePersonFields picks the primary name from the union of all names and
// aliases, keeps the rest as aliases, and concatenates distinct roles. No
// entity is its own alias.
func mergePersonFields(merged *Entity, group []Entity) {
	var candidates []string
	for _, e := range group {
		candidates = append(candidates, e.Name)
		candidates = append(candidates, e.Aliases...)
	}
	candidates = unionStrings(candidates)

	primary := ""
	for _, name := range candidates {
		if len([]rune(name)) > len([]rune(primary)) {
			primary = name
		}
	}
	if primary != "" {
		merged.Name = primary
	}

	aliases := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if name != merged.Name {
			aliases = append(aliases, name)
		}
	}
	merged.Aliases = aliases

	var roles []string
	seen := make(map[string]struct{})
	for _, e := range group {
		role := strings.TrimSpace(e.Role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	merged.Role = strings.Join(roles, "; ")
}

func longestName(group []Entity) string {
	name := group[0].Name
	for _, e := range group[1:] {
		if len([]rune(e.Name)) > len([]rune(name)) {
			name = e.Name
		}
	}
	return name
}

func collectKeywords(group []Entity) []string {
	var all []string
	for _, e := range group {
		all = append(all, e.Keywords...)
	}
	return all
}

// unionStrings removes duplicates while preserving first-seen order.
func unionStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func roundedMeanImportance(group []Entity) int {
	sum := 0
	for _, e := range group {
		sum += e.Importance
	}
	return int(math.Round(float64(sum) / float64(len(group))))
}

func meanSentiment(group []Entity) float64 {
	sum := 0.0
	for _, e := range group {
		sum += e.Sentiment
	}
	return sum / float64(len(group))
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// joinContexts joins distinct non-empty contexts with "; " and truncates the
// result with an ellipsis when it exceeds the bound.
func joinContexts(group []Entity) string {
	var contexts []string
	for _, e := range group {
		contexts = append(contexts, e.Context)
	}
	joined := strings.Join(unionStrings(contexts), "; ")
	runes := []rune(joined)
	if len(runes) > maxMergedContextLen {
		return string(runes[:maxMergedContextLen]) + "..."
	}
	return joined
}
