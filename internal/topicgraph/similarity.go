package topicgraph

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ============================================================================
// Entity Similarity Scoring
// ============================================================================

// Similarity compares two entities and returns a score in [0,1]. The rules
// are layered: high-confidence name matches short-circuit, everything below
// accumulates and the best signal wins. People take a stricter path than
// topics since merging two distinct individuals is costlier than a duplicated
// topic node. The layered fallback lets short, sparse, mixed-script names
// (Chinese plus English) still resolve.
func Similarity(a, b Entity) float64 {
	nameA := normalizeName(a.Name)
	nameB := normalizeName(b.Name)
	if nameA == "" || nameB == "" {
		return 0
	}

	// Exact normalized match
	if nameA == nameB {
		return 1.0
	}

	// Exact match after stripping punctuation and whitespace
	cleanA := cleanName(nameA)
	cleanB := cleanName(nameB)
	if cleanA != "" && cleanA == cleanB {
		return 0.95
	}

	// People: high-confidence containment and alias rules
	if a.Kind == KindPerson && b.Kind == KindPerson {
		if cleanA != "" && cleanB != "" &&
			(strings.Contains(cleanA, cleanB) || strings.Contains(cleanB, cleanA)) {
			return 0.9
		}
		if aliasMatchesName(a.Aliases, nameB) || aliasMatchesName(b.Aliases, nameA) {
			return 0.9
		}
		if aliasSetsIntersect(a.Aliases, b.Aliases) {
			return 0.85
		}
	}

	best := 0.0

	// Keyword overlap
	if kw := jaccard(keywordSet(a.Keywords), keywordSet(b.Keywords)); kw > 0.7 {
		best = maxFloat(best, 0.8)
	} else if kw > 0.5 {
		best = maxFloat(best, 0.6)
	}

	// Topic containment, only when the shorter name is most of the longer one
	if a.Kind != KindPerson || b.Kind != KindPerson {
		if cleanA != "" && cleanB != "" &&
			(strings.Contains(cleanA, cleanB) || strings.Contains(cleanB, cleanA)) {
			shorter := minInt(len([]rune(cleanA)), len([]rune(cleanB)))
			longer := maxInt(len([]rune(cleanA)), len([]rune(cleanB)))
			if longer > 0 && float64(shorter)/float64(longer) >= 0.7 {
				best = maxFloat(best, 0.75)
			}
		}
	}

	// CJK character overlap. Requiring at least two distinct ideographs per
	// name guards against trivial single-character matches (a shared surname
	// is not a match).
	charsA := cjkCharSet(nameA)
	charsB := cjkCharSet(nameB)
	if len(charsA) >= 2 && len(charsB) >= 2 {
		if cj := jaccard(charsA, charsB); cj > 0.8 {
			best = maxFloat(best, 0.7)
		} else if cj > 0.6 {
			best = maxFloat(best, 0.5)
		}
	}

	// Latin word-token overlap
	if wj := jaccard(wordSet(nameA), wordSet(nameB)); wj > 0.8 {
		best = maxFloat(best, 0.7)
	} else if wj > 0.6 {
		best = maxFloat(best, 0.5)
	}

	// Context overlap, only when both contexts carry real text
	if len([]rune(a.Context)) > 10 && len([]rune(b.Context)) > 10 {
		if cj := jaccard(wordSet(normalizeName(a.Context)), wordSet(normalizeName(b.Context))); cj > 0.5 {
			best = maxFloat(best, 0.4)
		}
	}

	return best
}

// MergeThreshold returns the minimum similarity at which two entities of the
// given class are considered the same. People need near-certainty; technology
// and skill topics share vocabulary heavily so they merge a little earlier.
func MergeThreshold(kind Kind, category string) float64 {
	if kind == KindPerson {
		return 0.9
	}
	switch strings.ToLower(category) {
	case CategoryTechnologies, "technology", "skills", "skill":
		return 0.8
	}
	return 0.85
}

// upsertMergeBar is the looser bar applied when matching an incoming topic
// against a node that is already canonical in the graph. Merging more eagerly
// once a node exists keeps the graph from fragmenting into near-duplicates.
const upsertMergeBar = 0.7

// normalizeName applies unicode canonical form, lowercases and trims.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// cleanName strips punctuation and whitespace from an already-normalized name.
func cleanName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func aliasMatchesName(aliases []string, normalizedName string) bool {
	for _, alias := range aliases {
		if normalizeName(alias) == normalizedName {
			return true
		}
	}
	return false
}

func aliasSetsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, alias := range a {
		if n := normalizeName(alias); n != "" {
			set[n] = struct{}{}
		}
	}
	for _, alias := range b {
		if _, ok := set[normalizeName(alias)]; ok {
			return true
		}
	}
	return false
}

func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if n := normalizeName(kw); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func cjkCharSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			set[string(r)] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
