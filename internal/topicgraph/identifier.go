package topicgraph

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ============================================================================
// Entity ID Generation
// ============================================================================

const (
	// maxLatinIDLen bounds the name part of a Latin-script id.
	maxLatinIDLen = 24
	// maxCJKIDLen bounds the name part of a CJK id before the hash suffix.
	maxCJKIDLen = 8
)

// generatedIDPattern matches ids the LLM tends to invent on its own, e.g.
// "topic_1", "person-3", "entity12". Such ids carry no information and are
// replaced with a name-derived one.
var generatedIDPattern = regexp.MustCompile(`^(topic|person|entity|node)[_-]?[0-9]+$`)

// nonIDChars matches everything that is not a letter, digit, underscore or
// whitespace. CJK ideographs are letters and survive.
var nonIDChars = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// LooksGenerated reports whether an id is missing or looks like an
// auto-generated placeholder rather than a real identifier.
func LooksGenerated(id string) bool {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return true
	}
	return generatedIDPattern.MatchString(id)
}

// GenerateID derives a stable identifier from an entity name. The name is
// normalized (NFC, lowercased), stripped of punctuation, and whitespace is
// collapsed to underscores. CJK names get a short content hash suffix for
// uniqueness since truncation loses more information there; the hash is a
// heuristic, not a uniqueness guarantee, so callers pass an exists func and
// collisions are resolved with a numeric suffix.
func GenerateID(name string, kind Kind, exists func(string) bool) string {
	prefix := "topic_"
	if kind == KindPerson {
		prefix = "person_"
	}

	cleaned := normalizeIDName(name)
	if cleaned == "" {
		cleaned = "unnamed"
	}

	var base string
	if containsCJK(cleaned) {
		runes := []rune(cleaned)
		if len(runes) > maxCJKIDLen {
			runes = runes[:maxCJKIDLen]
		}
		base = prefix + string(runes) + "_" + shortHash(cleaned)
	} else {
		if len(cleaned) > maxLatinIDLen {
			cleaned = cleaned[:maxLatinIDLen]
			cleaned = strings.Trim(cleaned, "_")
		}
		base = prefix + cleaned
	}

	if exists == nil || !exists(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !exists(candidate) {
			return candidate
		}
	}
}

// normalizeIDName lowercases, strips punctuation and collapses whitespace to
// underscores.
func normalizeIDName(name string) string {
	s := norm.NFC.String(strings.TrimSpace(name))
	s = strings.ToLower(s)
	s = nonIDChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
	return s
}

// containsCJK reports whether the string contains CJK ideographs or kana/hangul.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// shortHash returns a 6-hex-digit content hash of s.
func shortHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%06x", h.Sum32()&0xffffff)
}
