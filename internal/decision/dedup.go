package decision

import (
	"regexp"
	"strings"
)

// nonAlnum strips everything but letters/digits, mirroring the Python
// original's token-cleaning regex in listener.py's _word_similarity.
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// significantTokens returns the set of lowercased, non-alphanumeric-
// stripped tokens longer than 3 characters, per §4.8 step 7.
func significantTokens(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		cleaned := nonAlnum.ReplaceAllString(word, "")
		if len(cleaned) > 3 {
			tokens[cleaned] = struct{}{}
		}
	}
	return tokens
}

// jaccard computes |A∩B| / |A∪B| over two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// containment computes |A∩B| / min(|A|,|B|).
func containment(a, b map[string]struct{}) float64 {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	if minLen == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(minLen)
}

// DedupThresholds configures the duplicate rule of §4.8 step 7. Defaults
// are the later pair the specification adopts (§9 Open Questions,
// resolved in DESIGN.md): Jaccard >= 0.50 OR containment >= 0.70.
type DedupThresholds struct {
	JaccardThreshold     float64
	ContainmentThreshold float64
}

func DefaultDedupThresholds() DedupThresholds {
	return DedupThresholds{JaccardThreshold: 0.50, ContainmentThreshold: 0.70}
}

// IsDuplicate reports whether newSummary is a semantic duplicate of
// existingSummary under the §4.8 set-theoretic rule.
func IsDuplicate(newSummary, existingSummary string, th DedupThresholds) bool {
	a := significantTokens(newSummary)
	b := significantTokens(existingSummary)
	if jaccard(a, b) >= th.JaccardThreshold {
		return true
	}
	if containment(a, b) >= th.ContainmentThreshold {
		return true
	}
	return false
}

// IsDuplicateOfAny reports whether newSummary duplicates any entry in log.
func IsDuplicateOfAny(newSummary string, log []string, th DedupThresholds) bool {
	for _, existing := range log {
		if IsDuplicate(newSummary, existing, th) {
			return true
		}
	}
	return false
}
