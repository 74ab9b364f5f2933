package swarm

import (
	"sort"
	"strings"
)

// structuredKeywords mark a response that explains itself, not just code.
var structuredKeywords = []string{"implementation", "example", "usage", "test"}

// QualityScore rates a response text in [0, 1]. It is a deterministic
// formatting heuristic — a proxy for "looks like a complete, well-formed
// answer" — not a semantic judgment.
func QualityScore(text string) float64 {
	if text == "" {
		return 0
	}

	// Accumulate in integer tenths; summing 0.3+0.2+... in float64 lands
	// just under 1.0 and a full-marks response must score exactly 1.0.
	tenths := 0
	lower := strings.ToLower(text)

	if strings.Contains(text, "```") || strings.Contains(lower, "function") || strings.Contains(lower, "def ") {
		tenths += 3
	}
	if len(text) > 200 {
		tenths += 2
	}
	for _, kw := range structuredKeywords {
		if strings.Contains(lower, kw) {
			tenths += 2
			break
		}
	}
	if len(text) > 500 {
		tenths += 2
	}
	if strings.Count(text, "\n") > 5 {
		tenths++
	}

	if tenths > 10 {
		tenths = 10
	}
	return float64(tenths) / 10
}

// ConsensusConfidence is the token-set Jaccard similarity of two texts:
// intersection over union of their whitespace-split, lowercased token sets.
// High lexical overlap between independently generated answers is treated as
// an agreement proxy.
func ConsensusConfidence(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = struct{}{}
	}
	return set
}

// Collate sorts responses by quality score descending and reduces them to
// the consensus answer (the best response) plus a confidence signal from the
// top two. With fewer than two responses confidence is 1.0: no disagreement
// is possible.
func Collate(responses []Response) (string, float64) {
	if len(responses) == 0 {
		return "", 0
	}

	sort.SliceStable(responses, func(i, j int) bool {
		return responses[i].Score > responses[j].Score
	})

	if len(responses) < 2 {
		return responses[0].Text, 1.0
	}
	return responses[0].Text, ConsensusConfidence(responses[0].Text, responses[1].Text)
}
