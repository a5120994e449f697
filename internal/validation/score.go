package validation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var fieldWeights = map[string]float64{
	FieldDocumentNumber: 0.5,
	FieldDateOfBirth:    0.3,
	FieldFullName:       0.2,
}

var foldCaser = cases.Fold()

// canonical folds case and strips all whitespace so that "JOHN  DOE" and
// "john doe" compare equal.
func canonical(s string) string {
	folded := foldCaser.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// Confidence scores an extracted value against the declared one. Exact
// match after folding scores 1.0; otherwise one minus the normalized
// Levenshtein distance, floored at 0. Either value missing scores 0.
func Confidence(extracted, declared string) float64 {
	if extracted == "" || declared == "" {
		return 0
	}

	a, b := canonical(extracted), canonical(declared)
	if a == b {
		return 1.0
	}

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}

	conf := 1 - float64(levenshtein(a, b))/float64(maxLen)
	if conf < 0 {
		return 0
	}
	return conf
}

// levenshtein computes edit distance over runes using two rolling rows.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j-1]+cost, curr[j-1]+1, prev[j]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// overallScore is the weighted average over the scored fields, skipping
// fields with no extracted or declared value and renormalizing the weights
// over whatever remains. No scorable fields at all means 0.
func overallScore(perField map[string]FieldResult) float64 {
	var total, weight float64
	for field, w := range fieldWeights {
		r, ok := perField[field]
		if !ok || r.ExtractedValue == "" || r.DeclaredValue == "" {
			continue
		}
		total += r.Confidence * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}
