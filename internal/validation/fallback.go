package validation

import (
	"fmt"
	"strings"
	"time"
)

// fallbackChecks are the completeness rules the degraded validator scores.
// Each satisfied check adds 0.1 on top of the 0.6 base, capping at 0.9: a
// fallback report can never look as strong as a perfect OCR match.
const (
	fallbackBase     = 0.6
	fallbackPerCheck = 0.1
	fallbackCap      = 0.9
)

// validateByCompleteness scores declared input without looking at the
// document. It runs when OCR is unavailable and its passes carry the
// fallback method marker so callers never mistake them for content checks.
func validateByCompleteness(declared Declared, threshold float64, warnings []string) Report {
	score := fallbackBase
	if len(strings.TrimSpace(declared.DocumentNumber)) >= 6 {
		score += fallbackPerCheck
	}
	if len(strings.Fields(declared.FullName)) >= 2 {
		score += fallbackPerCheck
	}
	if _, err := time.Parse("2006-01-02", declared.DateOfBirth); err == nil {
		score += fallbackPerCheck
	}
	if score > fallbackCap {
		score = fallbackCap
	}

	perField := map[string]FieldResult{
		FieldDocumentNumber: {DeclaredValue: declared.DocumentNumber},
		FieldDateOfBirth:    {DeclaredValue: declared.DateOfBirth},
		FieldFullName:       {DeclaredValue: declared.FullName},
	}

	return Report{
		Method:       MethodFallback,
		PerField:     perField,
		OverallScore: score,
		Valid:        score >= threshold,
		Warnings: append(warnings,
			fmt.Sprintf("document content not verified: completeness score %.2f", score)),
	}
}
