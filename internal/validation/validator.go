package validation

import (
	"context"
	"fmt"
	"log/slog"

	"docsign/internal/extract"
)

// TextExtractor is the OCR pipeline the validator reads documents through.
type TextExtractor interface {
	Available() bool
	Extract(ctx context.Context, path string) (extract.Result, error)
}

// Validator runs the OCR-backed validation path and degrades to the
// completeness fallback when extraction is unavailable or fails. OCR
// trouble must never block identity submission outright; the weaker
// guarantee is surfaced through Report.Method instead.
type Validator struct {
	extractor TextExtractor
	threshold float64
	logger    *slog.Logger
}

func New(extractor TextExtractor, threshold float64, logger *slog.Logger) *Validator {
	if threshold <= 0 {
		threshold = 0.70
	}
	return &Validator{extractor: extractor, threshold: threshold, logger: logger}
}

// ValidateDocument scores the document at path against the declared
// identity data and returns a structured report. It only errors on
// context cancellation; every validation-level problem lands in the
// report itself.
func (v *Validator) ValidateDocument(ctx context.Context, path string, declared Declared) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	if v.extractor == nil || !v.extractor.Available() {
		v.logger.Info("ocr backend not configured, using completeness fallback")
		return validateByCompleteness(declared, v.threshold, nil), nil
	}

	res, err := v.extractor.Extract(ctx, path)
	if err != nil {
		v.logger.Warn("extraction failed, degrading to completeness fallback",
			"path", path, "error", err)
		return validateByCompleteness(declared, v.threshold,
			[]string{fmt.Sprintf("extraction failed: %v", err)}), nil
	}

	report := scoreAgainstDeclared(res.Text, declared)
	report.Warnings = append(report.Warnings, res.Warnings...)
	report.Valid = report.OverallScore >= v.threshold
	return report, nil
}

// scoreAgainstDeclared matches fields in the normalized text and builds
// the per-field and overall scores.
func scoreAgainstDeclared(text string, declared Declared) Report {
	extracted := MatchFields(text, declared.DocumentType)

	perField := map[string]FieldResult{
		FieldDocumentNumber: fieldResult(extracted.DocumentNumber, declared.DocumentNumber),
		FieldDateOfBirth:    fieldResult(extracted.DateOfBirth, declared.DateOfBirth),
		FieldFullName:       fieldResult(extracted.FullName, declared.FullName),
	}

	return Report{
		Method:        MethodOCR,
		PerField:      perField,
		OverallScore:  overallScore(perField),
		ExtractedText: text,
		Errors:        mismatchErrors(perField),
	}
}

func fieldResult(extracted, declared string) FieldResult {
	conf := Confidence(extracted, declared)
	return FieldResult{
		ExtractedValue: extracted,
		DeclaredValue:  declared,
		Matches:        conf == 1.0,
		Confidence:     conf,
	}
}

// mismatchErrors lists fields where something was extracted but it does
// not match the declared value, carrying both values for the caller.
func mismatchErrors(perField map[string]FieldResult) []string {
	var errs []string
	for _, field := range []string{FieldDocumentNumber, FieldDateOfBirth, FieldFullName} {
		r := perField[field]
		if r.ExtractedValue != "" && r.DeclaredValue != "" && !r.Matches {
			errs = append(errs, fmt.Sprintf("%s mismatch: extracted %q, declared %q",
				field, r.ExtractedValue, r.DeclaredValue))
		}
	}
	return errs
}
