// Package validation decides whether a submitted identity document matches
// the identity data the user declared. The primary path scores OCR-extracted
// fields against the declared ones; a degraded path scores declared-input
// completeness when no OCR backend is reachable.
package validation

import "docsign/pkg/domain"

// Method records which validator produced a report. Callers must treat a
// fallback pass as materially weaker than an OCR-backed one.
type Method string

const (
	MethodOCR      Method = "ocr"
	MethodFallback Method = "fallback"
)

// Field names used as PerField keys.
const (
	FieldDocumentNumber = "documentNumber"
	FieldDateOfBirth    = "dateOfBirth"
	FieldFullName       = "fullName"
)

// Declared is the identity data the user claims the document proves.
type Declared struct {
	DocumentType   domain.DocumentType
	DocumentNumber string
	DateOfBirth    string
	Nationality    string
	FullName       string
}

// FieldResult compares one extracted field against its declared value.
type FieldResult struct {
	ExtractedValue string  `json:"extractedValue,omitempty"`
	DeclaredValue  string  `json:"declaredValue"`
	Matches        bool    `json:"matches"`
	Confidence     float64 `json:"confidence"`
}

// Report is the structured outcome of one validation run.
type Report struct {
	Method        Method                 `json:"validationMethod"`
	PerField      map[string]FieldResult `json:"perField"`
	OverallScore  float64                `json:"overallScore"`
	Valid         bool                   `json:"valid"`
	ExtractedText string                 `json:"extractedText,omitempty"`
	Errors        []string               `json:"errors,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
}
