package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"docsign/pkg/domain"
)

// Extracted holds the candidate field values pulled from normalized OCR
// text. Empty string means no pattern matched.
type Extracted struct {
	DocumentNumber string
	DateOfBirth    string
	FullName       string
}

// Label-anchored document number patterns per document type. Longer label
// alternatives come first so that "passport number A12345678" binds the
// whole label instead of capturing the word after "passport". Labels match
// case-insensitively; the captured token must be uppercase alphanumeric.
var docNumberPatterns = map[domain.DocumentType]*regexp.Regexp{
	domain.DocumentTypePassport:       regexp.MustCompile(`(?i:passport\s*number|passport\s*no|passport)[:\s]*([A-Z0-9]{6,12})`),
	domain.DocumentTypeNationalID:     regexp.MustCompile(`(?i:national\s*id|id\s*number|identity\s*number)[:\s]*([A-Z0-9]{6,15})`),
	domain.DocumentTypeDriversLicense: regexp.MustCompile(`(?i:driver'?s?\s*licen[cs]e|licen[cs]e)[:\s]*([A-Z0-9]{6,15})`),
	domain.DocumentTypeOther:          regexp.MustCompile(`(?i:number|no|id)[:\s]*([A-Z0-9]{6,15})`),
}

var (
	// Any ID-like token, used when no labeled match is found. Identity
	// documents rarely fail to print some long alphanumeric run.
	bareDocNumber = regexp.MustCompile(`[A-Z0-9]{6,15}`)

	dobLabeled = regexp.MustCompile(`(?i:date\s*of\s*birth|birth\s*date|dob|born|birth)[:\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`)
	bareDate   = regexp.MustCompile(`\b(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})\b`)

	dateSeparator = regexp.MustCompile(`[/\-.]`)

	// A name word is either Titlecase or all caps; a name is two or more
	// of them in a row.
	nameRun     = regexp.MustCompile(`\b(?:[A-Z][a-z]+|[A-Z]{2,})(?:\s+(?:[A-Z][a-z]+|[A-Z]{2,}))+\b`)
	nameLabeled = regexp.MustCompile(`(?i:full\s*name|name)[:\s]+((?:[A-Z][a-z]+|[A-Z]{2,})(?:\s+(?:[A-Z][a-z]+|[A-Z]{2,}))+)`)
)

// MatchFields extracts candidate identity fields from normalized text.
func MatchFields(text string, docType domain.DocumentType) Extracted {
	return Extracted{
		DocumentNumber: extractDocumentNumber(text, docType),
		DateOfBirth:    extractDateOfBirth(text),
		FullName:       extractFullName(text),
	}
}

func extractDocumentNumber(text string, docType domain.DocumentType) string {
	pattern, ok := docNumberPatterns[docType]
	if !ok {
		pattern = docNumberPatterns[domain.DocumentTypeOther]
	}
	if m := pattern.FindStringSubmatch(text); m != nil {
		return strings.ReplaceAll(m[1], " ", "")
	}

	// Fall back to the longest bare alphanumeric run.
	var longest string
	for _, candidate := range bareDocNumber.FindAllString(text, -1) {
		if len(candidate) > len(longest) {
			longest = candidate
		}
	}
	return longest
}

func extractDateOfBirth(text string) string {
	if m := dobLabeled.FindStringSubmatch(text); m != nil {
		return NormalizeDate(m[1])
	}
	if m := bareDate.FindStringSubmatch(text); m != nil {
		return NormalizeDate(m[1])
	}
	return ""
}

func extractFullName(text string) string {
	if m := nameLabeled.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := nameRun.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// NormalizeDate converts D[D]/M[M]/Y[Y][YY] dates (separators / - .) to
// canonical YYYY-MM-DD. Two-digit years below 50 land in 20YY, the rest in
// 19YY. Strings that do not split into three parts pass through unchanged.
func NormalizeDate(s string) string {
	parts := dateSeparator.Split(s, -1)
	if len(parts) != 3 {
		return s
	}

	day, month, year := parts[0], parts[1], parts[2]
	if len(year) == 2 {
		if n, err := strconv.Atoi(year); err == nil && n < 50 {
			year = "20" + year
		} else {
			year = "19" + year
		}
	}
	return fmt.Sprintf("%s-%s-%s", year, pad2(month), pad2(day))
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
