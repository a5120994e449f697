package domain

import dErrors "docsign/pkg/domain-errors"

// DocumentType labels the kind of identity document a subject submits for
// verification. The field matcher selects its label-anchored patterns by it.
type DocumentType string

// Supported identity document types.
const (
	DocumentTypePassport       DocumentType = "passport"
	DocumentTypeNationalID     DocumentType = "national_id"
	DocumentTypeDriversLicense DocumentType = "drivers_license"
	DocumentTypeOther          DocumentType = "other"
)

// validDocumentTypes is the single source of truth for valid document types.
var validDocumentTypes = map[DocumentType]bool{
	DocumentTypePassport:       true,
	DocumentTypeNationalID:     true,
	DocumentTypeDriversLicense: true,
	DocumentTypeOther:          true,
}

// ParseDocumentType constructs a DocumentType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDocumentType(s string) (DocumentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document type cannot be empty")
	}
	t := DocumentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid document type")
	}
	return t, nil
}

// IsValid checks if the document type is one of the supported enum values.
func (t DocumentType) IsValid() bool {
	return validDocumentTypes[t]
}

func (t DocumentType) String() string { return string(t) }
