// Package identity runs one-way identity verification: a subject declares
// identity data, submits a document as proof, and on a passing validation
// the verification is attested to the ledger and recorded immutably.
package identity

import (
	"time"

	"docsign/internal/ledger"
	"docsign/internal/validation"
	"docsign/pkg/domain"
)

// VerificationRecord is created at most once per subject and never
// mutated afterwards. Verification is a one-way state.
type VerificationRecord struct {
	Subject        domain.UserID       `json:"subject"`
	DocumentType   domain.DocumentType `json:"documentType"`
	DocumentNumber string              `json:"documentNumber"`
	DateOfBirth    string              `json:"dateOfBirth"`
	Nationality    string              `json:"nationality"`
	FullName       string              `json:"fullName"`
	Report         validation.Report   `json:"validationReport"`
	LedgerReceipt  ledger.Receipt      `json:"ledgerReceipt"`
	VerifiedAt     time.Time           `json:"verifiedAt"`
}
