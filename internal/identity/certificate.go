package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"docsign/internal/ledger"
	"docsign/internal/validation"
	"docsign/pkg/domain"
)

// Certificate is the shareable proof of a completed verification. It
// exposes the attestation receipt but none of the declared identity data.
type Certificate struct {
	CertificateID string            `json:"certificateId"`
	Subject       domain.UserID     `json:"subject"`
	Method        validation.Method `json:"method"`
	LedgerReceipt ledger.Receipt    `json:"ledgerReceipt"`
	VerifiedAt    time.Time         `json:"verifiedAt"`
}

// Certificate builds the subject's verification certificate. The ID is
// derived from the stored record so repeated calls always return the same
// certificate.
func (s *Service) Certificate(ctx context.Context, subject domain.UserID) (Certificate, error) {
	record, err := s.Status(ctx, subject)
	if err != nil {
		return Certificate{}, err
	}
	return Certificate{
		CertificateID: certificateID(record),
		Subject:       record.Subject,
		Method:        record.Report.Method,
		LedgerReceipt: record.LedgerReceipt,
		VerifiedAt:    record.VerifiedAt,
	}, nil
}

func certificateID(record *VerificationRecord) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s",
		record.Subject, record.LedgerReceipt.ReceiptID,
		record.LedgerReceipt.Sequence, record.LedgerReceipt.ContentHash)))
	return "cert-" + hex.EncodeToString(sum[:16])
}
