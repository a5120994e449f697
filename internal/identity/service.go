package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docsign/internal/audit"
	"docsign/internal/ledger"
	"docsign/internal/platform/metrics"
	"docsign/internal/validation"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
	"docsign/pkg/platform/sentinel"
)

// DocumentValidator scores a submitted document against declared identity
// data. Satisfied by validation.Validator.
type DocumentValidator interface {
	ValidateDocument(ctx context.Context, path string, declared validation.Declared) (validation.Report, error)
}

// Service runs identity verification. A subject is verified at most once:
// in-process attempts for the same subject are serialized on a per-subject
// mutex, and across processes the store's uniqueness constraint backstops
// the same guarantee.
type Service struct {
	store     Store
	validator DocumentValidator
	ledger    ledger.Ledger
	auditor   *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	subjects map[domain.UserID]*sync.Mutex
}

func NewService(
	store Store,
	validator DocumentValidator,
	led ledger.Ledger,
	auditor *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		validator: validator,
		ledger:    led,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
		subjects:  make(map[domain.UserID]*sync.Mutex),
	}
}

// VerifyRequest carries the declared identity data and the path of the
// uploaded proof document.
type VerifyRequest struct {
	Subject      domain.UserID
	DocumentPath string
	Declared     validation.Declared
}

// VerifyResult is returned by Verify. Report is populated whenever
// validation actually ran, including when it failed, so callers can show
// per-field confidences alongside a VALIDATION_FAILED error.
type VerifyResult struct {
	Record *VerificationRecord
	Report validation.Report
}

// Verify validates the request's document against its declared data and,
// on a pass, attests the verification to the ledger and persists the
// record. The ledger write is fail-closed: if it does not succeed nobody
// becomes verified.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if err := validateRequest(req); err != nil {
		return VerifyResult{}, err
	}

	unlock := s.lockSubject(req.Subject)
	defer unlock()

	if _, err := s.store.Get(ctx, req.Subject); err == nil {
		return VerifyResult{}, dErrors.New(dErrors.CodeAlreadyVerified, "subject is already verified")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "verification lookup failed", err)
	}

	report, err := s.validator.ValidateDocument(ctx, req.DocumentPath, req.Declared)
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "document validation errored", err)
	}
	if !report.Valid {
		s.metrics.IncVerification(string(report.Method), "rejected")
		s.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionIdentityRejected,
			SubjectID: req.Subject.String(),
			Decision:  "rejected",
			Reason:    fmt.Sprintf("overall score %.2f below threshold", report.OverallScore),
		})
		return VerifyResult{Report: report},
			dErrors.New(dErrors.CodeValidationFailed, "document does not match declared identity data")
	}

	hash, err := verificationHash(req.Subject, req.Declared, report)
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "build attestation payload", err)
	}
	receipt, err := s.ledger.Append(ctx, ledger.Entry{
		EntityType:  ledger.EntityVerification,
		EntityID:    req.Subject.String(),
		PayloadHash: hash,
		Submitter:   req.Subject.String(),
	})
	if err != nil {
		s.metrics.IncLedgerFailures()
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeLedgerUnavailable, "attestation write failed", err)
	}

	record := &VerificationRecord{
		Subject:        req.Subject,
		DocumentType:   req.Declared.DocumentType,
		DocumentNumber: req.Declared.DocumentNumber,
		DateOfBirth:    req.Declared.DateOfBirth,
		Nationality:    req.Declared.Nationality,
		FullName:       req.Declared.FullName,
		Report:         report,
		LedgerReceipt:  receipt,
		VerifiedAt:     time.Now().UTC(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		// A concurrent verification on another node won the store race
		// after our ledger append. The record that won stands; our ledger
		// entry remains as an extra attestation for the same subject.
		if errors.Is(err, sentinel.ErrConflict) {
			return VerifyResult{}, dErrors.New(dErrors.CodeAlreadyVerified, "subject is already verified")
		}
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "persist verification record", err)
	}

	s.metrics.IncVerification(string(report.Method), "verified")
	s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionIdentityVerified,
		SubjectID: req.Subject.String(),
		Decision:  "verified",
		Reason:    fmt.Sprintf("method %s, score %.2f", report.Method, report.OverallScore),
	})
	s.logger.Info("identity verified",
		"subject", req.Subject,
		"method", report.Method,
		"score", report.OverallScore,
		"sequence", receipt.Sequence)

	return VerifyResult{Record: record, Report: report}, nil
}

// IsVerified reports whether the subject holds a verification record.
func (s *Service) IsVerified(ctx context.Context, subject domain.UserID) (bool, error) {
	_, err := s.store.Get(ctx, subject)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Status returns the subject's verification record.
func (s *Service) Status(ctx context.Context, subject domain.UserID) (*VerificationRecord, error) {
	record, err := s.store.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "subject is not verified", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "verification lookup failed", err)
	}
	return record, nil
}

func (s *Service) lockSubject(subject domain.UserID) func() {
	s.mu.Lock()
	lock, ok := s.subjects[subject]
	if !ok {
		lock = &sync.Mutex{}
		s.subjects[subject] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func validateRequest(req VerifyRequest) error {
	switch {
	case req.Subject.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "subject is required")
	case req.DocumentPath == "":
		return dErrors.New(dErrors.CodeInvalidInput, "proof document is required")
	case !req.Declared.DocumentType.IsValid():
		return dErrors.New(dErrors.CodeInvalidInput, "unknown document type")
	case req.Declared.DocumentNumber == "":
		return dErrors.New(dErrors.CodeInvalidInput, "document number is required")
	case req.Declared.DateOfBirth == "":
		return dErrors.New(dErrors.CodeInvalidInput, "date of birth is required")
	case req.Declared.FullName == "":
		return dErrors.New(dErrors.CodeInvalidInput, "full name is required")
	}
	return nil
}

// verificationHash is the SHA-256 over a stable encoding of the subject,
// the declared data and the validation outcome. It is what the ledger
// attests for a verification.
func verificationHash(subject domain.UserID, declared validation.Declared, report validation.Report) (string, error) {
	payload := struct {
		Subject        string  `json:"subject"`
		DocumentType   string  `json:"documentType"`
		DocumentNumber string  `json:"documentNumber"`
		DateOfBirth    string  `json:"dateOfBirth"`
		FullName       string  `json:"fullName"`
		Method         string  `json:"method"`
		Score          float64 `json:"score"`
	}{
		Subject:        subject.String(),
		DocumentType:   string(declared.DocumentType),
		DocumentNumber: declared.DocumentNumber,
		DateOfBirth:    declared.DateOfBirth,
		FullName:       declared.FullName,
		Method:         string(report.Method),
		Score:          report.OverallScore,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
