package signature

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docsign/internal/audit"
	"docsign/internal/document"
	"docsign/internal/ledger"
	"docsign/internal/platform/metrics"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
	"docsign/pkg/platform/sentinel"
)

// VerificationGate answers whether a signer has completed identity
// verification. Unverified identities may be listed as signers but cannot
// actually sign.
type VerificationGate interface {
	IsVerified(ctx context.Context, id domain.UserID) (bool, error)
}

// Service is the signature collector.
type Service struct {
	docs     document.Store
	ledger   ledger.Ledger
	verifier Verifier
	keys     KeyDirectory
	gate     VerificationGate
	auditor  *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(
	docs document.Store,
	led ledger.Ledger,
	verifier Verifier,
	keys KeyDirectory,
	gate VerificationGate,
	auditor *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		docs:     docs,
		ledger:   led,
		verifier: verifier,
		keys:     keys,
		gate:     gate,
		auditor:  auditor,
		metrics:  m,
		logger:   logger,
	}
}

// SignRequest is one signer's attempt to sign a pending document. The
// signature must cover the canonical payload built from the document's
// content hash, both ids and the signer-chosen timestamp.
type SignRequest struct {
	DocumentID domain.DocumentID
	Signer     domain.UserID
	Timestamp  int64
	Signature  []byte
}

// SignResult carries the appended record and the document state after the
// append, which may have just transitioned to signed.
type SignResult struct {
	Record   document.Signature
	Document *document.Document
}

// Sign verifies, attests and appends one signature. The duplicate check,
// the ledger write and the append run inside the document's critical
// section: a ledger failure aborts the whole operation with nothing
// committed, and no signer can slip in a second record between check and
// append.
func (s *Service) Sign(ctx context.Context, req SignRequest) (SignResult, error) {
	if len(req.Signature) == 0 {
		return SignResult{}, dErrors.New(dErrors.CodeInvalidInput, "signature payload is required")
	}
	if req.Timestamp <= 0 {
		return SignResult{}, dErrors.New(dErrors.CodeInvalidInput, "signing timestamp is required")
	}

	verified, err := s.gate.IsVerified(ctx, req.Signer)
	if err != nil {
		return SignResult{}, dErrors.Wrap(dErrors.CodeInternal, "verification lookup failed", err)
	}
	if !verified {
		return SignResult{}, dErrors.New(dErrors.CodeUnauthorized, "signer has not completed identity verification")
	}

	var record document.Signature
	var completed bool

	doc, err := s.docs.Update(ctx, req.DocumentID, func(d *document.Document) error {
		if d.Status != document.StatusPending {
			return dErrors.New(dErrors.CodeInvalidState, "document is not open for signatures")
		}
		if d.AuthorizeSigner(req.Signer) == document.RoleUnauthorized {
			return dErrors.New(dErrors.CodeUnauthorized, "not an authorized signer for this document")
		}
		if d.HasSigned(req.Signer) {
			return dErrors.New(dErrors.CodeAlreadySigned, "signer already signed this document")
		}

		data := SigningData{
			ContentHash: d.ContentHash,
			DocumentID:  d.ID.String(),
			SignerID:    req.Signer.String(),
			Timestamp:   req.Timestamp,
		}
		key, err := s.keys.PublicKey(req.Signer)
		if err != nil {
			return dErrors.Wrap(dErrors.CodeInvalidSignature, "no registered signing key", err)
		}
		ok, err := s.verifier.Verify(key, data, req.Signature)
		if err != nil {
			return dErrors.Wrap(dErrors.CodeInvalidSignature, "signature verification errored", err)
		}
		if !ok {
			return dErrors.New(dErrors.CodeInvalidSignature, "signature does not verify against the signing payload")
		}

		payload, err := CanonicalPayload(data)
		if err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "build signing payload", err)
		}
		receipt, err := s.ledger.Append(ctx, ledger.Entry{
			EntityType:  ledger.EntitySignature,
			EntityID:    d.ID.String(),
			PayloadHash: HashPayload(payload),
			Submitter:   req.Signer.String(),
		})
		if err != nil {
			s.metrics.IncLedgerFailures()
			return dErrors.Wrap(dErrors.CodeLedgerUnavailable, "attestation write failed", err)
		}

		record = document.Signature{
			Signer:        req.Signer,
			Payload:       req.Signature,
			PayloadHash:   HashPayload(payload),
			LedgerReceipt: receipt,
			SignedAt:      time.Now().UTC(),
		}
		d.Signatures = append(d.Signatures, record)
		completed = document.ApplyCompletion(d)
		return nil
	})
	if err != nil {
		s.auditRejection(ctx, req, err)
		return SignResult{}, translateErr(err)
	}

	s.metrics.IncSignaturesRecorded()
	s.auditor.Emit(ctx, audit.Event{
		Action:     audit.ActionDocumentSigned,
		ActorID:    req.Signer.String(),
		DocumentID: req.DocumentID.String(),
	})
	if completed {
		s.metrics.IncDocumentsSigned()
		s.auditor.Emit(ctx, audit.Event{
			Action:     audit.ActionDocumentCompleted,
			DocumentID: req.DocumentID.String(),
		})
	}
	return SignResult{Record: record, Document: doc}, nil
}

// GenerateSigningData returns the canonical data a signer must sign right
// now for the given document. The same lifecycle and authorization rules
// as Sign apply, so a caller learns about a doomed attempt before
// producing a signature.
func (s *Service) GenerateSigningData(ctx context.Context, id domain.DocumentID, signer domain.UserID) (SigningData, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return SigningData{}, translateErr(err)
	}
	if doc.Status != document.StatusPending {
		return SigningData{}, dErrors.New(dErrors.CodeInvalidState, "document is not open for signatures")
	}
	if doc.AuthorizeSigner(signer) == document.RoleUnauthorized {
		return SigningData{}, dErrors.New(dErrors.CodeUnauthorized, "not an authorized signer for this document")
	}
	if doc.HasSigned(signer) {
		return SigningData{}, dErrors.New(dErrors.CodeAlreadySigned, "signer already signed this document")
	}
	return SigningData{
		ContentHash: doc.ContentHash,
		DocumentID:  doc.ID.String(),
		SignerID:    signer.String(),
		Timestamp:   time.Now().Unix(),
	}, nil
}

// VerificationStatus reports whether a stored signature is backed by a
// matching ledger attestation.
type VerificationStatus struct {
	Signer   domain.UserID  `json:"signer"`
	Attested bool           `json:"attested"`
	Receipt  ledger.Receipt `json:"receipt"`
}

// Verify cross-checks a recorded signature against the attestation
// ledger: the record's payload hash must appear in a ledger entry for this
// document submitted by the same signer.
func (s *Service) Verify(ctx context.Context, id domain.DocumentID, signer domain.UserID) (VerificationStatus, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return VerificationStatus{}, translateErr(err)
	}

	var record *document.Signature
	for i := range doc.Signatures {
		if doc.Signatures[i].Signer == signer {
			record = &doc.Signatures[i]
			break
		}
	}
	if record == nil {
		return VerificationStatus{}, dErrors.New(dErrors.CodeNotFound, "no signature by this signer on the document")
	}

	records, err := s.ledger.Find(ctx, ledger.EntitySignature, id.String())
	if err != nil {
		return VerificationStatus{}, dErrors.Wrap(dErrors.CodeLedgerUnavailable, "attestation lookup failed", err)
	}
	for _, r := range records {
		if r.Entry.Submitter == signer.String() && r.Entry.PayloadHash == record.PayloadHash {
			return VerificationStatus{Signer: signer, Attested: true, Receipt: r.Receipt}, nil
		}
	}
	return VerificationStatus{Signer: signer, Attested: false, Receipt: record.LedgerReceipt}, nil
}

// History lists the ledger attestations recorded for a document, visible
// to the owner and listed signers.
func (s *Service) History(ctx context.Context, id domain.DocumentID, actor domain.UserID) ([]ledger.Record, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, translateErr(err)
	}
	if doc.Owner != actor && doc.AuthorizeSigner(actor) == document.RoleUnauthorized {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "not a participant on this document")
	}

	records, err := s.ledger.Find(ctx, ledger.EntitySignature, id.String())
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeLedgerUnavailable, "attestation lookup failed", err)
	}
	return records, nil
}

func (s *Service) auditRejection(ctx context.Context, req SignRequest, err error) {
	code := dErrors.CodeOf(err)
	if code != dErrors.CodeInvalidSignature {
		return
	}
	s.auditor.Emit(ctx, audit.Event{
		Action:     audit.ActionSignatureRejected,
		ActorID:    req.Signer.String(),
		DocumentID: req.DocumentID.String(),
		Reason:     dErrors.MessageOf(err),
	})
}

func translateErr(err error) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(dErrors.CodeNotFound, "document not found", err)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(dErrors.CodeLedgerUnavailable, "attestation backend unavailable", err)
	default:
		return dErrors.Wrap(dErrors.CodeInternal, "signing failed", err)
	}
}
