package document

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"docsign/internal/audit"
	"docsign/internal/platform/metrics"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
	"docsign/pkg/platform/sentinel"
)

// Service is the document lifecycle manager. It owns every status
// transition except the pending-to-signed completion check, which the
// signature collector triggers inside its own critical section.
type Service struct {
	store   Store
	content ContentStore
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(store Store, content ContentStore, auditor *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, content: content, auditor: auditor, metrics: m, logger: logger}
}

// CreateParams carries everything needed to create a draft document.
type CreateParams struct {
	Owner           domain.UserID
	Content         io.Reader
	Metadata        Metadata
	RequiredSigners []domain.UserID
	OptionalSigners []domain.UserID
}

// Create stores the uploaded content, computes its hash and creates the
// document in draft.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Document, error) {
	if p.Owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	if p.Content == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document content is required")
	}
	if p.Metadata.Title == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	if err := validateSignerLists(p.RequiredSigners, p.OptionalSigners); err != nil {
		return nil, err
	}

	path, hash, err := s.content.Save(p.Content)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store document content", err)
	}

	doc := &Document{
		ID:              domain.NewDocumentID(),
		Owner:           p.Owner,
		Status:          StatusDraft,
		ContentHash:     hash,
		ContentPath:     path,
		Metadata:        p.Metadata,
		RequiredSigners: append([]domain.UserID(nil), p.RequiredSigners...),
		OptionalSigners: append([]domain.UserID(nil), p.OptionalSigners...),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.Create(ctx, doc); err != nil {
		if removeErr := s.content.Remove(path); removeErr != nil {
			s.logger.Warn("orphaned content after failed create", "path", path, "error", removeErr)
		}
		return nil, translateStoreErr(err)
	}

	s.metrics.IncDocumentsCreated()
	s.auditor.Emit(ctx, audit.Event{
		Action:     audit.ActionDocumentCreated,
		ActorID:    p.Owner.String(),
		DocumentID: doc.ID.String(),
	})
	return doc, nil
}

// Submit moves an owner's draft to pending, opening it for signatures.
func (s *Service) Submit(ctx context.Context, id domain.DocumentID, actor domain.UserID) (*Document, error) {
	doc, err := s.store.Update(ctx, id, func(d *Document) error {
		if d.Owner != actor {
			return dErrors.New(dErrors.CodeNotOwner, "only the owner can submit a document")
		}
		if d.Status != StatusDraft {
			return dErrors.New(dErrors.CodeInvalidState, "only draft documents can be submitted")
		}
		now := time.Now().UTC()
		d.Status = StatusPending
		d.SubmittedAt = &now
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Action:     audit.ActionDocumentSubmitted,
		ActorID:    actor.String(),
		DocumentID: id.String(),
	})
	return doc, nil
}

// Delete removes a draft document and its stored content. Documents that
// left draft are history and can never be deleted.
func (s *Service) Delete(ctx context.Context, id domain.DocumentID, actor domain.UserID) error {
	// Checks run inside the store's per-document critical section so a
	// delete cannot race a concurrent submit out of draft.
	doc, err := s.store.Delete(ctx, id, func(d *Document) error {
		if d.Owner != actor {
			return dErrors.New(dErrors.CodeNotOwner, "only the owner can delete a document")
		}
		if d.Status != StatusDraft {
			return dErrors.New(dErrors.CodeInvalidState, "only draft documents can be deleted")
		}
		return nil
	})
	if err != nil {
		return translateStoreErr(err)
	}
	if err := s.content.Remove(doc.ContentPath); err != nil {
		s.logger.Warn("orphaned content after delete", "path", doc.ContentPath, "error", err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Action:     audit.ActionDocumentDeleted,
		ActorID:    actor.String(),
		DocumentID: id.String(),
	})
	return nil
}

// Cancel is the owner's terminal off-ramp for a pending document.
func (s *Service) Cancel(ctx context.Context, id domain.DocumentID, actor domain.UserID) (*Document, error) {
	doc, err := s.store.Update(ctx, id, func(d *Document) error {
		if d.Owner != actor {
			return dErrors.New(dErrors.CodeNotOwner, "only the owner can cancel a document")
		}
		if d.Status != StatusPending {
			return dErrors.New(dErrors.CodeInvalidState, "only pending documents can be cancelled")
		}
		d.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Action:     audit.ActionDocumentCancelled,
		ActorID:    actor.String(),
		DocumentID: id.String(),
	})
	return doc, nil
}

// Expire transitions a pending document to expired. Triggered externally,
// typically by a deadline sweeper, so there is no actor check.
func (s *Service) Expire(ctx context.Context, id domain.DocumentID) (*Document, error) {
	doc, err := s.store.Update(ctx, id, func(d *Document) error {
		if d.Status != StatusPending {
			return dErrors.New(dErrors.CodeInvalidState, "only pending documents can expire")
		}
		d.Status = StatusExpired
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Action:     audit.ActionDocumentExpired,
		DocumentID: id.String(),
	})
	return doc, nil
}

// UpdateMetadata edits owner-supplied metadata while the document is still
// a draft. Everything else on a document is immutable from the outside.
func (s *Service) UpdateMetadata(ctx context.Context, id domain.DocumentID, actor domain.UserID, metadata Metadata) (*Document, error) {
	if metadata.Title == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	doc, err := s.store.Update(ctx, id, func(d *Document) error {
		if d.Owner != actor {
			return dErrors.New(dErrors.CodeNotOwner, "only the owner can update a document")
		}
		if d.Status != StatusDraft {
			return dErrors.New(dErrors.CodeInvalidState, "only draft documents can be updated")
		}
		d.Metadata = metadata
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return doc, nil
}

// Get returns a document to its owner or to any listed signer.
func (s *Service) Get(ctx context.Context, id domain.DocumentID, actor domain.UserID) (*Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if doc.Owner != actor && doc.AuthorizeSigner(actor) == RoleUnauthorized {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "not a participant on this document")
	}
	return doc, nil
}

// ListByOwner returns the actor's own documents, oldest first.
func (s *Service) ListByOwner(ctx context.Context, owner domain.UserID) ([]*Document, error) {
	docs, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return docs, nil
}

// ListPendingForSigner returns pending documents awaiting the actor's
// signature.
func (s *Service) ListPendingForSigner(ctx context.Context, signer domain.UserID) ([]*Document, error) {
	docs, err := s.store.ListPendingForSigner(ctx, signer)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return docs, nil
}

// EvaluateCompletion re-checks whether every required signer has signed
// and transitions pending to signed if so. Idempotent: a document that is
// already signed, or still incomplete, is left untouched.
func (s *Service) EvaluateCompletion(ctx context.Context, id domain.DocumentID) (*Document, error) {
	var completed bool
	doc, err := s.store.Update(ctx, id, func(d *Document) error {
		completed = ApplyCompletion(d)
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if completed {
		s.metrics.IncDocumentsSigned()
		s.auditor.Emit(ctx, audit.Event{
			Action:     audit.ActionDocumentCompleted,
			DocumentID: id.String(),
		})
	}
	return doc, nil
}

// ApplyCompletion performs the completion transition in place and reports
// whether the document just became signed. Callers already holding the
// document's critical section (the signature collector) use this directly
// so the signature append and the completion check commit atomically.
func ApplyCompletion(d *Document) bool {
	if d.Status != StatusPending || !d.IsFullySigned() {
		return false
	}
	now := time.Now().UTC()
	d.Status = StatusSigned
	d.SignedAt = &now
	return true
}

func validateSignerLists(required, optional []domain.UserID) error {
	seen := make(map[domain.UserID]bool, len(required)+len(optional))
	for _, id := range required {
		if id.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "signer id cannot be nil")
		}
		if seen[id] {
			return dErrors.New(dErrors.CodeInvalidInput, "duplicate signer "+id.String())
		}
		seen[id] = true
	}
	for _, id := range optional {
		if id.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "signer id cannot be nil")
		}
		if seen[id] {
			return dErrors.New(dErrors.CodeInvalidInput, "duplicate signer "+id.String())
		}
		seen[id] = true
	}
	return nil
}

// translateStoreErr maps infrastructure facts onto the coded taxonomy,
// passing already-coded errors through untouched.
func translateStoreErr(err error) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(dErrors.CodeNotFound, "document not found", err)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(dErrors.CodeInvalidState, "document already exists", err)
	default:
		return dErrors.Wrap(dErrors.CodeInternal, "document store failure", err)
	}
}
