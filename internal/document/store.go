package document

import (
	"context"

	"docsign/pkg/domain"
)

// Store persists documents. Update runs mutate inside a per-document
// critical section: the function sees the current state, may change it,
// and the result is committed only when it returns nil. This is how
// check-then-append races (duplicate signatures, conflicting transitions)
// are excluded. Delete runs check inside the same critical section and
// removes the document only when it returns nil, so a delete cannot race
// a transition out of draft; the removed document is returned for
// content cleanup.
type Store interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id domain.DocumentID) (*Document, error)
	Update(ctx context.Context, id domain.DocumentID, mutate func(*Document) error) (*Document, error)
	Delete(ctx context.Context, id domain.DocumentID, check func(*Document) error) (*Document, error)
	ListByOwner(ctx context.Context, owner domain.UserID) ([]*Document, error)

	// ListPendingForSigner returns pending documents where the identity is
	// an authorized signer that has not signed yet.
	ListPendingForSigner(ctx context.Context, signer domain.UserID) ([]*Document, error)
}
