package document

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docsign/pkg/domain"
	"docsign/pkg/platform/sentinel"
)

// MemoryStore keeps documents in a map with one mutex per document so that
// updates to different documents never contend. Update applies the mutate
// function to a clone and swaps it in only on success, which keeps failed
// mutations invisible to readers.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[domain.DocumentID]*Document
	locks map[domain.DocumentID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[domain.DocumentID]*Document),
		locks: make(map[domain.DocumentID]*sync.Mutex),
	}
}

func (s *MemoryStore) Create(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
	}
	s.docs[doc.ID] = doc.Clone()
	s.locks[doc.ID] = &sync.Mutex{}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.DocumentID) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id domain.DocumentID, mutate func(*Document) error) (*Document, error) {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		// Deleted while we waited for the per-document lock.
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.docs[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id domain.DocumentID, check func(*Document) error) (*Document, error) {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}

	// Same per-document lock as Update, so a delete cannot slip between a
	// concurrent update's check and its commit (or vice versa).
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	if err := check(current.Clone()); err != nil {
		return nil, err
	}
	delete(s.docs, id)
	delete(s.locks, id)
	return current, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner domain.UserID) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Document
	for _, doc := range s.docs {
		if doc.Owner == owner {
			out = append(out, doc.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) ListPendingForSigner(_ context.Context, signer domain.UserID) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Document
	for _, doc := range s.docs {
		if doc.Status != StatusPending {
			continue
		}
		if doc.AuthorizeSigner(signer) == RoleUnauthorized || doc.HasSigned(signer) {
			continue
		}
		out = append(out, doc.Clone())
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(docs []*Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID.String() < docs[j].ID.String()
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
}
