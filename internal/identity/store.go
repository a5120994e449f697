package identity

import (
	"context"
	"fmt"
	"sync"

	"docsign/pkg/domain"
	"docsign/pkg/platform/sentinel"
)

// Store persists verification records, one per subject.
type Store interface {
	Create(ctx context.Context, record *VerificationRecord) error
	Get(ctx context.Context, subject domain.UserID) (*VerificationRecord, error)
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.UserID]*VerificationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[domain.UserID]*VerificationRecord)}
}

func (s *MemoryStore) Create(_ context.Context, record *VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Subject]; exists {
		return fmt.Errorf("subject %s: %w", record.Subject, sentinel.ErrConflict)
	}
	clone := *record
	s.records[record.Subject] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, subject domain.UserID) (*VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[subject]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", subject, sentinel.ErrNotFound)
	}
	clone := *record
	return &clone, nil
}
