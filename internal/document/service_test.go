package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"docsign/internal/audit"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
	"docsign/pkg/testutil"
)

type stubContentStore struct {
	saves    int
	removed  []string
	failSave bool
}

func (s *stubContentStore) Save(r io.Reader) (string, string, error) {
	if s.failSave {
		return "", "", errors.New("disk full")
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", "", err
	}
	s.saves++
	return fmt.Sprintf("path-%d", s.saves), fmt.Sprintf("hash-%d", s.saves), nil
}

func (s *stubContentStore) Remove(path string) error {
	s.removed = append(s.removed, path)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	content *stubContentStore
	service *Service

	owner  domain.UserID
	signer domain.UserID
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s.store = NewMemoryStore()
	s.content = &stubContentStore{}
	s.service = NewService(s.store, s.content, audit.NewPublisher(64, nil, logger), nil, logger)
	s.owner = domain.NewUserID()
	s.signer = domain.NewUserID()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) create(signers ...domain.UserID) *Document {
	doc, err := s.service.Create(testutil.Context(s.T()), CreateParams{
		Owner:           s.owner,
		Content:         strings.NewReader("file bytes"),
		Metadata:        Metadata{Title: "lease agreement"},
		RequiredSigners: signers,
	})
	s.Require().NoError(err)
	return doc
}

func (s *ServiceSuite) TestCreate() {
	doc := s.create(s.signer)

	s.Equal(StatusDraft, doc.Status)
	s.Equal("hash-1", doc.ContentHash)
	s.Nil(doc.SubmittedAt)
	s.Nil(doc.SignedAt)

	s.Run("rejects missing title", func() {
		_, err := s.service.Create(testutil.Context(s.T()), CreateParams{
			Owner:   s.owner,
			Content: strings.NewReader("x"),
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects duplicate signers across lists", func() {
		_, err := s.service.Create(testutil.Context(s.T()), CreateParams{
			Owner:           s.owner,
			Content:         strings.NewReader("x"),
			Metadata:        Metadata{Title: "t"},
			RequiredSigners: []domain.UserID{s.signer},
			OptionalSigners: []domain.UserID{s.signer},
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("content save failure surfaces as internal", func() {
		s.content.failSave = true
		defer func() { s.content.failSave = false }()
		_, err := s.service.Create(testutil.Context(s.T()), CreateParams{
			Owner:    s.owner,
			Content:  strings.NewReader("x"),
			Metadata: Metadata{Title: "t"},
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestSubmitStateMachine() {
	doc := s.create(s.signer)

	s.Run("submit by non-owner fails with NotOwner", func() {
		_, err := s.service.Submit(testutil.Context(s.T()), doc.ID, s.signer)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotOwner))
	})

	s.Run("submit by owner moves draft to pending", func() {
		got, err := s.service.Submit(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(StatusPending, got.Status)
		s.Require().NotNil(got.SubmittedAt)
	})

	s.Run("second submit fails with InvalidState", func() {
		_, err := s.service.Submit(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown document", func() {
		_, err := s.service.Submit(testutil.Context(s.T()), domain.NewDocumentID(), s.owner)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDelete() {
	s.Run("owner deletes a draft and its content", func() {
		doc := s.create()
		s.Require().NoError(s.service.Delete(testutil.Context(s.T()), doc.ID, s.owner))
		s.Contains(s.content.removed, doc.ContentPath)

		_, err := s.service.Get(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-owner cannot delete", func() {
		doc := s.create()
		err := s.service.Delete(testutil.Context(s.T()), doc.ID, s.signer)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotOwner))
	})

	s.Run("submitted documents are permanent", func() {
		doc := s.create(s.signer)
		_, err := s.service.Submit(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().NoError(err)

		err = s.service.Delete(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestDeleteRacingSubmit() {
	// A delete and a submit hitting the same draft must resolve to exactly
	// one winner: either the document is gone, or it is pending and stays.
	for i := 0; i < 50; i++ {
		doc := s.create(s.signer)

		var wg sync.WaitGroup
		var submitErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, submitErr = s.service.Submit(context.Background(), doc.ID, s.owner)
		}()
		go func() {
			defer wg.Done()
			deleteErr = s.service.Delete(context.Background(), doc.ID, s.owner)
		}()
		wg.Wait()

		if submitErr == nil {
			s.Require().Error(deleteErr, "submit won, so the delete must have been refused")
			got, err := s.service.Get(context.Background(), doc.ID, s.owner)
			s.Require().NoError(err, "a submitted document must never disappear")
			s.Equal(StatusPending, got.Status)
		} else {
			s.Require().NoError(deleteErr)
			s.Require().True(dErrors.HasCode(submitErr, dErrors.CodeNotFound))
			_, err := s.service.Get(context.Background(), doc.ID, s.owner)
			s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
		}
	}
}

func (s *ServiceSuite) TestCancelAndExpire() {
	s.Run("owner cancels a pending document", func() {
		doc := s.create(s.signer)
		_, err := s.service.Submit(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().NoError(err)

		got, err := s.service.Cancel(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(StatusCancelled, got.Status)

		_, err = s.service.Cancel(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState),
			"cancelled is terminal")
	})

	s.Run("draft cannot be cancelled", func() {
		doc := s.create(s.signer)
		_, err := s.service.Cancel(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("pending documents expire", func() {
		doc := s.create(s.signer)
		_, err := s.service.Submit(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().NoError(err)

		got, err := s.service.Expire(testutil.Context(s.T()), doc.ID)
		s.Require().NoError(err)
		s.Equal(StatusExpired, got.Status)
	})
}

func (s *ServiceSuite) TestUpdateMetadata() {
	doc := s.create(s.signer)

	got, err := s.service.UpdateMetadata(testutil.Context(s.T()), doc.ID, s.owner, Metadata{Title: "renamed"})
	s.Require().NoError(err)
	s.Equal("renamed", got.Metadata.Title)

	_, err = s.service.Submit(testutil.Context(s.T()), doc.ID, s.owner)
	s.Require().NoError(err)

	_, err = s.service.UpdateMetadata(testutil.Context(s.T()), doc.ID, s.owner, Metadata{Title: "again"})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState),
		"metadata freezes once the document leaves draft")
}

func (s *ServiceSuite) TestGetAuthorization() {
	doc := s.create(s.signer)

	_, err := s.service.Get(testutil.Context(s.T()), doc.ID, s.owner)
	s.Require().NoError(err)

	_, err = s.service.Get(testutil.Context(s.T()), doc.ID, s.signer)
	s.Require().NoError(err)

	_, err = s.service.Get(testutil.Context(s.T()), doc.ID, domain.NewUserID())
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestEvaluateCompletionIdempotence() {
	doc := s.create(s.signer)
	_, err := s.service.Submit(testutil.Context(s.T()), doc.ID, s.owner)
	s.Require().NoError(err)

	s.Run("incomplete document stays pending", func() {
		got, err := s.service.EvaluateCompletion(testutil.Context(s.T()), doc.ID)
		s.Require().NoError(err)
		s.Equal(StatusPending, got.Status)
	})

	s.Run("completion transitions exactly once", func() {
		_, err := s.store.Update(context.Background(), doc.ID, func(d *Document) error {
			d.Signatures = append(d.Signatures, Signature{Signer: s.signer})
			return nil
		})
		s.Require().NoError(err)

		first, err := s.service.EvaluateCompletion(testutil.Context(s.T()), doc.ID)
		s.Require().NoError(err)
		s.Equal(StatusSigned, first.Status)
		s.Require().NotNil(first.SignedAt)

		second, err := s.service.EvaluateCompletion(testutil.Context(s.T()), doc.ID)
		s.Require().NoError(err)
		s.Equal(StatusSigned, second.Status)
		s.Equal(first.SignedAt.UnixNano(), second.SignedAt.UnixNano(),
			"second evaluation must not touch signedAt")
	})
}

func TestCompletionPercentage(t *testing.T) {
	a, b := domain.NewUserID(), domain.NewUserID()
	doc := &Document{RequiredSigners: []domain.UserID{a, b}}

	if got := doc.CompletionPercentage(); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
	doc.Signatures = append(doc.Signatures, Signature{Signer: a})
	if got := doc.CompletionPercentage(); got != 50 {
		t.Fatalf("got %v, want 50", got)
	}
	doc.Signatures = append(doc.Signatures, Signature{Signer: b})
	if got := doc.CompletionPercentage(); got != 100 {
		t.Fatalf("got %v, want 100", got)
	}

	empty := &Document{}
	if got := empty.CompletionPercentage(); got != 100 {
		t.Fatalf("no required signers means complete, got %v", got)
	}
}
