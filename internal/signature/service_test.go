package signature

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"docsign/internal/audit"
	"docsign/internal/document"
	"docsign/internal/ledger"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
	"docsign/pkg/testutil"
)

type allowAllGate struct{}

func (allowAllGate) IsVerified(context.Context, domain.UserID) (bool, error) { return true, nil }

type denyGate struct{}

func (denyGate) IsVerified(context.Context, domain.UserID) (bool, error) { return false, nil }

// failingLedger refuses every append, simulating an unreachable backend.
type failingLedger struct{}

func (failingLedger) Append(context.Context, ledger.Entry) (ledger.Receipt, error) {
	return ledger.Receipt{}, errors.New("ledger unreachable")
}

func (failingLedger) Find(context.Context, ledger.EntityType, string) ([]ledger.Record, error) {
	return nil, errors.New("ledger unreachable")
}

type signer struct {
	id   domain.UserID
	priv ed25519.PrivateKey
}

type ServiceSuite struct {
	suite.Suite
	store   *document.MemoryStore
	ledger  *ledger.MemoryLedger
	keys    *StaticKeyDirectory
	service *Service

	owner   domain.UserID
	signerA signer
	signerB signer
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s.store = document.NewMemoryStore()
	s.ledger = ledger.NewMemoryLedger()
	s.keys = NewStaticKeyDirectory()
	s.service = NewService(s.store, s.ledger, NewEd25519Verifier(), s.keys, allowAllGate{},
		audit.NewPublisher(64, nil, logger), nil, logger)

	s.owner = domain.NewUserID()
	s.signerA = s.newSigner()
	s.signerB = s.newSigner()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) newSigner() signer {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	id := domain.NewUserID()
	s.keys.Register(id, pub)
	return signer{id: id, priv: priv}
}

func (s *ServiceSuite) newPendingDoc(required ...domain.UserID) *document.Document {
	doc := &document.Document{
		ID:              domain.NewDocumentID(),
		Owner:           s.owner,
		Status:          document.StatusPending,
		ContentHash:     "c0ffee",
		Metadata:        document.Metadata{Title: "nda"},
		RequiredSigners: required,
		CreatedAt:       time.Now().UTC(),
	}
	s.Require().NoError(s.store.Create(context.Background(), doc))
	return doc
}

func (s *ServiceSuite) signRequest(doc *document.Document, sg signer) SignRequest {
	ts := time.Now().Unix()
	payload, err := CanonicalPayload(SigningData{
		ContentHash: doc.ContentHash,
		DocumentID:  doc.ID.String(),
		SignerID:    sg.id.String(),
		Timestamp:   ts,
	})
	s.Require().NoError(err)
	return SignRequest{
		DocumentID: doc.ID,
		Signer:     sg.id,
		Timestamp:  ts,
		Signature:  ed25519.Sign(sg.priv, payload),
	}
}

func (s *ServiceSuite) TestSigningFlow() {
	doc := s.newPendingDoc(s.signerA.id, s.signerB.id)

	s.Run("first required signer leaves the document pending", func() {
		res, err := s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, s.signerA))
		s.Require().NoError(err)
		s.Equal(document.StatusPending, res.Document.Status)
		s.Equal(s.signerA.id, res.Record.Signer)
		s.NotZero(res.Record.LedgerReceipt.Sequence)
		s.False(res.Record.SignedAt.IsZero())
	})

	s.Run("signing twice fails with AlreadySigned", func() {
		_, err := s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, s.signerA))
		s.Require().True(dErrors.HasCode(err, dErrors.CodeAlreadySigned))
	})

	s.Run("last required signer completes the document", func() {
		res, err := s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, s.signerB))
		s.Require().NoError(err)
		s.Equal(document.StatusSigned, res.Document.Status)
		s.Require().NotNil(res.Document.SignedAt)
		s.Len(res.Document.Signatures, 2)
	})

	s.Run("no signing after completion", func() {
		extra := s.newSigner()
		_, err := s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, extra))
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestOwnerCanNeverSign() {
	ownerKeys := s.newSigner()
	s.owner = ownerKeys.id

	// Owner is even listed as a required signer; the rule still holds.
	doc := s.newPendingDoc(ownerKeys.id, s.signerA.id)

	_, err := s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, ownerKeys))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	got, err := s.store.Get(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Empty(got.Signatures)
}

func (s *ServiceSuite) TestUnlistedSignerRejected() {
	doc := s.newPendingDoc(s.signerA.id)
	stranger := s.newSigner()

	_, err := s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, stranger))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestDraftDocumentNotSignable() {
	doc := s.newPendingDoc(s.signerA.id)
	_, err := s.store.Update(context.Background(), doc.ID, func(d *document.Document) error {
		d.Status = document.StatusDraft
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, s.signerA))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestInvalidSignatureRejected() {
	doc := s.newPendingDoc(s.signerA.id)

	req := s.signRequest(doc, s.signerA)
	req.Signature[0] ^= 0xFF

	_, err := s.service.Sign(testutil.Context(s.T()), req)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))

	got, err := s.store.Get(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Empty(got.Signatures, "nothing recorded on verification failure")
	s.Zero(s.ledger.Len(), "nothing attested on verification failure")
}

func (s *ServiceSuite) TestUnverifiedSignerBlocked() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(s.store, s.ledger, NewEd25519Verifier(), s.keys, denyGate{},
		audit.NewPublisher(64, nil, logger), nil, logger)

	doc := s.newPendingDoc(s.signerA.id)
	_, err := svc.Sign(testutil.Context(s.T()), s.signRequest(doc, s.signerA))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestLedgerFailureCommitsNothing() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(s.store, failingLedger{}, NewEd25519Verifier(), s.keys, allowAllGate{},
		audit.NewPublisher(64, nil, logger), nil, logger)

	doc := s.newPendingDoc(s.signerA.id)

	_, err := svc.Sign(testutil.Context(s.T()), s.signRequest(doc, s.signerA))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	got, err := s.store.Get(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Empty(got.Signatures, "signature and attestation commit as a unit")
	s.Equal(document.StatusPending, got.Status)
}

func (s *ServiceSuite) TestConcurrentSigners() {
	doc := s.newPendingDoc(s.signerA.id, s.signerB.id)

	reqA := s.signRequest(doc, s.signerA)
	reqB := s.signRequest(doc, s.signerB)

	var g errgroup.Group
	g.Go(func() error {
		_, err := s.service.Sign(context.Background(), reqA)
		return err
	})
	g.Go(func() error {
		_, err := s.service.Sign(context.Background(), reqB)
		return err
	})
	s.Require().NoError(g.Wait())

	got, err := s.store.Get(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Len(got.Signatures, 2)
	s.Equal(document.StatusSigned, got.Status, "completion observes the combined set")
}

func (s *ServiceSuite) TestDuplicateRaceYieldsSingleRecord() {
	doc := s.newPendingDoc(s.signerA.id, s.signerB.id)
	req := s.signRequest(doc, s.signerA)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := s.service.Sign(context.Background(), req)
			results <- err
		}()
	}
	err1, err2 := <-results, <-results

	var failures int
	for _, err := range []error{err1, err2} {
		if err != nil {
			s.Require().True(dErrors.HasCode(err, dErrors.CodeAlreadySigned))
			failures++
		}
	}
	s.Equal(1, failures, "exactly one of the racing attempts wins")

	got, err := s.store.Get(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Len(got.Signatures, 1)
}

func (s *ServiceSuite) TestGenerateSigningData() {
	doc := s.newPendingDoc(s.signerA.id)

	data, err := s.service.GenerateSigningData(testutil.Context(s.T()), doc.ID, s.signerA.id)
	s.Require().NoError(err)
	s.Equal(doc.ContentHash, data.ContentHash)
	s.Equal(doc.ID.String(), data.DocumentID)
	s.Equal(s.signerA.id.String(), data.SignerID)
	s.NotZero(data.Timestamp)

	_, err = s.service.GenerateSigningData(testutil.Context(s.T()), doc.ID, s.owner)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.GenerateSigningData(testutil.Context(s.T()), domain.NewDocumentID(), s.signerA.id)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestVerifyAndHistory() {
	doc := s.newPendingDoc(s.signerA.id)
	_, err := s.service.Sign(testutil.Context(s.T()), s.signRequest(doc, s.signerA))
	s.Require().NoError(err)

	s.Run("recorded signature is attested", func() {
		status, err := s.service.Verify(testutil.Context(s.T()), doc.ID, s.signerA.id)
		s.Require().NoError(err)
		s.True(status.Attested)
		s.NotZero(status.Receipt.Sequence)
	})

	s.Run("unknown signer has no record", func() {
		_, err := s.service.Verify(testutil.Context(s.T()), doc.ID, s.signerB.id)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("history visible to participants only", func() {
		records, err := s.service.History(testutil.Context(s.T()), doc.ID, s.owner)
		s.Require().NoError(err)
		s.Len(records, 1)

		_, err = s.service.History(testutil.Context(s.T()), doc.ID, domain.NewUserID())
		s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
