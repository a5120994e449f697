package identity

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"docsign/internal/audit"
	"docsign/internal/ledger"
	"docsign/internal/validation"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
	"docsign/pkg/testutil"
)

// failingLedger refuses every append, simulating an unreachable backend.
type failingLedger struct{}

func (failingLedger) Append(context.Context, ledger.Entry) (ledger.Receipt, error) {
	return ledger.Receipt{}, errors.New("ledger unreachable")
}

func (failingLedger) Find(context.Context, ledger.EntityType, string) ([]ledger.Record, error) {
	return nil, errors.New("ledger unreachable")
}

// scriptedValidator returns a fixed report, counting invocations.
type scriptedValidator struct {
	report validation.Report
	calls  atomic.Int64
}

func (v *scriptedValidator) ValidateDocument(context.Context, string, validation.Declared) (validation.Report, error) {
	v.calls.Add(1)
	return v.report, nil
}

type ServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	ledger  *ledger.MemoryLedger
	service *Service
	logger  *slog.Logger
}

func (s *ServiceSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s.store = NewMemoryStore()
	s.ledger = ledger.NewMemoryLedger()
	// No OCR backend configured, so documents are scored by the
	// completeness fallback.
	validator := validation.New(nil, 0.70, s.logger)
	s.service = NewService(s.store, validator, s.ledger,
		audit.NewPublisher(64, nil, s.logger), nil, s.logger)
}

func completeRequest(subject domain.UserID) VerifyRequest {
	return VerifyRequest{
		Subject:      subject,
		DocumentPath: "/uploads/passport.png",
		Declared: validation.Declared{
			DocumentType:   domain.DocumentTypePassport,
			DocumentNumber: "P12345678",
			DateOfBirth:    "1990-05-15",
			Nationality:    "German",
			FullName:       "Anna Schmidt",
		},
	}
}

func (s *ServiceSuite) TestVerifyFallbackPass() {
	ctx := testutil.Context(s.T())
	subject := domain.NewUserID()

	result, err := s.service.Verify(ctx, completeRequest(subject))
	s.Require().NoError(err)
	s.Require().NotNil(result.Record)

	s.Equal(validation.MethodFallback, result.Report.Method)
	s.InDelta(0.9, result.Report.OverallScore, 1e-9)
	s.True(result.Report.Valid)
	s.Equal(subject, result.Record.Subject)
	s.NotEmpty(result.Record.LedgerReceipt.ReceiptID)
	s.Equal(uint64(1), result.Record.LedgerReceipt.Sequence)

	verified, err := s.service.IsVerified(ctx, subject)
	s.Require().NoError(err)
	s.True(verified)

	status, err := s.service.Status(ctx, subject)
	s.Require().NoError(err)
	s.Equal(result.Record.LedgerReceipt, status.LedgerReceipt)

	records, err := s.ledger.Find(ctx, ledger.EntityVerification, subject.String())
	s.Require().NoError(err)
	s.Len(records, 1)
	s.Equal(subject.String(), records[0].Entry.Submitter)
}

func (s *ServiceSuite) TestVerifyIsOneWay() {
	ctx := testutil.Context(s.T())
	subject := domain.NewUserID()

	_, err := s.service.Verify(ctx, completeRequest(subject))
	s.Require().NoError(err)

	_, err = s.service.Verify(ctx, completeRequest(subject))
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))
	s.Equal(1, s.ledger.Len())
}

func (s *ServiceSuite) TestVerifyFailsOnWeakDeclaredData() {
	ctx := testutil.Context(s.T())
	subject := domain.NewUserID()

	req := completeRequest(subject)
	req.Declared.DocumentNumber = "P12"
	req.Declared.FullName = "Anna"
	req.Declared.DateOfBirth = "15/05/1990"

	result, err := s.service.Verify(ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidationFailed))
	s.Equal(validation.MethodFallback, result.Report.Method)
	s.InDelta(0.6, result.Report.OverallScore, 1e-9)
	s.False(result.Report.Valid)

	verified, err := s.service.IsVerified(ctx, subject)
	s.Require().NoError(err)
	s.False(verified)
	s.Equal(0, s.ledger.Len())
}

func (s *ServiceSuite) TestLedgerFailureCommitsNothing() {
	ctx := testutil.Context(s.T())
	subject := domain.NewUserID()

	svc := NewService(s.store, validation.New(nil, 0.70, s.logger), failingLedger{},
		audit.NewPublisher(64, nil, s.logger), nil, s.logger)

	_, err := svc.Verify(ctx, completeRequest(subject))
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	verified, err := svc.IsVerified(ctx, subject)
	s.Require().NoError(err)
	s.False(verified)
}

func (s *ServiceSuite) TestConcurrentVerifyYieldsOneRecord() {
	ctx := testutil.Context(s.T())
	subject := domain.NewUserID()

	var succeeded, alreadyVerified atomic.Int64
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := s.service.Verify(ctx, completeRequest(subject))
			switch {
			case err == nil:
				succeeded.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyVerified):
				alreadyVerified.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int64(1), succeeded.Load())
	s.Equal(int64(7), alreadyVerified.Load())
	s.Equal(1, s.ledger.Len())
}

func (s *ServiceSuite) TestVerifyRecordsOCRMethod() {
	ctx := testutil.Context(s.T())
	subject := domain.NewUserID()

	validator := &scriptedValidator{report: validation.Report{
		Method:       validation.MethodOCR,
		OverallScore: 0.83,
		Valid:        true,
	}}
	svc := NewService(s.store, validator, s.ledger,
		audit.NewPublisher(64, nil, s.logger), nil, s.logger)

	result, err := svc.Verify(ctx, completeRequest(subject))
	s.Require().NoError(err)
	s.Equal(validation.MethodOCR, result.Record.Report.Method)
	s.Equal(int64(1), validator.calls.Load())
}

func (s *ServiceSuite) TestVerifyRejectsIncompleteRequests() {
	ctx := testutil.Context(s.T())

	cases := map[string]func(*VerifyRequest){
		"missing subject":         func(r *VerifyRequest) { r.Subject = domain.UserID{} },
		"missing document":        func(r *VerifyRequest) { r.DocumentPath = "" },
		"unknown document type":   func(r *VerifyRequest) { r.Declared.DocumentType = "library_card" },
		"missing document number": func(r *VerifyRequest) { r.Declared.DocumentNumber = "" },
		"missing date of birth":   func(r *VerifyRequest) { r.Declared.DateOfBirth = "" },
		"missing full name":       func(r *VerifyRequest) { r.Declared.FullName = "" },
	}
	for name, mutate := range cases {
		req := completeRequest(domain.NewUserID())
		mutate(&req)
		_, err := s.service.Verify(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), name)
	}
}

func (s *ServiceSuite) TestCertificateIsDeterministic() {
	ctx := testutil.Context(s.T())
	subject := domain.NewUserID()

	_, err := s.service.Verify(ctx, completeRequest(subject))
	s.Require().NoError(err)

	first, err := s.service.Certificate(ctx, subject)
	s.Require().NoError(err)
	second, err := s.service.Certificate(ctx, subject)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Regexp(`^cert-[0-9a-f]{32}$`, first.CertificateID)
	s.Equal(validation.MethodFallback, first.Method)

	_, err = s.service.Certificate(ctx, domain.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
