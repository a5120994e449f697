package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"docsign/internal/validation"
	"docsign/pkg/domain"
	"docsign/pkg/platform/sentinel"
)

// Schema creates the identity_verifications table. The subject primary key
// is what makes verification one-way even across nodes: a second insert for
// the same subject violates uniqueness no matter which process issues it.
const Schema = `
CREATE TABLE IF NOT EXISTS identity_verifications (
    subject             UUID PRIMARY KEY,
    document_type       TEXT NOT NULL,
    document_number     TEXT NOT NULL,
    date_of_birth       TEXT NOT NULL,
    nationality         TEXT NOT NULL,
    full_name           TEXT NOT NULL,
    report              JSONB NOT NULL,
    receipt_id          TEXT NOT NULL,
    receipt_sequence    BIGINT NOT NULL,
    receipt_hash        TEXT NOT NULL,
    receipt_recorded_at TIMESTAMPTZ NOT NULL,
    verified_at         TIMESTAMPTZ NOT NULL
);
`

// PostgresStore persists verification records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const verificationColumns = `subject, document_type, document_number, date_of_birth,
	nationality, full_name, report, receipt_id, receipt_sequence, receipt_hash,
	receipt_recorded_at, verified_at`

func (s *PostgresStore) Create(ctx context.Context, record *VerificationRecord) error {
	report, err := json.Marshal(record.Report)
	if err != nil {
		return fmt.Errorf("marshal validation report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identity_verifications (`+verificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.Subject.String(), string(record.DocumentType), record.DocumentNumber,
		record.DateOfBirth, record.Nationality, record.FullName, report,
		record.LedgerReceipt.ReceiptID, int64(record.LedgerReceipt.Sequence),
		record.LedgerReceipt.ContentHash, record.LedgerReceipt.RecordedAt,
		record.VerifiedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("subject %s: %w", record.Subject, sentinel.ErrConflict)
		}
		return fmt.Errorf("create verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subject domain.UserID) (*VerificationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM identity_verifications WHERE subject = $1`,
		subject.String())

	var (
		record     VerificationRecord
		subjectRaw string
		docType    string
		reportRaw  []byte
		sequence   int64
	)
	err := row.Scan(&subjectRaw, &docType, &record.DocumentNumber, &record.DateOfBirth,
		&record.Nationality, &record.FullName, &reportRaw,
		&record.LedgerReceipt.ReceiptID, &sequence, &record.LedgerReceipt.ContentHash,
		&record.LedgerReceipt.RecordedAt, &record.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %s: %w", subject, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get verification record: %w", err)
	}

	record.Subject, err = domain.ParseUserID(subjectRaw)
	if err != nil {
		return nil, fmt.Errorf("stored subject id: %w", err)
	}
	record.DocumentType = domain.DocumentType(docType)
	record.LedgerReceipt.Sequence = uint64(sequence)
	var report validation.Report
	if err := json.Unmarshal(reportRaw, &report); err != nil {
		return nil, fmt.Errorf("stored validation report: %w", err)
	}
	record.Report = report
	return &record, nil
}
