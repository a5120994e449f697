package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"docsign/pkg/domain"
	"docsign/pkg/platform/sentinel"
)

// Schema creates the documents table. Applied by integration tests and by
// deployment tooling; the store itself never runs DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    id               UUID PRIMARY KEY,
    owner_id         UUID NOT NULL,
    status           TEXT NOT NULL,
    content_hash     TEXT NOT NULL,
    content_path     TEXT NOT NULL DEFAULT '',
    metadata         JSONB NOT NULL DEFAULT '{}',
    required_signers UUID[] NOT NULL DEFAULT '{}',
    optional_signers UUID[] NOT NULL DEFAULT '{}',
    signatures       JSONB NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ NOT NULL,
    submitted_at     TIMESTAMPTZ,
    signed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents (owner_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);
`

// PostgresStore persists documents in PostgreSQL. Update serializes
// per-document mutation with SELECT ... FOR UPDATE inside a transaction,
// which gives the same single-writer guarantee the memory store gets from
// its per-document mutex.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `id, owner_id, status, content_hash, content_path, metadata,
	required_signers, optional_signers, signatures, created_at, submitted_at, signed_at`

func (s *PostgresStore) Create(ctx context.Context, doc *Document) error {
	metadata, signatures, err := marshalDocumentJSON(doc)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		doc.ID.String(), doc.Owner.String(), string(doc.Status), doc.ContentHash,
		doc.ContentPath, metadata, signerArray(doc.RequiredSigners),
		signerArray(doc.OptionalSigners), signatures, doc.CreatedAt,
		doc.SubmittedAt, doc.SignedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.DocumentID) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Update(ctx context.Context, id domain.DocumentID, mutate func(*Document) error) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock document: %w", err)
	}

	if err := mutate(doc); err != nil {
		return nil, err
	}

	metadata, signatures, err := marshalDocumentJSON(doc)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, metadata = $3, required_signers = $4, optional_signers = $5,
		    signatures = $6, submitted_at = $7, signed_at = $8
		WHERE id = $1`,
		doc.ID.String(), string(doc.Status), metadata,
		signerArray(doc.RequiredSigners), signerArray(doc.OptionalSigners),
		signatures, doc.SubmittedAt, doc.SignedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.DocumentID, check func(*Document) error) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock document: %w", err)
	}

	if err := check(doc); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id.String()); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner domain.UserID) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE owner_id = $1
		ORDER BY created_at, id`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list documents by owner: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) ListPendingForSigner(ctx context.Context, signer domain.UserID) ([]*Document, error) {
	// Membership in either signer list is checked in SQL; the not-yet-signed
	// and owner-exclusion rules are re-checked in Go against the decoded
	// signature list so the contract matches the memory store exactly.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1
		  AND owner_id <> $2
		  AND ($2 = ANY(required_signers) OR $2 = ANY(optional_signers))
		ORDER BY created_at, id`,
		string(StatusPending), signer.String())
	if err != nil {
		return nil, fmt.Errorf("list pending for signer: %w", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		if !doc.HasSigned(signer) {
			out = append(out, doc)
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc             Document
		idRaw, ownerRaw string
		status          string
		metadataRaw     []byte
		signaturesRaw   []byte
		requiredRaw     pq.StringArray
		optionalRaw     pq.StringArray
		submittedAt     sql.NullTime
		signedAt        sql.NullTime
	)
	err := row.Scan(&idRaw, &ownerRaw, &status, &doc.ContentHash, &doc.ContentPath,
		&metadataRaw, &requiredRaw, &optionalRaw, &signaturesRaw,
		&doc.CreatedAt, &submittedAt, &signedAt)
	if err != nil {
		return nil, err
	}

	if doc.ID, err = domain.ParseDocumentID(idRaw); err != nil {
		return nil, fmt.Errorf("decode document id: %w", err)
	}
	if doc.Owner, err = domain.ParseUserID(ownerRaw); err != nil {
		return nil, fmt.Errorf("decode owner id: %w", err)
	}
	doc.Status = Status(status)

	if err := json.Unmarshal(metadataRaw, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal(signaturesRaw, &doc.Signatures); err != nil {
		return nil, fmt.Errorf("decode signatures: %w", err)
	}
	if doc.RequiredSigners, err = parseSigners(requiredRaw); err != nil {
		return nil, err
	}
	if doc.OptionalSigners, err = parseSigners(optionalRaw); err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		doc.SubmittedAt = &t
	}
	if signedAt.Valid {
		t := signedAt.Time
		doc.SignedAt = &t
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*Document, error) {
	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func parseSigners(raw pq.StringArray) ([]domain.UserID, error) {
	var out []domain.UserID
	for _, s := range raw {
		id, err := domain.ParseUserID(s)
		if err != nil {
			return nil, fmt.Errorf("decode signer id: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

func signerArray(ids []domain.UserID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func marshalDocumentJSON(doc *Document) (metadata, signatures []byte, err error) {
	if metadata, err = json.Marshal(doc.Metadata); err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	if signatures, err = json.Marshal(doc.Signatures); err != nil {
		return nil, nil, fmt.Errorf("encode signatures: %w", err)
	}
	return metadata, signatures, nil
}
