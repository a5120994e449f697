// Package domain holds the typed identifiers and small value types shared
// across the workflow engine. Typed UUIDs keep a user reference from being
// passed where a document reference belongs; the compiler enforces it.
package domain

import (
	"github.com/google/uuid"

	dErrors "docsign/pkg/domain-errors"
)

// UserID identifies an account: a document owner, a signer, or a
// verification subject.
type UserID uuid.UUID

// DocumentID identifies a document in the signing workflow.
type DocumentID uuid.UUID

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// ParseUserID constructs a UserID from external input.
//
// Invariant: IDs must be valid, non-nil UUIDs. Construct via Parse at trust
// boundaries; direct casting bypasses validation.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseDocumentID constructs a DocumentID from external input.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DocumentID{}, err
	}
	return DocumentID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil uuid")
	}
	return u, nil
}

func (u UserID) String() string     { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool        { return uuid.UUID(u) == uuid.Nil }
func (d DocumentID) String() string { return uuid.UUID(d).String() }
func (d DocumentID) IsNil() bool    { return uuid.UUID(d) == uuid.Nil }

// Text marshaling keeps the canonical string form in JSON bodies and logs.

func (u UserID) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (d DocumentID) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
