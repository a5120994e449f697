// Package document owns the signing workflow state machine: lifecycle
// transitions, signer authorization and the append-only signature list.
package document

import (
	"time"

	"docsign/internal/ledger"
	"docsign/pkg/domain"
)

// Status is the single source of truth for workflow state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusSigned    Status = "signed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSigned || s == StatusExpired || s == StatusCancelled
}

// SignerRole is the outcome of an authorization check.
type SignerRole string

const (
	RoleRequired     SignerRole = "required"
	RoleOptional     SignerRole = "optional"
	RoleUnauthorized SignerRole = "unauthorized"
)

// Metadata is owner-supplied descriptive data, mutable only in draft.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Signature is one signer's attestation on a document. Records are created
// once per (document, signer) pair and never mutated or removed.
type Signature struct {
	Signer        domain.UserID  `json:"signer"`
	Payload       []byte         `json:"payload"`
	PayloadHash   string         `json:"payloadHash"`
	LedgerReceipt ledger.Receipt `json:"ledgerReceipt"`
	SignedAt      time.Time      `json:"signedAt"`
}

// Document is the aggregate the workflow engine mutates. All mutation goes
// through Store.Update so per-document changes serialize.
type Document struct {
	ID          domain.DocumentID `json:"id"`
	Owner       domain.UserID     `json:"owner"`
	Status      Status            `json:"status"`
	ContentHash string            `json:"contentHash"`
	ContentPath string            `json:"-"`
	Metadata    Metadata          `json:"metadata"`

	RequiredSigners []domain.UserID `json:"requiredSigners"`
	OptionalSigners []domain.UserID `json:"optionalSigners,omitempty"`
	Signatures      []Signature     `json:"signatures"`

	CreatedAt   time.Time  `json:"createdAt"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	SignedAt    *time.Time `json:"signedAt,omitempty"`
}

// AuthorizeSigner classifies an identity's signing role on the document.
// The owner is always unauthorized regardless of list membership: ownership
// and attestation are conflicting roles and the rule is non-overridable.
func (d *Document) AuthorizeSigner(id domain.UserID) SignerRole {
	if id == d.Owner {
		return RoleUnauthorized
	}
	for _, s := range d.RequiredSigners {
		if s == id {
			return RoleRequired
		}
	}
	for _, s := range d.OptionalSigners {
		if s == id {
			return RoleOptional
		}
	}
	return RoleUnauthorized
}

// HasSigned reports whether the identity already holds a signature record.
func (d *Document) HasSigned(id domain.UserID) bool {
	for _, sig := range d.Signatures {
		if sig.Signer == id {
			return true
		}
	}
	return false
}

// IsFullySigned reports whether every required signer has signed. Optional
// signers never affect completion.
func (d *Document) IsFullySigned() bool {
	for _, required := range d.RequiredSigners {
		if !d.HasSigned(required) {
			return false
		}
	}
	return true
}

// CompletionPercentage reports required-signer progress in [0, 100]. A
// document without required signers is complete by definition.
func (d *Document) CompletionPercentage() float64 {
	if len(d.RequiredSigners) == 0 {
		return 100
	}
	var signed int
	for _, required := range d.RequiredSigners {
		if d.HasSigned(required) {
			signed++
		}
	}
	return float64(signed) / float64(len(d.RequiredSigners)) * 100
}

// Clone deep-copies the document so store callers can mutate a private
// copy before committing it.
func (d *Document) Clone() *Document {
	c := *d
	c.RequiredSigners = append([]domain.UserID(nil), d.RequiredSigners...)
	c.OptionalSigners = append([]domain.UserID(nil), d.OptionalSigners...)
	c.Signatures = append([]Signature(nil), d.Signatures...)
	if d.SubmittedAt != nil {
		t := *d.SubmittedAt
		c.SubmittedAt = &t
	}
	if d.SignedAt != nil {
		t := *d.SignedAt
		c.SignedAt = &t
	}
	return &c
}
