// Package audit captures structured workflow events. Emission is
// non-blocking and fail-open: losing an audit event must never fail the
// operation that produced it, unlike attestation ledger writes.
package audit

import "time"

// Action names the operation an event records.
type Action string

const (
	ActionDocumentCreated   Action = "document.created"
	ActionDocumentSubmitted Action = "document.submitted"
	ActionDocumentDeleted   Action = "document.deleted"
	ActionDocumentCancelled Action = "document.cancelled"
	ActionDocumentExpired   Action = "document.expired"
	ActionDocumentSigned    Action = "document.signed"
	ActionDocumentCompleted Action = "document.completed"
	ActionSignatureRejected Action = "signature.rejected"
	ActionIdentityVerified  Action = "identity.verified"
	ActionIdentityRejected  Action = "identity.rejected"
)

// Category groups actions for downstream consumers.
type Category string

const (
	CategoryDocument  Category = "document"
	CategorySignature Category = "signature"
	CategoryIdentity  Category = "identity"
)

var actionCategories = map[Action]Category{
	ActionDocumentCreated:   CategoryDocument,
	ActionDocumentSubmitted: CategoryDocument,
	ActionDocumentDeleted:   CategoryDocument,
	ActionDocumentCancelled: CategoryDocument,
	ActionDocumentExpired:   CategoryDocument,
	ActionDocumentSigned:    CategorySignature,
	ActionDocumentCompleted: CategoryDocument,
	ActionSignatureRejected: CategorySignature,
	ActionIdentityVerified:  CategoryIdentity,
	ActionIdentityRejected:  CategoryIdentity,
}

// Category resolves the action's category, defaulting to document.
func (a Action) Category() Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryDocument
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Category   Category  `json:"category"`
	ActorID    string    `json:"actorId,omitempty"`
	SubjectID  string    `json:"subjectId,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
}
