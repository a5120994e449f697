// Package ledger provides an append-only attestation ledger. Entries are
// immutable once appended and every append yields a receipt carrying a
// monotonically increasing sequence number and a content hash chained to
// the previous entry.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EntityType classifies what an attestation refers to.
type EntityType string

const (
	EntitySignature    EntityType = "signature"
	EntityVerification EntityType = "verification"
)

// Entry is the material submitted for attestation. PayloadHash is the
// caller-computed SHA-256 of whatever the entry attests to; the ledger
// never sees the underlying payload.
type Entry struct {
	EntityType  EntityType
	EntityID    string
	PayloadHash string
	Submitter   string
}

// Receipt proves an entry was recorded. ContentHash chains this entry
// to the previous one so tampering with history is detectable.
type Receipt struct {
	ReceiptID   string    `json:"receiptId"`
	Sequence    uint64    `json:"sequence"`
	ContentHash string    `json:"contentHash"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Ledger is the attestation store. Append is atomic: either the entry is
// durably recorded and a receipt returned, or nothing is recorded.
type Ledger interface {
	Append(ctx context.Context, entry Entry) (Receipt, error)
	Find(ctx context.Context, entityType EntityType, entityID string) ([]Record, error)
}

// Record is a recorded entry joined with its receipt, as returned by Find.
type Record struct {
	Entry   Entry
	Receipt Receipt
}

// chainHash derives the content hash for an entry given the hash of the
// entry before it. The genesis entry chains from the empty string.
func chainHash(prev string, seq uint64, e Entry, at time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s|%s|%d",
		prev, seq, e.EntityType, e.EntityID, e.PayloadHash, e.Submitter, at.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}
