// Package signature collects cryptographic signatures on pending
// documents: it verifies the signer's payload, writes the attestation to
// the ledger and appends the signature record, all inside the document's
// critical section.
package signature

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"docsign/pkg/domain"
)

// SigningData is what a signer is expected to sign. Timestamp is supplied
// by the signer and carried in the signed bytes so a payload cannot be
// replayed onto a different signing request silently.
type SigningData struct {
	ContentHash string `json:"contentHash"`
	DocumentID  string `json:"documentId"`
	SignerID    string `json:"signerId"`
	Timestamp   int64  `json:"timestamp"`
}

// CanonicalPayload serializes signing data deterministically. Fields are
// emitted in lexical key order, which encoding/json guarantees for struct
// fields declared in that order; both signer and verifier must produce
// byte-identical output.
func CanonicalPayload(d SigningData) ([]byte, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode signing payload: %w", err)
	}
	return payload, nil
}

// HashPayload returns the SHA-256 hex digest of a signature payload,
// stored alongside the raw blob and attested to the ledger.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Verifier checks a signer's signature over the canonical payload.
type Verifier interface {
	Verify(publicKey ed25519.PublicKey, data SigningData, sig []byte) (bool, error)
}

// Ed25519Verifier verifies detached Ed25519 signatures.
type Ed25519Verifier struct{}

func NewEd25519Verifier() Ed25519Verifier { return Ed25519Verifier{} }

func (Ed25519Verifier) Verify(publicKey ed25519.PublicKey, data SigningData, sig []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	payload, err := CanonicalPayload(data)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(publicKey, payload, sig), nil
}

// KeyDirectory resolves a signer's registered public key.
type KeyDirectory interface {
	PublicKey(signer domain.UserID) (ed25519.PublicKey, error)
}

// StaticKeyDirectory is an in-memory key directory. Registration is served
// live over the API, so lookups and writes are guarded by a lock.
type StaticKeyDirectory struct {
	mu   sync.RWMutex
	keys map[domain.UserID]ed25519.PublicKey
}

func NewStaticKeyDirectory() *StaticKeyDirectory {
	return &StaticKeyDirectory{keys: make(map[domain.UserID]ed25519.PublicKey)}
}

func (d *StaticKeyDirectory) Register(signer domain.UserID, key ed25519.PublicKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[signer] = key
}

func (d *StaticKeyDirectory) PublicKey(signer domain.UserID) (ed25519.PublicKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.keys[signer]
	if !ok {
		return nil, fmt.Errorf("no public key registered for %s", signer)
	}
	return key, nil
}
