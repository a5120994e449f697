package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"docsign/pkg/domain"
)

func TestCanonicalPayload(t *testing.T) {
	data := SigningData{
		ContentHash: "abc",
		DocumentID:  "doc-1",
		SignerID:    "user-1",
		Timestamp:   1700000000,
	}

	payload, err := CanonicalPayload(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"contentHash":"abc","documentId":"doc-1","signerId":"user-1","timestamp":1700000000}`, string(payload))

	again, err := CanonicalPayload(data)
	require.NoError(t, err)
	assert.Equal(t, payload, again, "payload must be byte-stable")
}

func TestEd25519Verifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	data := SigningData{ContentHash: "abc", DocumentID: "d", SignerID: "s", Timestamp: 1}
	payload, err := CanonicalPayload(data)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, payload)

	v := NewEd25519Verifier()

	t.Run("valid signature verifies", func(t *testing.T) {
		ok, err := v.Verify(pub, data, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("tampered data fails", func(t *testing.T) {
		tampered := data
		tampered.ContentHash = "xyz"
		ok, err := v.Verify(pub, tampered, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		otherPub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		ok, err := v.Verify(otherPub, data, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed key errors", func(t *testing.T) {
		_, err := v.Verify([]byte("short"), data, sig)
		assert.Error(t, err)
	})
}

func TestStaticKeyDirectory(t *testing.T) {
	dir := NewStaticKeyDirectory()
	signer := domain.NewUserID()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = dir.PublicKey(signer)
	assert.Error(t, err, "unregistered signer has no key")

	dir.Register(signer, pub)
	got, err := dir.PublicKey(signer)
	require.NoError(t, err)
	assert.Equal(t, pub, got)
}

func TestStaticKeyDirectory_ConcurrentRegisterAndLookup(t *testing.T) {
	dir := NewStaticKeyDirectory()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signers := make([]domain.UserID, 64)
	for i := range signers {
		signers[i] = domain.NewUserID()
	}

	var g errgroup.Group
	for _, signer := range signers {
		g.Go(func() error {
			dir.Register(signer, pub)
			return nil
		})
		g.Go(func() error {
			// The lookup may race the registration; the key itself is
			// asserted after the group finishes.
			_, _ = dir.PublicKey(signer)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, signer := range signers {
		got, err := dir.PublicKey(signer)
		require.NoError(t, err)
		assert.Equal(t, pub, got)
	}
}
