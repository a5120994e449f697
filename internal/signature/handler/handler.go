// Package handler exposes signature collection over HTTP.
package handler

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docsign/internal/ledger"
	"docsign/internal/platform/middleware"
	"docsign/internal/signature"
	"docsign/internal/transport/http/shared"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
)

// Service defines the signing operations the handler relies on.
type Service interface {
	Sign(ctx context.Context, req signature.SignRequest) (signature.SignResult, error)
	GenerateSigningData(ctx context.Context, id domain.DocumentID, signer domain.UserID) (signature.SigningData, error)
	Verify(ctx context.Context, id domain.DocumentID, signer domain.UserID) (signature.VerificationStatus, error)
	History(ctx context.Context, id domain.DocumentID, actor domain.UserID) ([]ledger.Record, error)
}

// KeyRegistry accepts signer public keys.
type KeyRegistry interface {
	Register(signer domain.UserID, key ed25519.PublicKey)
}

// Handler handles signature endpoints.
type Handler struct {
	logger       *slog.Logger
	signatures   Service
	keys         KeyRegistry
	jwtValidator middleware.JWTValidator
}

func New(signatures Service, keys KeyRegistry, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		signatures:   signatures,
		keys:         keys,
		jwtValidator: jwtValidator,
	}
}

// Register registers the signature routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/signing-keys", h.handleRegisterKey)
		r.Get("/documents/{documentID}/signing-data", h.handleSigningData)
		r.Post("/documents/{documentID}/signatures", h.handleSign)
		r.Get("/documents/{documentID}/signatures/{signerID}/verify", h.handleVerify)
		r.Get("/documents/{documentID}/attestations", h.handleHistory)
	})
}

type registerKeyRequest struct {
	PublicKey string `json:"publicKey"`
}

// handleRegisterKey stores the authenticated user's ed25519 public key,
// base64 encoded in the request body.
func (h *Handler) handleRegisterKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req registerKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	key, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "publicKey must be a base64 ed25519 public key"))
		return
	}

	h.keys.Register(actor, ed25519.PublicKey(key))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSigningData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	data, err := h.signatures.GenerateSigningData(ctx, id, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "generate signing data", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, data)
}

type signRequest struct {
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// handleSign accepts the signer's ed25519 signature over the canonical
// signing payload, base64 encoded.
func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "signature must be base64 encoded"))
		return
	}

	result, err := h.signatures.Sign(ctx, signature.SignRequest{
		DocumentID: id,
		Signer:     actor,
		Timestamp:  req.Timestamp,
		Signature:  sig,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "sign document", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	signer, err := domain.ParseUserID(chi.URLParam(r, "signerID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	status, err := h.signatures.Verify(ctx, id, signer)
	if err != nil {
		h.writeServiceError(ctx, w, "verify signature", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	records, err := h.signatures.History(ctx, id, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "attestation history", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeLedgerUnavailable {
		h.logger.ErrorContext(ctx, "signature operation failed",
			"request_id", middleware.GetRequestID(ctx),
			"operation", op,
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}

func actorFromContext(ctx context.Context) (domain.UserID, error) {
	raw := middleware.GetUserID(ctx)
	if raw == "" {
		return domain.UserID{}, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return domain.ParseUserID(raw)
}

func actorAndDocument(r *http.Request) (domain.UserID, domain.DocumentID, error) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		return domain.UserID{}, domain.DocumentID{}, err
	}
	id, err := domain.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		return domain.UserID{}, domain.DocumentID{}, err
	}
	return actor, id, nil
}
