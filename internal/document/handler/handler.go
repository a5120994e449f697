// Package handler exposes the document workflow over HTTP. It stays thin:
// request decoding, authentication context and response shaping only, with
// every decision delegated to the document service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"docsign/internal/document"
	"docsign/internal/platform/middleware"
	"docsign/internal/transport/http/shared"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
)

// Service defines the document operations the handler relies on.
type Service interface {
	Create(ctx context.Context, p document.CreateParams) (*document.Document, error)
	Get(ctx context.Context, id domain.DocumentID, actor domain.UserID) (*document.Document, error)
	Submit(ctx context.Context, id domain.DocumentID, actor domain.UserID) (*document.Document, error)
	Cancel(ctx context.Context, id domain.DocumentID, actor domain.UserID) (*document.Document, error)
	Delete(ctx context.Context, id domain.DocumentID, actor domain.UserID) error
	UpdateMetadata(ctx context.Context, id domain.DocumentID, actor domain.UserID, metadata document.Metadata) (*document.Document, error)
	ListByOwner(ctx context.Context, owner domain.UserID) ([]*document.Document, error)
	ListPendingForSigner(ctx context.Context, signer domain.UserID) ([]*document.Document, error)
}

// Handler handles document endpoints.
type Handler struct {
	logger        *slog.Logger
	documents     Service
	jwtValidator  middleware.JWTValidator
	maxUploadSize int64
}

func New(documents Service, logger *slog.Logger, jwtValidator middleware.JWTValidator, maxUploadSize int64) *Handler {
	return &Handler{
		logger:        logger,
		documents:     documents,
		jwtValidator:  jwtValidator,
		maxUploadSize: maxUploadSize,
	}
}

// Register registers the document routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/documents", h.handleCreate)
		r.Get("/documents", h.handleListOwned)
		r.Get("/documents/pending", h.handleListPending)
		r.Get("/documents/{documentID}", h.handleGet)
		r.Patch("/documents/{documentID}", h.handleUpdateMetadata)
		r.Delete("/documents/{documentID}", h.handleDelete)
		r.Post("/documents/{documentID}/submit", h.handleSubmit)
		r.Post("/documents/{documentID}/cancel", h.handleCancel)
	})
}

// handleCreate accepts a multipart upload: the document content under
// "content" plus metadata and signer list fields.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromContext(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		h.logger.WarnContext(ctx, "invalid multipart upload",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid multipart request body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	title := r.FormValue("title")
	if !govalidator.StringLength(title, "1", "255") {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "title must be between 1 and 255 characters"))
		return
	}
	description := r.FormValue("description")
	if !govalidator.StringLength(description, "0", "2000") {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "description must be at most 2000 characters"))
		return
	}

	required, err := parseSignerList(r.MultipartForm.Value["required_signers"])
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	optional, err := parseSignerList(r.MultipartForm.Value["optional_signers"])
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	content, _, err := r.FormFile("content")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "document content file is required"))
		return
	}
	defer content.Close()

	doc, err := h.documents.Create(ctx, document.CreateParams{
		Owner:           actor,
		Content:         content,
		Metadata:        document.Metadata{Title: title, Description: description},
		RequiredSigners: required,
		OptionalSigners: optional,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "create document", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleListOwned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	docs, err := h.documents.ListByOwner(ctx, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "list documents", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFromContext(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	docs, err := h.documents.ListPendingForSigner(ctx, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "list pending documents", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.documents.Get(ctx, id, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "get document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var metadata document.Metadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if !govalidator.StringLength(metadata.Title, "1", "255") {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "title must be between 1 and 255 characters"))
		return
	}

	doc, err := h.documents.UpdateMetadata(ctx, id, actor, metadata)
	if err != nil {
		h.writeServiceError(ctx, w, "update metadata", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.documents.Delete(ctx, id, actor); err != nil {
		h.writeServiceError(ctx, w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.documents.Submit(ctx, id, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "submit document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, id, err := actorAndDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.documents.Cancel(ctx, id, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "cancel document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "document operation failed",
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

func parseSignerList(values []string) ([]domain.UserID, error) {
	var signers []domain.UserID
	for _, raw := range values {
		if !govalidator.IsUUID(raw) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "signer ids must be UUIDs")
		}
		id, err := domain.ParseUserID(raw)
		if err != nil {
			return nil, err
		}
		signers = append(signers, id)
	}
	return signers, nil
}
