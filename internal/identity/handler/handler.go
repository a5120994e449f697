// Package handler exposes identity verification over HTTP.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"docsign/internal/identity"
	"docsign/internal/platform/middleware"
	"docsign/internal/transport/http/shared"
	"docsign/internal/validation"
	"docsign/pkg/domain"
	dErrors "docsign/pkg/domain-errors"
)

// Service defines the verification operations the handler relies on.
type Service interface {
	Verify(ctx context.Context, req identity.VerifyRequest) (identity.VerifyResult, error)
	Status(ctx context.Context, subject domain.UserID) (*identity.VerificationRecord, error)
	Certificate(ctx context.Context, subject domain.UserID) (identity.Certificate, error)
}

// Uploads persists a submitted proof document and returns where it landed.
type Uploads interface {
	Save(content io.Reader) (path string, hash string, err error)
}

// Handler handles identity endpoints.
type Handler struct {
	logger        *slog.Logger
	identities    Service
	uploads       Uploads
	jwtValidator  middleware.JWTValidator
	maxUploadSize int64
}

func New(identities Service, uploads Uploads, logger *slog.Logger, jwtValidator middleware.JWTValidator, maxUploadSize int64) *Handler {
	return &Handler{
		logger:        logger,
		identities:    identities,
		uploads:       uploads,
		jwtValidator:  jwtValidator,
		maxUploadSize: maxUploadSize,
	}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/identity/verify", h.handleVerify)
		r.Get("/identity/status", h.handleStatus)
		r.Get("/identity/certificate", h.handleCertificate)
	})
}

// verifyResponse pairs the verification outcome with the full validation
// report so clients can show per-field confidences either way.
type verifyResponse struct {
	Record *identity.VerificationRecord `json:"record,omitempty"`
	Report validation.Report            `json:"report"`
}

// handleVerify accepts a multipart request: the proof document under
// "document" plus the declared identity fields.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := subjectFromContext(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid multipart request body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	declared := validation.Declared{
		DocumentType:   domain.DocumentType(r.FormValue("document_type")),
		DocumentNumber: r.FormValue("document_number"),
		DateOfBirth:    r.FormValue("date_of_birth"),
		Nationality:    r.FormValue("nationality"),
		FullName:       r.FormValue("full_name"),
	}
	if !govalidator.StringLength(declared.FullName, "0", "255") ||
		!govalidator.StringLength(declared.DocumentNumber, "0", "64") {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "declared fields exceed length limits"))
		return
	}

	file, _, err := r.FormFile("document")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "proof document file is required"))
		return
	}
	defer file.Close()

	path, _, err := h.uploads.Save(file)
	if err != nil {
		h.logger.ErrorContext(ctx, "persist proof document failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "could not store proof document"))
		return
	}

	result, err := h.identities.Verify(ctx, identity.VerifyRequest{
		Subject:      subject,
		DocumentPath: path,
		Declared:     declared,
	})
	if err != nil {
		// A failed validation still carries a report worth returning.
		if dErrors.HasCode(err, dErrors.CodeValidationFailed) {
			shared.WriteJSON(w, dErrors.ToHTTPStatus(dErrors.CodeValidationFailed),
				verifyResponse{Report: result.Report})
			return
		}
		h.writeServiceError(ctx, w, "verify identity", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, verifyResponse{Record: result.Record, Report: result.Report})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := subjectFromContext(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.identities.Status(ctx, subject)
	if err != nil {
		h.writeServiceError(ctx, w, "verification status", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := subjectFromContext(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	cert, err := h.identities.Certificate(ctx, subject)
	if err != nil {
		h.writeServiceError(ctx, w, "verification certificate", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeLedgerUnavailable {
		h.logger.ErrorContext(ctx, "identity operation failed",
			"request_id", middleware.GetRequestID(ctx),
			"operation", op,
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}

func subjectFromContext(ctx context.Context) (domain.UserID, error) {
	raw := middleware.GetUserID(ctx)
	if raw == "" {
		return domain.UserID{}, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return domain.ParseUserID(raw)
}
