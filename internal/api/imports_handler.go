package api

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/spendlens/spendlens/internal/domain/imports"
	"github.com/spendlens/spendlens/pkg/middleware"
)

// maxUploadBytes caps statement uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// ImportsHandler serves the statement import endpoints.
type ImportsHandler struct {
	svc *imports.Service
}

// NewImportsHandler creates a new imports handler
func NewImportsHandler(svc *imports.Service) *ImportsHandler {
	return &ImportsHandler{svc: svc}
}

// Create accepts a multipart CSV upload and submits an import job.
func (h *ImportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "request must be multipart form data with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		respondError(w, http.StatusBadRequest, "only CSV files are supported")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	record, err := h.svc.Submit(r.Context(), userID, header.Filename, string(content))
	if errors.Is(err, imports.ErrEmptyFile) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to submit import")
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

// Get returns one import, reconciled against the queue when non-terminal.
func (h *ImportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid import id")
		return
	}

	record, err := h.svc.Get(r.Context(), userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "import not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load import")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// List returns the caller's imports, newest first.
func (h *ImportsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.svc.List(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list imports")
		return
	}
	if records == nil {
		records = []*imports.StatementImport{}
	}
	respondJSON(w, http.StatusOK, records)
}
