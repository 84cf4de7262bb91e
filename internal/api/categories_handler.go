package api

import (
	"net/http"

	"github.com/spendlens/spendlens/internal/domain/categories"
)

// CategoriesHandler serves the category reference endpoints.
type CategoriesHandler struct {
	svc *categories.Service
}

// NewCategoriesHandler creates a new categories handler
func NewCategoriesHandler(svc *categories.Service) *CategoriesHandler {
	return &CategoriesHandler{svc: svc}
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List returns all categories.
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	out := make([]categoryResponse, 0, len(list))
	for _, c := range list {
		out = append(out, categoryResponse{ID: c.ID.String(), Name: c.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

type categoryCreateRequest struct {
	Name string `json:"name"`
}

// Create stores a new category.
func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req categoryCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	category, err := h.svc.Create(r.Context(), req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, categoryResponse{ID: category.ID.String(), Name: category.Name})
}
