package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/spendlens/spendlens/internal/domain/rules"
)

// RulesHandler serves the classification rule endpoints.
type RulesHandler struct {
	svc *rules.Service
}

// NewRulesHandler creates a new rules handler
func NewRulesHandler(svc *rules.Service) *RulesHandler {
	return &RulesHandler{svc: svc}
}

type ruleResponse struct {
	ID         string  `json:"id"`
	RuleType   string  `json:"rule_type"`
	Pattern    string  `json:"pattern"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Priority   int     `json:"priority"`
	IsActive   bool    `json:"is_active"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

func toRuleResponse(rule *rules.Rule) ruleResponse {
	return ruleResponse{
		ID:         rule.ID.String(),
		RuleType:   rule.Kind.String(),
		Pattern:    rule.Pattern,
		Category:   rule.Category,
		Confidence: rule.Confidence,
		Priority:   rule.Priority,
		IsActive:   rule.IsActive,
		CreatedAt:  rule.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:  rule.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// List returns rules in evaluation order.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	var kindName *string
	if raw := r.URL.Query().Get("rule_type"); raw != "" {
		kindName = &raw
	}
	isActive, err := queryBool(r, "is_active")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.List(r.Context(), kindName, isActive)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := make([]ruleResponse, 0, len(list))
	for _, rule := range list {
		out = append(out, toRuleResponse(rule))
	}
	respondJSON(w, http.StatusOK, out)
}

type ruleCreateRequest struct {
	RuleType   string  `json:"rule_type"`
	Pattern    string  `json:"pattern"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Priority   int     `json:"priority"`
	IsActive   *bool   `json:"is_active"`
}

// Create stores a new rule.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ruleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	rule, err := h.svc.Create(r.Context(), rules.CreateInput{
		RuleType:   req.RuleType,
		Pattern:    req.Pattern,
		Category:   req.Category,
		Confidence: req.Confidence,
		Priority:   req.Priority,
		IsActive:   isActive,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

type ruleUpdateRequest struct {
	RuleType   *string  `json:"rule_type"`
	Pattern    *string  `json:"pattern"`
	Category   *string  `json:"category"`
	Confidence *float64 `json:"confidence"`
	Priority   *int     `json:"priority"`
	IsActive   *bool    `json:"is_active"`
}

// Update applies a partial patch to a rule.
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var req ruleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.svc.Update(r.Context(), id, rules.UpdateInput{
		RuleType:   req.RuleType,
		Pattern:    req.Pattern,
		Category:   req.Category,
		Confidence: req.Confidence,
		Priority:   req.Priority,
		IsActive:   req.IsActive,
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "classification rule not found")
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondJSON(w, http.StatusOK, toRuleResponse(rule))
	}
}

// Delete removes a rule.
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	err = h.svc.Delete(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "classification rule not found")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to delete classification rule")
	default:
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "rule_id": id.String()})
	}
}

// SaveConfig exports all rules to the flat config file.
func (h *RulesHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	path, count, err := h.svc.SaveConfig(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save rules config")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"path": path, "rules_saved": count})
}

type loadConfigRequest struct {
	ReplaceExisting bool `json:"replace_existing"`
}

// LoadConfig imports rules from the flat config file.
func (h *RulesHandler) LoadConfig(w http.ResponseWriter, r *http.Request) {
	var req loadConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.svc.LoadConfig(r.Context(), req.ReplaceExisting)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules_loaded": count, "replaced_existing": req.ReplaceExisting})
}
