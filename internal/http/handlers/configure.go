package handlers

import (
	"errors"
	"net/http"

	"github.com/wolfman30/legal-triage/internal/admin"
	"github.com/wolfman30/legal-triage/internal/http/middleware"
	"github.com/wolfman30/legal-triage/internal/prompt"
	"github.com/wolfman30/legal-triage/internal/rules"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// ConfigureHandler serves rule administration.
type ConfigureHandler struct {
	admin   *admin.Service
	builder prompt.Builder
	logger  *logging.Logger
}

func NewConfigureHandler(svc *admin.Service, builder prompt.Builder, logger *logging.Logger) *ConfigureHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfigureHandler{admin: svc, builder: builder, logger: logger}
}

type rulesResponse struct {
	Rules rules.RuleSet `json:"rules"`
}

type validationResponse struct {
	Error    string          `json:"error"`
	Problems []rules.Problem `json:"problems"`
}

// GetRules returns the current rule set.
// GET /api/configure
func (h *ConfigureHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rulesResponse{Rules: h.admin.ListRules(r.Context())})
}

// ReplaceRules replaces the whole rule set with the posted array. Deleting a
// rule is posting the array without it.
// POST /api/configure
func (h *ConfigureHandler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	var rs rules.RuleSet
	if err := decodeJSON(r, &rs); err != nil {
		decodeError(w, err)
		return
	}

	err := h.admin.ReplaceRules(r.Context(), rs)
	var verr *rules.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: verr.Error(), Problems: verr.Problems})
		return
	default:
		jsonError(w, "failed to save rules", http.StatusInternalServerError)
		return
	}

	operator := "anonymous"
	if claims, ok := middleware.OperatorFromContext(r.Context()); ok {
		operator = claims.Subject
	}
	h.logger.Info("rule set replaced", "rules", len(rs), "operator", operator,
		"request_id", middleware.RequestIDFromContext(r.Context()))

	if rs == nil {
		rs = rules.RuleSet{}
	}
	writeJSON(w, http.StatusOK, rulesResponse{Rules: rs})
}

type matchRequest struct {
	Slots map[string]string `json:"slots"`
}

type matchResponse struct {
	rules.MatchResult
	Reply string `json:"reply,omitempty"`
}

// Match evaluates slot values against the current rules without the model.
// POST /api/match
func (h *ConfigureHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeError(w, err)
		return
	}

	res, _ := h.admin.MatchRules(r.Context(), req.Slots)
	resp := matchResponse{MatchResult: res}
	switch res.Status {
	case rules.MatchFound:
		resp.Reply = prompt.RoutingLine(res.Rule.Assignee)
	case rules.MatchNone:
		resp.Reply = h.builder.Fallback()
	}
	writeJSON(w, http.StatusOK, resp)
}
