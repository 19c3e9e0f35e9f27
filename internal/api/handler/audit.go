package handler

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/insightgate/internal/api/response"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

type auditRequest struct {
	Claim *models.Claim `json:"claim"`
}

// NewAuditHandler returns an http.HandlerFunc for POST /api/v1/runs/{runID}/audit.
// An empty body audits the report's headline claim.
func NewAuditHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, runID, ok := tenantAndRun(w, r)
		if !ok {
			return
		}

		var req auditRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		out, err := svc.Audit(r.Context(), tenantID, runID, req.Claim)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, out)
	}
}

// NewAuditTrailHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}/audit.
func NewAuditTrailHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, runID, ok := tenantAndRun(w, r)
		if !ok {
			return
		}

		events, err := svc.AuditTrail(r.Context(), tenantID, runID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, events)
	}
}

type questionRequest struct {
	Question string `json:"question" validate:"max=2000"`
}

// NewQuestionHandler returns an http.HandlerFunc for POST /api/v1/runs/{runID}/questions.
// A blank question is not a request error: it is refused like any other
// question the run cannot answer.
func NewQuestionHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, runID, ok := tenantAndRun(w, r)
		if !ok {
			return
		}

		var req questionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		ref, err := svc.Question(r.Context(), tenantID, runID, strings.TrimSpace(req.Question))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, ref)
	}
}
