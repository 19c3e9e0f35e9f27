package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/insightgate/internal/api/middleware"
	"github.com/kiranshivaraju/insightgate/internal/api/response"
	"github.com/kiranshivaraju/insightgate/internal/store"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

type ingestRequest struct {
	RunID      *uuid.UUID                 `json:"run_id"`
	Narrative  string                     `json:"narrative" validate:"required"`
	Bundles    map[string]json.RawMessage `json:"bundles"`
	Contract   models.TaskContract        `json:"task_contract"`
	Confidence models.ConfidenceReport    `json:"confidence"`
	Evidence   json.RawMessage            `json:"evidence"`
}

// NewIngestRunHandler returns an http.HandlerFunc for POST /api/v1/runs.
func NewIngestRunHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req ingestRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		run := &models.RunArtifact{
			TenantID:   tenantID,
			Narrative:  req.Narrative,
			Bundles:    req.Bundles,
			Contract:   req.Contract,
			Confidence: req.Confidence,
			Evidence:   req.Evidence,
		}
		if req.RunID != nil {
			run.RunID = *req.RunID
		}

		if err := svc.Ingest(r.Context(), run); err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.Created(w, map[string]any{
			"run_id":     run.RunID,
			"created_at": run.CreatedAt,
		})
	}
}

// NewListRunsHandler returns an http.HandlerFunc for GET /api/v1/runs.
// Query parameters: page, limit, since (RFC3339).
func NewListRunsHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		q := r.URL.Query()
		filter := store.RunFilter{TenantID: tenantID}

		if v := q.Get("page"); v != "" {
			page, err := strconv.Atoi(v)
			if err != nil || page < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
				return
			}
			filter.Page = page
		}
		if v := q.Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
				return
			}
			filter.Limit = limit
		}
		if v := q.Get("since"); v != "" {
			since, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = since
		}

		runs, total, err := svc.ListRuns(r.Context(), filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.Collection(w, runs, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

type reportResponse struct {
	models.GovernedReport
	EvidenceCount int `json:"evidence_count"`
}

// NewReportHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}/report.
func NewReportHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, runID, ok := tenantAndRun(w, r)
		if !ok {
			return
		}

		rep, err := svc.Report(r.Context(), tenantID, runID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := reportResponse{GovernedReport: rep}
		if rep.Evidence != nil {
			resp.EvidenceCount = rep.Evidence.Len()
		}
		response.JSON(w, resp)
	}
}

// NewEvidenceHandler returns an http.HandlerFunc for
// GET /api/v1/runs/{runID}/evidence/{evidenceID}.
func NewEvidenceHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, runID, ok := tenantAndRun(w, r)
		if !ok {
			return
		}

		rec, err := svc.Evidence(r.Context(), tenantID, runID, chi.URLParam(r, "evidenceID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, rec)
	}
}
