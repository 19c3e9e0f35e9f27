// Package handler contains the HTTP handlers for the governance API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/insightgate/internal/api/middleware"
	"github.com/kiranshivaraju/insightgate/internal/api/response"
	"github.com/kiranshivaraju/insightgate/internal/pipeline"
	"github.com/kiranshivaraju/insightgate/internal/report"
	"github.com/kiranshivaraju/insightgate/internal/simulation"
	"github.com/kiranshivaraju/insightgate/internal/store"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

const maxBodyBytes = 16 << 20

// RunService defines the run operations the handlers depend on.
type RunService interface {
	Ingest(ctx context.Context, run *models.RunArtifact) error
	ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.RunSummary, int, error)
	Report(ctx context.Context, tenantID, runID uuid.UUID) (models.GovernedReport, error)
	Audit(ctx context.Context, tenantID, runID uuid.UUID, claim *models.Claim) (*report.AuditOutcome, error)
	AuditTrail(ctx context.Context, tenantID, runID uuid.UUID) ([]*models.AuditEvent, error)
	Question(ctx context.Context, tenantID, runID uuid.UUID, question string) (models.Refusal, error)
	Simulate(ctx context.Context, tenantID, runID uuid.UUID, entries []models.ScenarioEntry) (*models.SimulationResult, error)
	Evidence(ctx context.Context, tenantID, runID uuid.UUID, evidenceID string) (models.EvidenceRecord, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report JSON field names in validation details.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// decodeJSON decodes and validates a request body, writing the error response
// itself. It returns false when the handler should stop.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints where an empty body means defaults.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !(optional && errors.Is(err, io.EOF)) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", fieldErrors(verrs))
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return false
	}
	return true
}

func fieldErrors(verrs validator.ValidationErrors) map[string][]string {
	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out[field] = append(out[field], msg)
	}
	return out
}

// tenantAndRun reads the authenticated tenant and the {runID} path parameter.
func tenantAndRun(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return uuid.Nil, uuid.Nil, false
	}
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_RUN_ID", "Invalid run ID format", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, runID, true
}

// writeServiceError maps service and upstream errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, report.ErrRunNotFound):
		response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found", nil)
	case errors.Is(err, report.ErrEvidenceNotFound):
		response.Error(w, http.StatusNotFound, "EVIDENCE_NOT_FOUND", "Evidence record not found", nil)
	case errors.Is(err, report.ErrRunExists):
		response.Error(w, http.StatusConflict, "RUN_EXISTS", "A run with this ID already exists", nil)
	case errors.Is(err, simulation.ErrNoScenario):
		response.Error(w, http.StatusUnprocessableEntity, "NO_SCENARIO", "Scenario has no entries", nil)
	case errors.Is(err, simulation.ErrFactorOutOfRange), errors.Is(err, simulation.ErrEmptyColumn):
		response.Error(w, http.StatusUnprocessableEntity, "INVALID_SCENARIO", err.Error(), nil)
	case errors.Is(err, pipeline.ErrPipelineTimeout):
		response.Error(w, http.StatusGatewayTimeout, "PIPELINE_TIMEOUT", "The analysis pipeline did not respond in time", nil)
	case errors.Is(err, pipeline.ErrPipelineUnreachable), errors.Is(err, pipeline.ErrPipelineResponse):
		response.Error(w, http.StatusBadGateway, "PIPELINE_UNAVAILABLE", "The analysis pipeline is not available", nil)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		slog.Info("request cancelled", "path", r.URL.Path)
	default:
		slog.Error("request failed", "error", err, "path", r.URL.Path)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
