package handler

import (
	"net/http"

	"github.com/kiranshivaraju/insightgate/internal/api/response"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

type simulateRequest struct {
	Scenario []models.ScenarioEntry `json:"scenario" validate:"dive"`
}

// NewSimulateHandler returns an http.HandlerFunc for POST /api/v1/runs/{runID}/simulate.
func NewSimulateHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, runID, ok := tenantAndRun(w, r)
		if !ok {
			return
		}

		var req simulateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.Simulate(r.Context(), tenantID, runID, req.Scenario)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}
