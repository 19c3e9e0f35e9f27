package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/insightgate/internal/api/middleware"
	"github.com/kiranshivaraju/insightgate/internal/api/response"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	IngestRunHandler  http.HandlerFunc
	ListRunsHandler   http.HandlerFunc
	ReportHandler     http.HandlerFunc
	AuditHandler      http.HandlerFunc
	AuditTrailHandler http.HandlerFunc
	QuestionHandler   http.HandlerFunc
	SimulateHandler   http.HandlerFunc
	EvidenceHandler   http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/api/v1/runs", func(r chi.Router) {
			r.With(deps.Auth.RequireScope(models.ScopeIngest)).
				Post("/", orNotImplemented(deps.IngestRunHandler))

			r.Group(func(r chi.Router) {
				r.Use(deps.Auth.RequireScope(models.ScopeReport))

				r.Get("/", orNotImplemented(deps.ListRunsHandler))
				r.Get("/{runID}/report", orNotImplemented(deps.ReportHandler))
				r.Post("/{runID}/audit", orNotImplemented(deps.AuditHandler))
				r.Get("/{runID}/audit", orNotImplemented(deps.AuditTrailHandler))
				r.Post("/{runID}/questions", orNotImplemented(deps.QuestionHandler))
				r.Get("/{runID}/evidence/{evidenceID}", orNotImplemented(deps.EvidenceHandler))
			})

			r.With(deps.Auth.RequireScope(models.ScopeSimulate)).
				Post("/{runID}/simulate", orNotImplemented(deps.SimulateHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
