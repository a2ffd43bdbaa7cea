package inventory

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// Identity headers, validated upstream by the gateway. The core trusts
	// them as-is.
	headerAccount  = "X-Muster-Account"
	headerReporter = "X-Muster-Reporter"

	defaultPerPage = 100
	maxPerPage     = 1000
)

// API wires the service layer into HTTP handlers.
type API struct {
	svc    *Service
	logger *log.Logger
}

// NewAPI validates dependencies and builds the API layer.
func NewAPI(svc *Service, logger *log.Logger) (*API, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &API{svc: svc, logger: logger}, nil
}

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/hosts", a.handleReportHost)
		r.Get("/hosts", a.handleListHosts)
		r.Get("/hosts/{id}", a.handleGetHost)
		r.Patch("/hosts/{ids}", a.handlePatchHosts)
		r.Delete("/hosts/{id}", a.handleDeleteHost)
	})

	return r, nil
}
