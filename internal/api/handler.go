package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kartoza/funding-explorer/internal/config"
	"github.com/kartoza/funding-explorer/internal/explorer"
	"github.com/kartoza/funding-explorer/internal/export"
	"github.com/kartoza/funding-explorer/internal/httputil"
	"github.com/kartoza/funding-explorer/internal/model"
	"github.com/kartoza/funding-explorer/internal/models"
	"github.com/kartoza/funding-explorer/internal/predict"
	"github.com/kartoza/funding-explorer/internal/query"
)

// maxPredictBody bounds the prediction request body
const maxPredictBody = 1 << 16

// Handler provides HTTP API endpoints
type Handler struct {
	svc *explorer.Service
	cfg config.Config
}

// NewHandler creates a new API handler
func NewHandler(svc *explorer.Service, cfg config.Config) *Handler {
	return &Handler{
		svc: svc,
		cfg: cfg,
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	// Projects
	r.HandleFunc("/projects", h.handleProjects).Methods("GET")
	r.HandleFunc("/projects/bounds", h.handleProjectBounds).Methods("GET")
	r.HandleFunc("/projects/export.csv", h.handleExportCSV).Methods("GET")
	r.HandleFunc("/projects/export.xlsx", h.handleExportXLSX).Methods("GET")

	// Organizations and map
	r.HandleFunc("/organizations", h.handleOrganizations).Methods("GET")

	// Prediction
	r.HandleFunc("/predict", h.handlePredict).Methods("POST")
}

// respondQueryError maps a service error onto a status code
func respondQueryError(w http.ResponseWriter, err error) {
	var pe *paramError
	switch {
	case errors.As(err, &pe), errors.Is(err, query.ErrInvalidWindow):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, explorer.ErrDatasetUnavailable):
		httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("Error handling query: %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns server information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	info := map[string]interface{}{
		"version":              h.cfg.Version,
		"projects_loaded":      st.ProjectsLoaded,
		"organizations_loaded": st.OrganizationsLoaded,
		"model":                h.svc.ModelInfo(),
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// handleProjects runs the project pipeline
func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request) {
	c, err := projectCriteria(r.URL.Query())
	if err != nil {
		respondQueryError(w, err)
		return
	}

	view, err := h.svc.Projects(r.Context(), c)
	if err != nil {
		respondQueryError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewProjectsResponse(view))
}

// handleProjectBounds returns the default slider and date windows
func (h *Handler) handleProjectBounds(w http.ResponseWriter, r *http.Request) {
	c, err := projectCriteria(r.URL.Query())
	if err != nil {
		respondQueryError(w, err)
		return
	}

	b, err := h.svc.ProjectBounds(r.Context(), c.ExcludeOutliers)
	if err != nil {
		respondQueryError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.BoundsResponse{
		Amount: b.Amount,
		Dates:  models.NewDateWindow(b.Dates),
	})
}

// exportView runs the project query behind an export download
func (h *Handler) exportView(w http.ResponseWriter, r *http.Request) (*explorer.ProjectView, bool) {
	c, err := projectCriteria(r.URL.Query())
	if err != nil {
		respondQueryError(w, err)
		return nil, false
	}
	view, err := h.svc.Projects(r.Context(), c)
	if err != nil {
		respondQueryError(w, err)
		return nil, false
	}
	return view, true
}

// handleExportCSV downloads the filtered projects as CSV
func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	view, ok := h.exportView(w, r)
	if !ok {
		return
	}

	httputil.Attachment(w, "text/csv; charset=utf-8", export.CSVFilename)
	rows := export.ProjectRows(view.Table, view.Records)
	if err := export.WriteCSV(w, view.Table.Header, rows); err != nil {
		log.Printf("Error writing CSV export: %v", err)
	}
}

// handleExportXLSX downloads the filtered projects as a workbook
func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	view, ok := h.exportView(w, r)
	if !ok {
		return
	}

	httputil.Attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.XLSXFilename)
	rows := export.ProjectRows(view.Table, view.Records)
	if err := export.WriteXLSX(w, export.ProjectSheet, view.Table.Header, rows); err != nil {
		log.Printf("Error writing XLSX export: %v", err)
	}
}

// handleOrganizations runs the organization pipeline and builds the map block
func (h *Handler) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	c, viewport, err := organizationCriteria(r.URL.Query())
	if err != nil {
		respondQueryError(w, err)
		return
	}

	view, err := h.svc.Organizations(r.Context(), c, viewport)
	if err != nil {
		respondQueryError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewOrganizationsResponse(view))
}

// handlePredict classifies one set of project attributes
func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var in predict.PredictionInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody)).Decode(&in); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	label, err := h.svc.Predict(r.Context(), in)
	switch {
	case err == nil:
		httputil.RespondJSON(w, http.StatusOK, models.PredictResponse{Label: string(label)})
	case errors.Is(err, model.ErrUnavailable):
		httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, predict.ErrInvalidInput):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Error predicting: %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
