package models

import (
	"github.com/paulmach/orb/geojson"

	"github.com/kartoza/funding-explorer/internal/dataset"
	"github.com/kartoza/funding-explorer/internal/explorer"
	"github.com/kartoza/funding-explorer/internal/export"
	"github.com/kartoza/funding-explorer/internal/geodata"
	"github.com/kartoza/funding-explorer/internal/query"
)

// Project is a project row as displayed in the results table
type Project struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Acronym           string   `json:"acronym"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	ECMaxContribution *float64 `json:"ec_max_contribution"`
}

// DateWindow is an inclusive date range rendered as YYYY-MM-DD
type DateWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ProjectsResponse is the result of a project query. Columns and Rows are
// the table exactly as the CSV export writes it.
type ProjectsResponse struct {
	Count   int                `json:"count"`
	Records []Project          `json:"records"`
	Columns []string           `json:"columns"`
	Rows    [][]string         `json:"rows"`
	Trail   []query.StageCount `json:"trail"`
	Dates   *DateWindow        `json:"dates"`
	Amount  *query.Bounds      `json:"amount"`
	Slider  *query.Bounds      `json:"slider"`
}

// BoundsResponse holds the default filter windows
type BoundsResponse struct {
	Amount *query.Bounds `json:"amount"`
	Dates  *DateWindow   `json:"dates"`
}

// LatLng is a map coordinate
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapResponse is the map block of the organization page. VisibleCount and
// Visible are set only when a viewport was supplied.
type MapResponse struct {
	Count        int                        `json:"count"`
	Centroid     *LatLng                    `json:"centroid"`
	Features     *geojson.FeatureCollection `json:"features"`
	Viewport     *geodata.Viewport          `json:"viewport,omitempty"`
	VisibleCount *int                       `json:"visible_count,omitempty"`
	Visible      []geodata.Location         `json:"visible,omitempty"`
}

// OrganizationsResponse is the result of an organization query
type OrganizationsResponse struct {
	Count   int                          `json:"count"`
	Records []dataset.OrganizationRecord `json:"records"`
	Trail   []query.StageCount           `json:"trail"`
	Map     MapResponse                  `json:"map"`
}

// PredictResponse carries the display label of a prediction
type PredictResponse struct {
	Label string `json:"label"`
}

// DatasetStatusResponse describes the served dataset and saved settings
type DatasetStatusResponse struct {
	explorer.Status
	SettingsPath string `json:"settings_path,omitempty"`
	SavedDir     string `json:"saved_dataset_dir,omitempty"`
}

// DatasetInstallRequest points at a dataset pack archive or directory
type DatasetInstallRequest struct {
	Path string `json:"path"`
}

// NewProject converts a record for display
func NewProject(r dataset.ProjectRecord) Project {
	p := Project{
		ID:                r.ID,
		Title:             r.Title,
		Acronym:           r.Acronym,
		ECMaxContribution: r.ECMaxContribution,
	}
	if r.StartDate != nil {
		p.StartDate = r.StartDate.Format(dataset.DateLayout)
	}
	if r.EndDate != nil {
		p.EndDate = r.EndDate.Format(dataset.DateLayout)
	}
	return p
}

// NewDateWindow renders w, or returns nil
func NewDateWindow(w *query.DateWindow) *DateWindow {
	if w == nil {
		return nil
	}
	return &DateWindow{
		From: w.From.Format(dataset.DateLayout),
		To:   w.To.Format(dataset.DateLayout),
	}
}

// NewProjectsResponse builds the response for a project query
func NewProjectsResponse(v *explorer.ProjectView) ProjectsResponse {
	records := make([]Project, len(v.Records))
	for i, r := range v.Records {
		records[i] = NewProject(r)
	}
	return ProjectsResponse{
		Count:   len(records),
		Records: records,
		Columns: v.Table.Header,
		Rows:    export.ProjectRows(v.Table, v.Records),
		Trail:   v.Trail,
		Dates:   NewDateWindow(v.Dates),
		Amount:  v.Amount,
		Slider:  v.Slider,
	}
}

// NewOrganizationsResponse builds the response for an organization query
func NewOrganizationsResponse(v *explorer.OrganizationView) OrganizationsResponse {
	m := MapResponse{
		Count:    len(v.Map.Locations),
		Features: geodata.FeatureCollection(v.Map.Locations),
		Viewport: v.Map.Viewport,
	}
	if c := v.Map.Centroid; c != nil {
		m.Centroid = &LatLng{Lat: c.Lat, Lng: c.Lng}
	}
	if v.Map.Viewport != nil {
		n := len(v.Map.Visible)
		m.VisibleCount = &n
		m.Visible = v.Map.Visible
	}
	return OrganizationsResponse{
		Count:   len(v.Records),
		Records: v.Records,
		Trail:   v.Trail,
		Map:     m,
	}
}
