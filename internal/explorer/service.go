// Package explorer ties the cached dataset, the query engine and the
// prediction adapter together behind one service object.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/kartoza/funding-explorer/internal/dataset"
	"github.com/kartoza/funding-explorer/internal/geodata"
	"github.com/kartoza/funding-explorer/internal/model"
	"github.com/kartoza/funding-explorer/internal/predict"
	"github.com/kartoza/funding-explorer/internal/query"
)

// ErrDatasetUnavailable wraps any failure to load the dataset
var ErrDatasetUnavailable = errors.New("dataset unavailable")

// boundsCacheSize covers both outlier settings for a few dataset versions
const boundsCacheSize = 16

// Service answers every query of the explorer. It is safe for concurrent use.
type Service struct {
	fs         afero.Fs
	bounds     *query.BoundsCache
	engine     *query.ProjectEngine
	classifier model.Classifier
	predictor  *predict.Adapter

	mu      sync.RWMutex
	dataDir string
	cache   *dataset.Cache
}

// Options configures a Service
type Options struct {
	Fs      afero.Fs
	DataDir string
	// Source overrides the file loader built from Fs and DataDir
	Source     dataset.Source
	Classifier model.Classifier
}

// New creates a service. Nothing is loaded until Warm or the first query.
func New(opts Options) (*Service, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Classifier == nil {
		opts.Classifier = model.Unavailable{Reason: "no model configured"}
	}

	bounds, err := query.NewBoundsCache(boundsCacheSize)
	if err != nil {
		return nil, err
	}

	source := opts.Source
	if source == nil {
		source = dataset.NewLoader(opts.Fs, opts.DataDir)
	}

	return &Service{
		fs:         opts.Fs,
		bounds:     bounds,
		engine:     query.NewProjectEngine(bounds),
		classifier: opts.Classifier,
		predictor:  predict.NewAdapter(opts.Classifier),
		dataDir:    opts.DataDir,
		cache:      dataset.NewCache(source),
	}, nil
}

// Warm loads both tables so the first request does not pay for it
func (s *Service) Warm(ctx context.Context) error {
	start := time.Now()
	p, err := s.projects(ctx)
	if err != nil {
		return err
	}
	o, err := s.organizations(ctx)
	if err != nil {
		return err
	}
	log.Printf("Dataset loaded: %d projects, %d organizations in %v",
		len(p.Records), len(o.Records), time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *Service) currentCache() *dataset.Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

func (s *Service) projects(ctx context.Context) (*dataset.Projects, error) {
	p, err := s.currentCache().Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
	}
	return p, nil
}

func (s *Service) organizations(ctx context.Context) (*dataset.Organizations, error) {
	o, err := s.currentCache().Organizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
	}
	return o, nil
}

// ProjectView is one filtered project query
type ProjectView struct {
	*query.ProjectResult
	Table *dataset.Projects
}

// Projects runs the project pipeline
func (s *Service) Projects(ctx context.Context, c query.ProjectCriteria) (*ProjectView, error) {
	p, err := s.projects(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Run(p, c)
	if err != nil {
		return nil, err
	}
	return &ProjectView{ProjectResult: res, Table: p}, nil
}

// ProjectBounds are the default filter windows for the project page
type ProjectBounds struct {
	Amount *query.Bounds
	Dates  *query.DateWindow
}

// ProjectBounds returns the default slider and date windows
func (s *Service) ProjectBounds(ctx context.Context, excludeOutliers bool) (*ProjectBounds, error) {
	p, err := s.projects(ctx)
	if err != nil {
		return nil, err
	}

	out := &ProjectBounds{}
	b, err := s.engine.SliderBounds(p, excludeOutliers)
	switch {
	case err == nil:
		out.Amount = &b
	case !errors.Is(err, query.ErrNoValues):
		return nil, err
	}
	if from, to, ok := p.DateBounds(); ok {
		out.Dates = &query.DateWindow{From: from, To: to}
	}
	return out, nil
}

// Map is the map block of the organization page
type Map struct {
	Locations []geodata.Location
	// Centroid is nil when no organization has coordinates
	Centroid *geodata.Location
	Viewport *geodata.Viewport
	// Visible holds the locations inside Viewport, when one was given
	Visible []geodata.Location
}

// OrganizationView is one filtered organization query
type OrganizationView struct {
	query.Result[dataset.OrganizationRecord]
	Map Map
}

// Organizations runs the organization pipeline and builds the map block.
// viewport may be nil.
func (s *Service) Organizations(ctx context.Context, c query.OrganizationCriteria, viewport *geodata.Viewport) (*OrganizationView, error) {
	o, err := s.organizations(ctx)
	if err != nil {
		return nil, err
	}

	res := query.RunOrganizations(o.Records, c)
	locs := geodata.Locate(res.Records)

	m := Map{Locations: locs, Viewport: viewport}
	if lat, lng, ok := geodata.Centroid(locs); ok {
		m.Centroid = &geodata.Location{Lat: lat, Lng: lng}
	}
	if viewport != nil {
		m.Visible = geodata.WithinViewport(locs, *viewport)
	}
	return &OrganizationView{Result: res, Map: m}, nil
}

// Predict runs the classifier for one input
func (s *Service) Predict(ctx context.Context, in predict.PredictionInput) (predict.Label, error) {
	return s.predictor.Predict(ctx, in)
}

// ModelInfo describes the loaded classifier
func (s *Service) ModelInfo() map[string]interface{} {
	return s.classifier.Info()
}

// Reload drops the cached tables and quantiles and loads the tables again
func (s *Service) Reload(ctx context.Context) error {
	s.currentCache().Invalidate()
	s.bounds.Purge()
	return s.Warm(ctx)
}

// UseDataDir switches the service to a new dataset directory. The current
// dataset stays in place if the new one cannot be loaded.
func (s *Service) UseDataDir(ctx context.Context, dir string) error {
	next := dataset.NewCache(dataset.NewLoader(s.fs, dir))
	if _, err := next.Projects(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
	}
	if _, err := next.Organizations(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
	}

	s.mu.Lock()
	s.cache = next
	s.dataDir = dir
	s.mu.Unlock()

	s.bounds.Purge()
	log.Printf("Switched dataset directory to %s", dir)
	return nil
}

// Status describes the dataset currently served
type Status struct {
	dataset.Status
	DataDir      string `json:"data_dir"`
	CachedRanges int    `json:"cached_ranges"`
}

// Status reports what is loaded without triggering a load
func (s *Service) Status() Status {
	s.mu.RLock()
	dir, cache := s.dataDir, s.cache
	s.mu.RUnlock()

	return Status{
		Status:       cache.Status(),
		DataDir:      dir,
		CachedRanges: s.bounds.Len(),
	}
}
