package query

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kartoza/funding-explorer/internal/dataset"
)

// Quantiles used for the contribution slider when outliers are excluded
const (
	LowQuantile  = 0.01
	HighQuantile = 0.95
)

// Project pipeline stages, in execution order
const (
	StageOutlierClip = "outlier_clip"
	StageSearch      = "search"
	StageDateRange   = "date_range"
	StageAmountRange = "amount_range"
)

// ErrInvalidWindow is returned for a window whose start is after its end
var ErrInvalidWindow = errors.New("invalid window")

// DateWindow is an inclusive date interval
type DateWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ProjectCriteria are the filters for one project query. Nil windows fall
// back to the defaults derived from the dataset.
type ProjectCriteria struct {
	Search          string
	Dates           *DateWindow
	Amount          *Bounds
	ExcludeOutliers bool
}

// ProjectResult is a filtered project view plus the windows actually applied
type ProjectResult struct {
	Records []dataset.ProjectRecord
	Trail   []StageCount
	Dates   *DateWindow
	Amount  *Bounds
	// Slider is the default contribution range for the outlier setting
	Slider *Bounds
}

// Count returns the count recorded after the named stage, or -1
func (r *ProjectResult) Count(stage string) int {
	return Result[dataset.ProjectRecord]{Trail: r.Trail}.Count(stage)
}

// ProjectEngine runs project queries against a loaded table
type ProjectEngine struct {
	bounds *BoundsCache
}

// NewProjectEngine creates an engine using bounds for quantile memoisation
func NewProjectEngine(bounds *BoundsCache) *ProjectEngine {
	return &ProjectEngine{bounds: bounds}
}

// SliderBounds returns the default contribution range: the 1%/95%
// quantiles when outliers are excluded, otherwise min and max.
// ErrNoValues is returned when no contribution is defined.
func (e *ProjectEngine) SliderBounds(p *dataset.Projects, excludeOutliers bool) (Bounds, error) {
	lowQ, highQ := 0.0, 1.0
	if excludeOutliers {
		lowQ, highQ = LowQuantile, HighQuantile
	}
	return e.bounds.Get(p.Version, p.Contributions, lowQ, highQ)
}

// Run filters the project table. Stages run in a fixed order: outlier
// clip, text search, date range, amount range.
func (e *ProjectEngine) Run(p *dataset.Projects, c ProjectCriteria) (*ProjectResult, error) {
	if c.Dates != nil && c.Dates.From.After(c.Dates.To) {
		return nil, fmt.Errorf("%w: dates %s after %s", ErrInvalidWindow,
			c.Dates.From.Format(dataset.DateLayout), c.Dates.To.Format(dataset.DateLayout))
	}
	if c.Amount != nil && c.Amount.Low > c.Amount.High {
		return nil, fmt.Errorf("%w: amount %v > %v", ErrInvalidWindow, c.Amount.Low, c.Amount.High)
	}

	res := &ProjectResult{}

	slider, err := e.SliderBounds(p, c.ExcludeOutliers)
	switch {
	case err == nil:
		res.Slider = &slider
	case errors.Is(err, ErrNoValues):
		// no contribution is defined; the range stages drop every record
	default:
		return nil, err
	}

	pipeline := NewPipeline[dataset.ProjectRecord]()

	var clip Predicate[dataset.ProjectRecord]
	if c.ExcludeOutliers {
		high := math.Inf(1)
		if res.Slider != nil {
			high = res.Slider.High
		}
		clip = AtMost(contribution, high)
	}
	pipeline.Add(StageOutlierClip, clip)

	pipeline.Add(StageSearch, TextContains(c.Search, projectID, projectTitle, projectAcronym))

	dates := c.Dates
	if dates == nil {
		if from, to, ok := p.DateBounds(); ok {
			dates = &DateWindow{From: from, To: to}
		}
	}
	if dates != nil {
		res.Dates = dates
		pipeline.Add(StageDateRange, DateRangeContains(startDate, endDate, dates.From, dates.To))
	} else {
		pipeline.Add(StageDateRange, DateRangeContains(startDate, endDate, time.Time{}, maxTime))
	}

	amount := c.Amount
	if amount == nil {
		amount = res.Slider
	}
	if amount != nil {
		res.Amount = amount
		pipeline.Add(StageAmountRange, NumericRangeContains(contribution, amount.Low, amount.High))
	} else {
		pipeline.Add(StageAmountRange, NumericRangeContains(contribution, math.Inf(-1), math.Inf(1)))
	}

	out := pipeline.Run(p.Records)
	res.Records = out.Records
	res.Trail = out.Trail
	return res, nil
}

var maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

func projectID(r dataset.ProjectRecord) string      { return r.ID }
func projectTitle(r dataset.ProjectRecord) string   { return r.Title }
func projectAcronym(r dataset.ProjectRecord) string { return r.Acronym }

func startDate(r dataset.ProjectRecord) *time.Time  { return r.StartDate }
func endDate(r dataset.ProjectRecord) *time.Time    { return r.EndDate }
func contribution(r dataset.ProjectRecord) *float64 { return r.ECMaxContribution }
