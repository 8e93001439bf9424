package api

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kartoza/funding-explorer/internal/dataset"
	"github.com/kartoza/funding-explorer/internal/geodata"
	"github.com/kartoza/funding-explorer/internal/query"
)

// paramError is a malformed query parameter
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func badParam(format string, args ...interface{}) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

// projectCriteria reads q, from, to, min, max and exclude_outliers.
// Outliers are excluded unless exclude_outliers says otherwise.
func projectCriteria(v url.Values) (query.ProjectCriteria, error) {
	c := query.ProjectCriteria{
		Search:          strings.TrimSpace(v.Get("q")),
		ExcludeOutliers: true,
	}

	if raw := v.Get("exclude_outliers"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c, badParam("invalid exclude_outliers %q", raw)
		}
		c.ExcludeOutliers = b
	}

	from, to := v.Get("from"), v.Get("to")
	if from != "" || to != "" {
		if from == "" || to == "" {
			return c, badParam("from and to must be given together")
		}
		f, err := time.Parse(dataset.DateLayout, from)
		if err != nil {
			return c, badParam("invalid from date %q", from)
		}
		t, err := time.Parse(dataset.DateLayout, to)
		if err != nil {
			return c, badParam("invalid to date %q", to)
		}
		c.Dates = &query.DateWindow{From: f, To: t}
	}

	low, high := v.Get("min"), v.Get("max")
	if low != "" || high != "" {
		if low == "" || high == "" {
			return c, badParam("min and max must be given together")
		}
		l, err := parseFinite("min", low)
		if err != nil {
			return c, err
		}
		h, err := parseFinite("max", high)
		if err != nil {
			return c, err
		}
		c.Amount = &query.Bounds{Low: l, High: h}
	}

	return c, nil
}

// organizationCriteria reads q, country, city, postcode and the optional
// south/west/north/east viewport.
func organizationCriteria(v url.Values) (query.OrganizationCriteria, *geodata.Viewport, error) {
	c := query.OrganizationCriteria{
		Search:   strings.TrimSpace(v.Get("q")),
		Country:  strings.TrimSpace(v.Get("country")),
		City:     strings.TrimSpace(v.Get("city")),
		PostCode: strings.TrimSpace(v.Get("postcode")),
	}

	names := []string{"south", "west", "north", "east"}
	given := 0
	for _, n := range names {
		if v.Get(n) != "" {
			given++
		}
	}
	if given == 0 {
		return c, nil, nil
	}
	if given != len(names) {
		return c, nil, badParam("south, west, north and east must be given together")
	}

	var edges [4]float64
	for i, n := range names {
		f, err := parseFinite(n, v.Get(n))
		if err != nil {
			return c, nil, err
		}
		edges[i] = f
	}
	vp := &geodata.Viewport{South: edges[0], West: edges[1], North: edges[2], East: edges[3]}
	if !vp.Valid() {
		return c, nil, badParam("viewport corners are not ordered")
	}
	return c, vp, nil
}

func parseFinite(name, raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, badParam("invalid %s %q", name, raw)
	}
	return f, nil
}
