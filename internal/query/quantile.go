package query

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoValues is returned when a quantile is requested over no defined values
var ErrNoValues = errors.New("no defined values")

// Bounds is a closed numeric interval
type Bounds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports low <= v <= high
func (b Bounds) Contains(v float64) bool {
	return v >= b.Low && v <= b.High
}

// QuantileBounds returns the lowQ and highQ sample quantiles of the defined
// values, interpolating linearly between order statistics at position
// (n-1)*q. Nil and NaN values are ignored.
func QuantileBounds(values []*float64, lowQ, highQ float64) (Bounds, error) {
	if lowQ < 0 || lowQ > 1 || highQ < 0 || highQ > 1 || lowQ > highQ {
		return Bounds{}, fmt.Errorf("invalid quantiles %v, %v", lowQ, highQ)
	}

	defined := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil && !math.IsNaN(*v) {
			defined = append(defined, *v)
		}
	}
	if len(defined) == 0 {
		return Bounds{}, ErrNoValues
	}
	sort.Float64s(defined)

	return Bounds{
		Low:  quantileSorted(defined, lowQ),
		High: quantileSorted(defined, highQ),
	}, nil
}

func quantileSorted(sorted []float64, q float64) float64 {
	pos := float64(len(sorted)-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
