package geodata

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kartoza/funding-explorer/internal/dataset"
)

// Location is an organization placed on the map
type Location struct {
	OrganisationID string  `json:"organisationID"`
	Name           string  `json:"name"`
	City           string  `json:"city"`
	Country        string  `json:"country"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
}

// Point returns the location as an orb point (x = longitude, y = latitude)
func (l Location) Point() orb.Point {
	return orb.Point{l.Lng, l.Lat}
}

// Viewport is the map's visible bounding box
type Viewport struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Bound returns the viewport as an orb bound
func (v Viewport) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{v.West, v.South},
		Max: orb.Point{v.East, v.North},
	}
}

// Contains reports whether lat/lng lies inside the box, edges included
func (v Viewport) Contains(lat, lng float64) bool {
	return v.Bound().Contains(orb.Point{lng, lat})
}

// Valid reports whether the corners are ordered
func (v Viewport) Valid() bool {
	return v.South <= v.North && v.West <= v.East
}

// Locate drops organizations without coordinates and keeps the first record
// seen for each organisationID, in input order.
func Locate(records []dataset.OrganizationRecord) []Location {
	seen := make(map[string]struct{}, len(records))
	out := make([]Location, 0, len(records))

	for _, r := range records {
		if !r.HasLocation() {
			continue
		}
		if _, dup := seen[r.OrganisationID]; dup {
			continue
		}
		seen[r.OrganisationID] = struct{}{}

		out = append(out, Location{
			OrganisationID: r.OrganisationID,
			Name:           r.Name,
			City:           r.City,
			Country:        r.Country,
			Lat:            *r.Latitude,
			Lng:            *r.Longitude,
		})
	}
	return out
}

// Centroid is the arithmetic mean of latitudes and longitudes. ok is false
// and both values are NaN when there are no locations.
func Centroid(locations []Location) (lat, lng float64, ok bool) {
	if len(locations) == 0 {
		return math.NaN(), math.NaN(), false
	}
	for _, l := range locations {
		lat += l.Lat
		lng += l.Lng
	}
	n := float64(len(locations))
	return lat / n, lng / n, true
}

// WithinViewport keeps the locations inside v, preserving order
func WithinViewport(locations []Location, v Viewport) []Location {
	out := make([]Location, 0, len(locations))
	for _, l := range locations {
		if v.Contains(l.Lat, l.Lng) {
			out = append(out, l)
		}
	}
	return out
}

// FeatureCollection renders locations as GeoJSON points carrying the popup
// fields of the map markers.
func FeatureCollection(locations []Location) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range locations {
		f := geojson.NewFeature(l.Point())
		f.ID = l.OrganisationID
		f.Properties["organisationID"] = l.OrganisationID
		f.Properties["name"] = l.Name
		f.Properties["city"] = l.City
		f.Properties["country"] = l.Country
		fc.Append(f)
	}
	return fc
}
