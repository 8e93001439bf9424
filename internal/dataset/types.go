package dataset

import (
	"context"
	"strconv"
	"time"
)

// Source column names. Header matching is case-insensitive.
const (
	ColProjectID         = "id"
	ColTitle             = "title"
	ColAcronym           = "acronym"
	ColStartDate         = "startDate"
	ColEndDate           = "endDate"
	ColECMaxContribution = "ecMaxContribution"

	ColOrganisationID = "organisationID"
	ColName           = "name"
	ColCountry        = "country"
	ColCity           = "city"
	ColPostCode       = "postCode"
	ColGeolocation    = "geolocation"
)

// DateLayout is the layout used when dates are rendered back to text
const DateLayout = "2006-01-02"

// Source loads the two tables of the funding dataset
type Source interface {
	LoadProjects(ctx context.Context) (*Projects, error)
	LoadOrganizations(ctx context.Context) (*Organizations, error)
}

// ProjectRecord is one funded project. Nil pointers mean the source value
// was missing or could not be parsed.
type ProjectRecord struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Acronym           string     `json:"acronym"`
	StartDate         *time.Time `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	ECMaxContribution *float64   `json:"ecMaxContribution"`

	// Row is the source row aligned with the table header
	Row []string `json:"-"`
}

// OrganizationRecord is one participating organization. Latitude and
// Longitude are either both set or both nil.
type OrganizationRecord struct {
	OrganisationID string   `json:"organisationID"`
	Name           string   `json:"name"`
	Country        string   `json:"country"`
	City           string   `json:"city"`
	PostCode       string   `json:"postCode"`
	Geolocation    string   `json:"geolocation"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`

	Row []string `json:"-"`
}

// HasLocation reports whether both coordinates are present
func (o OrganizationRecord) HasLocation() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// Snapshot identifies one load of a table
type Snapshot struct {
	Version  string    `json:"version"`
	LoadedAt time.Time `json:"loadedAt"`
	Path     string    `json:"path"`
}

// Projects is the loaded project table
type Projects struct {
	Snapshot
	Header  []string
	Records []ProjectRecord

	startIdx, endIdx, contribIdx int
}

// Organizations is the loaded organization table
type Organizations struct {
	Snapshot
	Header  []string
	Records []OrganizationRecord
}

// NewProjects builds a project table from already-typed records. The typed
// columns are located in header so that Cells can normalize them.
func NewProjects(header []string, records []ProjectRecord) *Projects {
	idx := indexHeader(header)
	return &Projects{
		Header:     header,
		Records:    records,
		startIdx:   idx.lookup(ColStartDate),
		endIdx:     idx.lookup(ColEndDate),
		contribIdx: idx.lookup(ColECMaxContribution),
	}
}

// Cells returns the record's row in header order with the typed columns
// rendered from their parsed values. Missing values become empty cells.
func (p *Projects) Cells(r ProjectRecord) []string {
	cells := make([]string, len(p.Header))
	copy(cells, r.Row)

	if p.startIdx >= 0 {
		cells[p.startIdx] = formatDate(r.StartDate)
	}
	if p.endIdx >= 0 {
		cells[p.endIdx] = formatDate(r.EndDate)
	}
	if p.contribIdx >= 0 {
		cells[p.contribIdx] = FormatAmount(r.ECMaxContribution)
	}
	return cells
}

// Contributions returns the contribution of every record, nil for missing
func (p *Projects) Contributions() []*float64 {
	values := make([]*float64, len(p.Records))
	for i, r := range p.Records {
		values[i] = r.ECMaxContribution
	}
	return values
}

// DateBounds returns the earliest start date and the latest end date
func (p *Projects) DateBounds() (earliest, latest time.Time, ok bool) {
	var haveStart, haveEnd bool
	for _, r := range p.Records {
		if r.StartDate != nil && (!haveStart || r.StartDate.Before(earliest)) {
			earliest = *r.StartDate
			haveStart = true
		}
		if r.EndDate != nil && (!haveEnd || r.EndDate.After(latest)) {
			latest = *r.EndDate
			haveEnd = true
		}
	}
	return earliest, latest, haveStart && haveEnd
}

// FormatAmount renders a contribution in its shortest decimal form
func FormatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
