package query

import "github.com/kartoza/funding-explorer/internal/dataset"

// Organization pipeline stages after the shared search stage
const (
	StageCountry  = "country"
	StageCity     = "city"
	StagePostCode = "postcode"
)

// OrganizationCriteria are the filters for one organization query. Every
// field is a case-insensitive substring match; empty fields do not filter.
type OrganizationCriteria struct {
	Search   string
	Country  string
	City     string
	PostCode string
}

// RunOrganizations filters organizations by id/name search, then country,
// city and post code.
func RunOrganizations(records []dataset.OrganizationRecord, c OrganizationCriteria) Result[dataset.OrganizationRecord] {
	return NewPipeline[dataset.OrganizationRecord]().
		Add(StageSearch, TextContains(c.Search, orgID, orgName)).
		Add(StageCountry, TextContains(c.Country, orgCountry)).
		Add(StageCity, TextContains(c.City, orgCity)).
		Add(StagePostCode, TextContains(c.PostCode, orgPostCode)).
		Run(records)
}

func orgID(r dataset.OrganizationRecord) string       { return r.OrganisationID }
func orgName(r dataset.OrganizationRecord) string     { return r.Name }
func orgCountry(r dataset.OrganizationRecord) string  { return r.Country }
func orgCity(r dataset.OrganizationRecord) string     { return r.City }
func orgPostCode(r dataset.OrganizationRecord) string { return r.PostCode }
