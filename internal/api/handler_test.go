package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"

	"github.com/kartoza/funding-explorer/internal/config"
	"github.com/kartoza/funding-explorer/internal/explorer"
	"github.com/kartoza/funding-explorer/internal/model"
	"github.com/kartoza/funding-explorer/internal/models"
)

const projectCSV = "id,acronym,title,startDate,endDate,ecMaxContribution\n" +
	"1,ALPHA,Alpha soil study,2020-01-01,2020-12-31,10\n" +
	"2,BETA,Beta water,2020-03-01,2021-06-30,20\n" +
	"3,GAMMA,Gamma soil,2021-01-01,2021-12-31,30\n" +
	"4,DELTA,Delta air,2019-06-01,2022-01-31,1000\n"

const organizationCSV = "organisationID,name,country,city,postCode,geolocation\n" +
	"10,Uni Leuven,BE,Leuven,3000,\"50,4\"\n" +
	"10,Uni Leuven,BE,Leuven,3000,\"50,4\"\n" +
	"11,Ghent Lab,BE,Gent,9000,\"52,6\"\n" +
	"12,Paris Institute,FR,Paris,75005,\n"

const treeJSON = `{
  "features": ["totalCost", "SME", "numberOrg", "startMonth", "duration", "fundingScheme", "country"],
  "root": {
    "feature": "totalCost", "threshold": 500000, "missing": "right",
    "left": {"label": "likely"},
    "right": {"label": "UNLIKELY"}
  }
}`

func newTestHandler(t *testing.T, withData, withModel bool) *mux.Router {
	t.Helper()
	fs := afero.NewMemMapFs()
	if withData {
		afero.WriteFile(fs, "/data/project.csv", []byte(projectCSV), 0o644)
		afero.WriteFile(fs, "/data/organization.csv", []byte(organizationCSV), 0o644)
	}

	var classifier model.Classifier = model.Unavailable{Reason: "no model configured"}
	if withModel {
		afero.WriteFile(fs, "/models/tree.json", []byte(treeJSON), 0o644)
		classifier = model.Open(fs, "/models/tree.json")
	}

	svc, err := explorer.New(explorer.Options{Fs: fs, DataDir: "/data", Classifier: classifier})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{
		Port:    8080,
		DataDir: "/data",
		Version: "test",
	}
	r := mux.NewRouter()
	NewHandler(svc, cfg).RegisterRoutes(r)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := serve(newTestHandler(t, false, false), "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response["status"])
	}
}

func TestInfoEndpoint(t *testing.T) {
	w := serve(newTestHandler(t, true, true), "GET", "/info", "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(w.Body).Decode(&response)

	if response["version"] != "test" {
		t.Errorf("Expected version 'test', got '%v'", response["version"])
	}
	if m, ok := response["model"].(map[string]interface{}); !ok || m["available"] != true {
		t.Errorf("Expected model info, got %v", response["model"])
	}
}

func TestProjectsEndpoint(t *testing.T) {
	r := newTestHandler(t, true, false)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"outliers excluded by default", "", []string{"2", "3"}},
		{"outliers kept", "?exclude_outliers=false", []string{"1", "2", "3", "4"}},
		{"search", "?q=SOIL&exclude_outliers=false", []string{"1", "3"}},
		{"date window", "?from=2020-01-01&to=2020-12-31&exclude_outliers=false", []string{"1"}},
		{"amount window", "?min=15&max=2000&exclude_outliers=0", []string{"2", "3", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, "GET", "/projects"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
			}

			var resp models.ProjectsResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Count != len(tt.want) {
				t.Fatalf("Expected %d records, got %d", len(tt.want), resp.Count)
			}
			for i, id := range tt.want {
				if resp.Records[i].ID != id {
					t.Errorf("record %d: expected %s, got %s", i, id, resp.Records[i].ID)
				}
			}
			if len(resp.Trail) != 5 || resp.Trail[0].Stage != "base" || resp.Trail[0].Count != 4 {
				t.Errorf("Unexpected trail %+v", resp.Trail)
			}
		})
	}
}

func TestProjectsBadParams(t *testing.T) {
	r := newTestHandler(t, true, false)

	for _, q := range []string{
		"?min=5",
		"?min=abc&max=10",
		"?min=NaN&max=10",
		"?from=2020-01-01",
		"?from=01/01/2020&to=2020-12-31",
		"?exclude_outliers=maybe",
		"?min=10&max=5",
		"?from=2021-01-01&to=2020-01-01",
	} {
		w := serve(r, "GET", "/projects"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", q, w.Code)
		}
	}
}

func TestDatasetUnavailable(t *testing.T) {
	r := newTestHandler(t, false, false)

	for _, path := range []string{"/projects", "/projects/bounds", "/projects/export.csv", "/organizations"} {
		w := serve(r, "GET", path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503, got %d", path, w.Code)
		}
	}
}

func TestProjectBoundsEndpoint(t *testing.T) {
	w := serve(newTestHandler(t, true, false), "GET", "/projects/bounds?exclude_outliers=false", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp models.BoundsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Amount == nil || resp.Amount.Low != 10 || resp.Amount.High != 1000 {
		t.Errorf("Unexpected amount bounds %+v", resp.Amount)
	}
	if resp.Dates == nil || resp.Dates.From != "2019-06-01" || resp.Dates.To != "2022-01-31" {
		t.Errorf("Unexpected date bounds %+v", resp.Dates)
	}
}

func TestExportCSV(t *testing.T) {
	w := serve(newTestHandler(t, true, false), "GET", "/projects/export.csv?q=soil&exclude_outliers=false", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "filtered_projects.csv") {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}

	data := w.Body.Bytes()
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("Expected UTF-8 BOM")
	}
	rows, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || strings.Join(rows[0], ",") != "id,acronym,title,startDate,endDate,ecMaxContribution" {
		t.Errorf("Unexpected export %v", rows)
	}
}

func TestExportMatchesDisplayedTable(t *testing.T) {
	r := newTestHandler(t, true, false)
	query := "?q=soil&exclude_outliers=false"

	w := serve(r, "GET", "/projects"+query, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp models.ProjectsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}

	w = serve(r, "GET", "/projects/export.csv"+query, "")
	exported, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(w.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}))).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	displayed := append([][]string{resp.Columns}, resp.Rows...)
	if len(displayed) != len(exported) {
		t.Fatalf("Expected %d exported lines, got %d", len(displayed), len(exported))
	}
	for i := range displayed {
		if strings.Join(displayed[i], "|") != strings.Join(exported[i], "|") {
			t.Errorf("line %d: displayed %v, exported %v", i, displayed[i], exported[i])
		}
	}
}

func TestExportXLSX(t *testing.T) {
	w := serve(newTestHandler(t, true, false), "GET", "/projects/export.xlsx?exclude_outliers=false", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("Expected a workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Errorf("Expected header and 4 rows, got %d", len(rows))
	}
}

func TestOrganizationsEndpoint(t *testing.T) {
	r := newTestHandler(t, true, false)

	w := serve(r, "GET", "/organizations?country=be&south=49&west=3&north=51&east=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
		Map   struct {
			Count        int  `json:"count"`
			VisibleCount *int `json:"visible_count"`
			Centroid     *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"centroid"`
			Features struct {
				Type     string            `json:"type"`
				Features []json.RawMessage `json:"features"`
			} `json:"features"`
		} `json:"map"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}

	if resp.Count != 3 || resp.Map.Count != 2 {
		t.Errorf("Expected 3 rows and 2 markers, got %d and %d", resp.Count, resp.Map.Count)
	}
	if resp.Map.VisibleCount == nil || *resp.Map.VisibleCount != 1 {
		t.Errorf("Expected 1 visible marker, got %v", resp.Map.VisibleCount)
	}
	if resp.Map.Centroid == nil || resp.Map.Centroid.Lat != 51 || resp.Map.Centroid.Lng != 5 {
		t.Errorf("Unexpected centroid %+v", resp.Map.Centroid)
	}
	if resp.Map.Features.Type != "FeatureCollection" || len(resp.Map.Features.Features) != 2 {
		t.Errorf("Unexpected features %+v", resp.Map.Features)
	}

	for _, q := range []string{"?south=1", "?south=5&west=1&north=2&east=2", "?south=a&west=1&north=2&east=2"} {
		if w := serve(r, "GET", "/organizations"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", q, w.Code)
		}
	}
}

func TestOrganizationsNonFiniteGeolocation(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/data/project.csv", []byte(projectCSV), 0o644)
	afero.WriteFile(fs, "/data/organization.csv", []byte(organizationCSV+
		"13,Infinite Labs,NL,Delft,2600,\"inf,6\"\n"+
		"14,Far Away,NL,Delft,2601,\"95,6\"\n"), 0o644)

	svc, err := explorer.New(explorer.Options{Fs: fs, DataDir: "/data"})
	if err != nil {
		t.Fatal(err)
	}
	r := mux.NewRouter()
	NewHandler(svc, config.Config{DataDir: "/data"}).RegisterRoutes(r)

	w := serve(r, "GET", "/organizations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
		Map   struct {
			Count int `json:"count"`
		} `json:"map"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Expected a decodable body, got %v", err)
	}
	if resp.Count != 6 {
		t.Errorf("Expected 6 rows, got %d", resp.Count)
	}
	if resp.Map.Count != 2 {
		t.Errorf("Expected out-of-range rows to be left off the map, got %d markers", resp.Map.Count)
	}
}

func TestPredictEndpoint(t *testing.T) {
	r := newTestHandler(t, false, true)

	w := serve(r, "POST", "/predict", `{"totalCost": 1000, "sme": true, "fundingScheme": "RIA", "country": "BE"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.PredictResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Label != "Likely" {
		t.Errorf("Expected Likely, got %q", resp.Label)
	}

	w = serve(r, "POST", "/predict", `{"totalCost": null}`)
	json.NewDecoder(w.Body).Decode(&resp)
	if w.Code != http.StatusOK || resp.Label != "Unlikely" {
		t.Errorf("Expected missing cost to follow the right branch, got %d %q", w.Code, resp.Label)
	}

	if w := serve(r, "POST", "/predict", `{"startMonth": 13}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid month, got %d", w.Code)
	}
	if w := serve(r, "POST", "/predict", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid body, got %d", w.Code)
	}
}

func TestPredictWithoutModel(t *testing.T) {
	w := serve(newTestHandler(t, true, false), "POST", "/predict", `{}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
