package dataset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// ErrNoSource is returned when no supported file exists for a table
var ErrNoSource = errors.New("no dataset source found")

const (
	projectTable      = "project"
	organizationTable = "organization"
)

// Supported extensions, in lookup order
var sourceExtensions = []string{".xlsx", ".csv", ".csv.gz", ".csv.xz", ".sqlite", ".db"}

// Loader reads the project and organization tables from a data directory.
// SQLite sources are opened from the OS filesystem; other formats go
// through the afero filesystem.
type Loader struct {
	fs      afero.Fs
	dataDir string
}

// NewLoader creates a loader rooted at dataDir
func NewLoader(fs afero.Fs, dataDir string) *Loader {
	return &Loader{fs: fs, dataDir: dataDir}
}

// LoadProjects reads and types the project table
func (l *Loader) LoadProjects(ctx context.Context) (*Projects, error) {
	path, t, err := l.readTable(ctx, projectTable)
	if err != nil {
		return nil, err
	}

	idx := indexHeader(t.header)
	idCol := idx.lookup(ColProjectID)
	titleCol := idx.lookup(ColTitle)
	acronymCol := idx.lookup(ColAcronym)
	startCol := idx.lookup(ColStartDate)
	endCol := idx.lookup(ColEndDate)
	contribCol := idx.lookup(ColECMaxContribution)

	degraded := make(map[string]int)
	records := make([]ProjectRecord, 0, len(t.rows))
	for _, row := range t.rows {
		r := ProjectRecord{
			ID:      cell(row, idCol),
			Title:   cell(row, titleCol),
			Acronym: cell(row, acronymCol),
			Row:     row,
		}

		if raw := cell(row, startCol); raw != "" {
			if r.StartDate = ParseDate(raw, t.serialDates); r.StartDate == nil {
				degraded[ColStartDate]++
			}
		}
		if raw := cell(row, endCol); raw != "" {
			if r.EndDate = ParseDate(raw, t.serialDates); r.EndDate == nil {
				degraded[ColEndDate]++
			}
		}
		if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
			r.EndDate = nil
			degraded[ColEndDate]++
		}
		if raw := cell(row, contribCol); raw != "" {
			if r.ECMaxContribution = ParseAmount(raw); r.ECMaxContribution == nil {
				degraded[ColECMaxContribution]++
			}
		}

		records = append(records, r)
	}

	logDegraded(path, degraded)
	log.Printf("Loaded %d projects from %s", len(records), path)

	projects := NewProjects(t.header, records)
	projects.Path = path
	projects.LoadedAt = time.Now().UTC()
	return projects, nil
}

// LoadOrganizations reads and types the organization table
func (l *Loader) LoadOrganizations(ctx context.Context) (*Organizations, error) {
	path, t, err := l.readTable(ctx, organizationTable)
	if err != nil {
		return nil, err
	}

	idx := indexHeader(t.header)
	idCol := idx.lookup(ColOrganisationID)
	nameCol := idx.lookup(ColName)
	countryCol := idx.lookup(ColCountry)
	cityCol := idx.lookup(ColCity)
	postCodeCol := idx.lookup(ColPostCode)
	geoCol := idx.lookup(ColGeolocation)

	degraded := make(map[string]int)
	records := make([]OrganizationRecord, 0, len(t.rows))
	for _, row := range t.rows {
		r := OrganizationRecord{
			OrganisationID: cell(row, idCol),
			Name:           cell(row, nameCol),
			Country:        cell(row, countryCol),
			City:           cell(row, cityCol),
			PostCode:       cell(row, postCodeCol),
			Geolocation:    cell(row, geoCol),
			Row:            row,
		}
		if r.Geolocation != "" {
			if r.Latitude, r.Longitude = ParseGeolocation(r.Geolocation); r.Latitude == nil {
				degraded[ColGeolocation]++
			}
		}
		records = append(records, r)
	}

	logDegraded(path, degraded)
	log.Printf("Loaded %d organizations from %s", len(records), path)

	return &Organizations{
		Snapshot: Snapshot{Path: path, LoadedAt: time.Now().UTC()},
		Header:   t.header,
		Records:  records,
	}, nil
}

// readTable finds the first supported file for name and reads it. Files
// directly in the data directory win; otherwise the directory tree is
// searched, as unpacked dataset archives often nest their tables.
func (l *Loader) readTable(ctx context.Context, name string) (string, *table, error) {
	path, ext, err := l.findTable(name)
	if err != nil {
		return "", nil, err
	}

	var t *table
	switch ext {
	case ".sqlite", ".db":
		t, err = readSQLite(ctx, path, name)
	default:
		var data []byte
		data, err = afero.ReadFile(l.fs, path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if data, err = decompress(path, data); err != nil {
			return "", nil, err
		}
		if ext == ".xlsx" {
			t, err = readXLSX(data)
		} else {
			t, err = readCSV(data)
		}
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return path, t, nil
}

// findTable returns the path and matched extension of the table's file
func (l *Loader) findTable(name string) (string, string, error) {
	for _, ext := range sourceExtensions {
		path := filepath.Join(l.dataDir, name+ext)
		exists, err := afero.Exists(l.fs, path)
		if err != nil {
			return "", "", fmt.Errorf("stat %s: %w", path, err)
		}
		if exists {
			return path, ext, nil
		}
	}

	exts := trimDots(sourceExtensions)
	if l.dataDir != "" {
		if path, ext, ok := l.findNested(name); ok {
			return path, ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s.{%s} in %s", ErrNoSource, name,
		strings.Join(exts, ","), l.dataDir)
}

// findNested globs the data directory tree for the table, preferring
// extensions in lookup order and then the shallowest, lexically first path
func (l *Loader) findNested(name string) (string, string, bool) {
	fsys := afero.NewIOFS(afero.NewBasePathFs(l.fs, l.dataDir))
	pattern := "**/" + name + ".{" + strings.Join(trimDots(sourceExtensions), ",") + "}"

	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		log.Printf("Warning: searching %s for %s: %v", l.dataDir, name, err)
		return "", "", false
	}
	if len(matches) == 0 {
		return "", "", false
	}

	rank := func(m string) int {
		for i, ext := range sourceExtensions {
			if strings.HasSuffix(m, "/"+name+ext) || m == name+ext {
				return i
			}
		}
		return len(sourceExtensions)
	}
	sort.Slice(matches, func(i, j int) bool {
		ri, rj := rank(matches[i]), rank(matches[j])
		if ri != rj {
			return ri < rj
		}
		di, dj := strings.Count(matches[i], "/"), strings.Count(matches[j], "/")
		if di != dj {
			return di < dj
		}
		return matches[i] < matches[j]
	})

	best := matches[0]
	ext := sourceExtensions[rank(best)]
	if len(matches) > 1 {
		log.Printf("Warning: %d candidates for %s under %s, using %s", len(matches), name, l.dataDir, best)
	}
	return filepath.Join(l.dataDir, filepath.FromSlash(best)), ext, true
}

func logDegraded(path string, degraded map[string]int) {
	cols := make([]string, 0, len(degraded))
	for col := range degraded {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		log.Printf("Warning: %s: %d unparsable %s values treated as missing", path, degraded[col], col)
	}
}

func trimDots(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = strings.TrimPrefix(e, ".")
	}
	return out
}
