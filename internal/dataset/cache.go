package dataset

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Cache is a read-through cache over a Source. Each table is loaded at most
// once until Invalidate is called; failed loads are not cached.
type Cache struct {
	source Source

	mu            sync.Mutex
	projects      *Projects
	organizations *Organizations
}

// Status describes what the cache currently holds
type Status struct {
	ProjectsLoaded      bool      `json:"projects_loaded"`
	ProjectCount        int       `json:"project_count"`
	ProjectSnapshot     *Snapshot `json:"project_snapshot,omitempty"`
	OrganizationsLoaded bool      `json:"organizations_loaded"`
	OrganizationCount   int       `json:"organization_count"`
	OrgSnapshot         *Snapshot `json:"organization_snapshot,omitempty"`
}

// NewCache wraps source
func NewCache(source Source) *Cache {
	return &Cache{source: source}
}

// Projects returns the cached project table, loading it on first use
func (c *Cache) Projects(ctx context.Context) (*Projects, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.projects != nil {
		return c.projects, nil
	}

	projects, err := c.source.LoadProjects(ctx)
	if err != nil {
		return nil, err
	}
	projects.Version = uuid.New().String()
	c.projects = projects
	return projects, nil
}

// Organizations returns the cached organization table, loading it on first use
func (c *Cache) Organizations(ctx context.Context) (*Organizations, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.organizations != nil {
		return c.organizations, nil
	}

	orgs, err := c.source.LoadOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	orgs.Version = uuid.New().String()
	c.organizations = orgs
	return orgs, nil
}

// Invalidate drops both tables; the next access reloads them
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = nil
	c.organizations = nil
}

// Status reports the loaded tables without triggering a load
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	var st Status
	if c.projects != nil {
		snap := c.projects.Snapshot
		st.ProjectsLoaded = true
		st.ProjectCount = len(c.projects.Records)
		st.ProjectSnapshot = &snap
	}
	if c.organizations != nil {
		snap := c.organizations.Snapshot
		st.OrganizationsLoaded = true
		st.OrganizationCount = len(c.organizations.Records)
		st.OrgSnapshot = &snap
	}
	return st
}
