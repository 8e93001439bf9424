package dataset

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type countingSource struct {
	mu        sync.Mutex
	projects  int
	orgs      int
	failFirst bool
}

func (s *countingSource) LoadProjects(context.Context) (*Projects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects++
	if s.failFirst && s.projects == 1 {
		return nil, errors.New("disk on fire")
	}
	return NewProjects([]string{"id"}, []ProjectRecord{{ID: "1"}}), nil
}

func (s *countingSource) LoadOrganizations(context.Context) (*Organizations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs++
	return &Organizations{Records: []OrganizationRecord{{OrganisationID: "9"}, {OrganisationID: "9"}}}, nil
}

func TestCacheLoadsOnce(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Projects(ctx); err != nil {
				t.Errorf("Projects failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if src.projects != 1 {
		t.Errorf("Expected a single load, got %d", src.projects)
	}

	first, _ := cache.Projects(ctx)
	if first.Version == "" {
		t.Error("Expected a version to be assigned")
	}

	cache.Invalidate()
	second, _ := cache.Projects(ctx)
	if src.projects != 2 {
		t.Errorf("Expected a reload after Invalidate, got %d loads", src.projects)
	}
	if second.Version == first.Version {
		t.Error("Expected a new version after reload")
	}
}

func TestCacheDoesNotKeepErrors(t *testing.T) {
	src := &countingSource{failFirst: true}
	cache := NewCache(src)

	if _, err := cache.Projects(context.Background()); err == nil {
		t.Fatal("Expected first load to fail")
	}
	if _, err := cache.Projects(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed: %v", err)
	}
}

func TestCacheStatus(t *testing.T) {
	cache := NewCache(&countingSource{})

	st := cache.Status()
	if st.ProjectsLoaded || st.OrganizationsLoaded {
		t.Error("Status must not trigger a load")
	}

	if _, err := cache.Organizations(context.Background()); err != nil {
		t.Fatal(err)
	}
	st = cache.Status()
	if !st.OrganizationsLoaded || st.OrganizationCount != 2 {
		t.Errorf("Unexpected status %+v", st)
	}
	if st.OrgSnapshot == nil || st.OrgSnapshot.Version == "" {
		t.Error("Expected organization snapshot with version")
	}
}
