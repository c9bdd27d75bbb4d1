package project

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds deployed projects keyed by name
type Registry struct {
	mu       sync.RWMutex
	projects map[string]Project
}

// NewRegistry creates a new project registry
func NewRegistry(projects ...Project) *Registry {
	r := &Registry{
		projects: make(map[string]Project, len(projects)),
	}
	for _, p := range projects {
		r.projects[p.Name] = p
	}
	return r
}

// Put records a project, replacing any previous entry with the same name
func (r *Registry) Put(p Project) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects[p.Name] = p
}

// Get retrieves a project by name
func (r *Registry) Get(name string) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.projects[name]
	if !exists {
		return Project{}, fmt.Errorf("project '%s' not found", name)
	}

	return p, nil
}

// List returns all projects sorted by name
func (r *Registry) List() []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Name < projects[j].Name
	})

	return projects
}

// Count returns the number of projects
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.projects)
}
