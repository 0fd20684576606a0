// Package project holds the repository model and its registry.
package project

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Registry is a thread-safe in-memory view of the known projects, keyed by
// ID with path uniqueness enforced on every write.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*Project
	byPath   map[string]string // cleaned path -> project ID
}

// NewRegistry creates a registry from the given projects.
func NewRegistry(projects []Project) (*Registry, error) {
	if err := ValidateAllProjects(projects); err != nil {
		return nil, err
	}

	r := &Registry{
		projects: make(map[string]*Project, len(projects)),
		byPath:   make(map[string]string, len(projects)),
	}
	for i := range projects {
		p := projects[i]
		r.projects[p.ID] = &p
		r.byPath[filepath.Clean(p.Path)] = p.ID
	}
	return r, nil
}

// Get returns a copy of the project with the given ID.
func (r *Registry) Get(id string) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("%w: %s", ErrUnknownProject, id)
	}
	return *p, nil
}

// GetByPath returns a copy of the project registered at the given path.
func (r *Registry) GetByPath(path string) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPath[filepath.Clean(path)]
	if !ok {
		return Project{}, fmt.Errorf("%w: path %s", ErrUnknownProject, path)
	}
	return *r.projects[id], nil
}

// Exists reports whether a project with the given ID is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.projects[id]
	return ok
}

// All returns copies of all projects ordered by name then ID.
func (r *Registry) All() []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Add registers a new project. Path collisions are rejected; the registry
// never holds two projects for the same directory.
func (r *Registry) Add(p Project) error {
	if err := ValidateProject(p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrProjectExists, p.ID)
	}
	cleaned := filepath.Clean(p.Path)
	if existingID, ok := r.byPath[cleaned]; ok {
		return fmt.Errorf("%w: path %s already registered as %s", ErrProjectExists, cleaned, existingID)
	}

	r.projects[p.ID] = &p
	r.byPath[cleaned] = p.ID
	return nil
}

// Update replaces an existing project record.
func (r *Registry) Update(p Project) error {
	if err := ValidateProject(p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.projects[p.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProject, p.ID)
	}

	newPath := filepath.Clean(p.Path)
	oldPath := filepath.Clean(old.Path)
	if newPath != oldPath {
		if existingID, taken := r.byPath[newPath]; taken && existingID != p.ID {
			return fmt.Errorf("%w: path %s already registered as %s", ErrProjectExists, newPath, existingID)
		}
		delete(r.byPath, oldPath)
		r.byPath[newPath] = p.ID
	}

	r.projects[p.ID] = &p
	return nil
}

// Remove deletes a project by ID.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProject, id)
	}
	delete(r.byPath, filepath.Clean(p.Path))
	delete(r.projects, id)
	return nil
}

// SetConfidence stores the score of the latest resolution on the project.
// This is the only project field the resolution core mutates.
func (r *Registry) SetConfidence(id string, confidence float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProject, id)
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	p.Confidence = confidence
	return nil
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}
