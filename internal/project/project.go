package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gitid/internal/pattern"
)

var (
	// ErrUnknownProject indicates the referenced project is not registered.
	ErrUnknownProject = errors.New("unknown project")

	// ErrProjectExists indicates a project with that ID or path already exists.
	ErrProjectExists = errors.New("project already exists")
)

// Platform identifies the hosting platform a project's remotes point at.
type Platform string

const (
	PlatformGitHub    Platform = "github"
	PlatformGitLab    Platform = "gitlab"
	PlatformBitbucket Platform = "bitbucket"
	PlatformOther     Platform = "other"
)

// DetectPlatform derives the platform from a remote URL's host.
func DetectPlatform(remoteURL string) Platform {
	normalized := pattern.NormalizeRemoteURL(remoteURL)
	switch {
	case strings.Contains(normalized, "github.com"):
		return PlatformGitHub
	case strings.Contains(normalized, "gitlab"):
		return PlatformGitLab
	case strings.Contains(normalized, "bitbucket"):
		return PlatformBitbucket
	default:
		return PlatformOther
	}
}

// Project represents a known repository on disk.
//
// Fields:
//   - ID: Unique identifier (UUID, assigned on registration)
//   - Path: Absolute local path, unique across the registry
//   - Name: Display name, defaults to the path's base name
//   - RemoteURLs: remote name -> URL, as read from the repository config
//   - Organization: Optional owning organization, derived from the URL path
//   - Platform: Hosting platform of the primary remote
//   - LastCommitAt: Unix timestamp of the last observed commit (0 = unknown)
//   - CommitCount: Observed commit count (0 = unknown)
//   - Confidence: Score of the last resolution, recomputed on each resolution
type Project struct {
	ID           string            `yaml:"id" json:"id"`
	Path         string            `yaml:"path" json:"path"`
	Name         string            `yaml:"name" json:"name"`
	RemoteURLs   map[string]string `yaml:"remote_urls,omitempty" json:"remote_urls,omitempty"`
	Organization string            `yaml:"organization,omitempty" json:"organization,omitempty"`
	Platform     Platform          `yaml:"platform" json:"platform"`
	LastCommitAt int64             `yaml:"last_commit_at,omitempty" json:"last_commit_at,omitempty"`
	CommitCount  int               `yaml:"commit_count,omitempty" json:"commit_count,omitempty"`
	Confidence   float64           `yaml:"confidence" json:"confidence"`
}

// PrimaryRemoteURL returns the URL of "origin" when present, otherwise any
// remote in deterministic (lexicographic) order, otherwise "".
func (p Project) PrimaryRemoteURL() string {
	if u, ok := p.RemoteURLs["origin"]; ok {
		return u
	}
	best := ""
	bestName := ""
	for name, u := range p.RemoteURLs {
		if bestName == "" || name < bestName {
			bestName = name
			best = u
		}
	}
	return best
}

// HasRemote reports whether the project has a remote with the given name.
func (p Project) HasRemote(name string) bool {
	_, ok := p.RemoteURLs[name]
	return ok
}

// String returns a string representation of the project for logging.
func (p Project) String() string {
	return fmt.Sprintf("Project{ID: %s, Name: %s, Path: %s, Remotes: %d}",
		p.ID, p.Name, p.Path, len(p.RemoteURLs))
}

// ValidateProject validates a single project for structural correctness.
func ValidateProject(p Project) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("project ID cannot be empty")
	}

	path := strings.TrimSpace(p.Path)
	if path == "" {
		return fmt.Errorf("project path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("project path contains null bytes")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("project path %q must be absolute", path)
	}

	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name cannot be empty")
	}

	for name, u := range p.RemoteURLs {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("project remote name cannot be empty")
		}
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("project remote %q has an empty URL", name)
		}
	}

	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("project confidence %.3f out of range (must be within [0, 1])", p.Confidence)
	}

	return nil
}

// ValidateAllProjects validates a list of projects, enforcing ID and path
// uniqueness across the registry.
func ValidateAllProjects(projects []Project) error {
	seenIDs := make(map[string]bool, len(projects))
	seenPaths := make(map[string]string, len(projects)) // path -> name
	var validationErrors []string

	for i, p := range projects {
		if seenIDs[p.ID] {
			return fmt.Errorf("duplicate project ID %q", p.ID)
		}
		seenIDs[p.ID] = true

		cleaned := filepath.Clean(p.Path)
		if existing, ok := seenPaths[cleaned]; ok {
			return fmt.Errorf("duplicate project path %q used by %q and %q",
				cleaned, existing, p.Name)
		}
		seenPaths[cleaned] = p.Name

		if err := ValidateProject(p); err != nil {
			validationErrors = append(validationErrors,
				fmt.Sprintf("project[%d] (%s): %v", i, p.Name, err))
		}
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("project validation failed:\n  - %s",
			strings.Join(validationErrors, "\n  - "))
	}
	return nil
}
