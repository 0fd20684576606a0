package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "gitid" // application name used for config directory

// FileStore persists each record kind as one YAML file in the config
// directory. Saves go through a temp file plus rename, so a concurrent
// reader sees either the old or the new file, never a partial one.
type FileStore struct {
	dir    string
	logger *logging.AppLogger
}

// DefaultConfigDir returns the standard config directory for the current
// platform.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// DefaultStateDir returns the directory for runtime state (locks, audit
// trail) as opposed to configuration.
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// NewFileStore creates a store rooted at dir. Pass "" for the standard
// location.
func NewFileStore(dir string, logger *logging.AppLogger) *FileStore {
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return &FileStore{dir: dir, logger: logger}
}

// Dir returns the directory the store writes into.
func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) pathFor(kind Kind) string {
	return filepath.Join(fs.dir, string(kind)+".yaml")
}

// loadFile decodes one YAML file into out. A missing file is an empty
// collection, not an error; first runs start from nothing.
func (fs *FileStore) loadFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if fs.logger != nil {
		fs.logger.Debug("Loaded store file", "path", path)
	}
	return nil
}

// saveFile writes one YAML file atomically with restrictive permissions
// (600), the same way the config itself is written.
func (fs *FileStore) saveFile(path string, in any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}

	enc := yaml.NewEncoder(tmp)
	if err := enc.Encode(in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	if fs.logger != nil {
		fs.logger.Debug("Saved store file", "path", path)
	}
	return nil
}

// yamlDoc wraps each collection so the files are self-describing.
type accountsDoc struct {
	Accounts []identity.Account `yaml:"accounts"`
}
type patternsDoc struct {
	Patterns []pattern.Pattern `yaml:"patterns"`
}
type policiesDoc struct {
	Policies []policy.BranchPolicy `yaml:"policies"`
}
type mappingsDoc struct {
	Mappings []remote.Mapping `yaml:"mappings"`
}
type projectsDoc struct {
	Projects []project.Project `yaml:"projects"`
}

func (fs *FileStore) LoadAccounts() ([]identity.Account, error) {
	var doc accountsDoc
	if err := fs.loadFile(fs.pathFor(KindAccounts), &doc); err != nil {
		return nil, err
	}
	return doc.Accounts, nil
}

func (fs *FileStore) SaveAccounts(accounts []identity.Account) error {
	return fs.saveFile(fs.pathFor(KindAccounts), accountsDoc{Accounts: accounts})
}

func (fs *FileStore) LoadPatterns() ([]pattern.Pattern, error) {
	var doc patternsDoc
	if err := fs.loadFile(fs.pathFor(KindPatterns), &doc); err != nil {
		return nil, err
	}
	return doc.Patterns, nil
}

func (fs *FileStore) SavePatterns(patterns []pattern.Pattern) error {
	return fs.saveFile(fs.pathFor(KindPatterns), patternsDoc{Patterns: patterns})
}

func (fs *FileStore) LoadPolicies() ([]policy.BranchPolicy, error) {
	var doc policiesDoc
	if err := fs.loadFile(fs.pathFor(KindPolicies), &doc); err != nil {
		return nil, err
	}
	return doc.Policies, nil
}

func (fs *FileStore) SavePolicies(policies []policy.BranchPolicy) error {
	return fs.saveFile(fs.pathFor(KindPolicies), policiesDoc{Policies: policies})
}

func (fs *FileStore) LoadMappings() ([]remote.Mapping, error) {
	var doc mappingsDoc
	if err := fs.loadFile(fs.pathFor(KindMappings), &doc); err != nil {
		return nil, err
	}
	return doc.Mappings, nil
}

func (fs *FileStore) SaveMappings(mappings []remote.Mapping) error {
	return fs.saveFile(fs.pathFor(KindMappings), mappingsDoc{Mappings: mappings})
}

func (fs *FileStore) LoadProjects() ([]project.Project, error) {
	var doc projectsDoc
	if err := fs.loadFile(fs.pathFor(KindProjects), &doc); err != nil {
		return nil, err
	}
	return doc.Projects, nil
}

func (fs *FileStore) SaveProjects(projects []project.Project) error {
	return fs.saveFile(fs.pathFor(KindProjects), projectsDoc{Projects: projects})
}

func (fs *FileStore) LoadSettings() (Settings, error) {
	settings := DefaultSettings()
	path := filepath.Join(fs.dir, "config.yaml")
	if err := fs.loadFile(path, &settings); err != nil {
		return Settings{}, err
	}
	if err := settings.Weights.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return settings, nil
}

func (fs *FileStore) SaveSettings(s Settings) error {
	if err := s.Weights.Validate(); err != nil {
		return err
	}
	return fs.saveFile(filepath.Join(fs.dir, "config.yaml"), s)
}
