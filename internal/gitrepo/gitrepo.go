// Package gitrepo reads and writes the git state of local repositories:
// the configured identity, the remote set, and the current branch. It is
// the only package that touches .git directories; everything above it works
// on plain values.
package gitrepo

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/project"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/google/uuid"
)

// ErrNotARepository indicates the path does not contain a git repository.
var ErrNotARepository = errors.New("not a git repository")

// Identity is the identity currently configured in a repository's local
// config. Empty fields mean "not set", which is a state, not an error.
type Identity struct {
	Name       string
	Email      string
	SigningKey string
}

// IsSet reports whether both name and email are configured.
func (id Identity) IsSet() bool {
	return id.Name != "" && id.Email != ""
}

// Matches reports whether the configured identity equals the account's.
// The signing key is deliberately excluded: key configuration is handled
// separately from who is committing.
func (id Identity) Matches(a identity.Account) bool {
	return id.Name == a.GitUserName && strings.EqualFold(id.Email, a.Email)
}

// String returns a string representation for logging and hook output.
func (id Identity) String() string {
	if !id.IsSet() {
		return "<unset>"
	}
	return fmt.Sprintf("%s <%s>", id.Name, id.Email)
}

// RepoState is a snapshot of the repository facts a resolution needs.
type RepoState struct {
	Path    string
	Branch  string // empty on detached HEAD or before the first commit
	Remotes map[string]string
	// Identity is the locally effective user.name/user.email/user.signingkey.
	Identity Identity
	// SignByDefault reflects commit.gpgsign in the local config.
	SignByDefault bool
}

// Inspect opens the repository at path and snapshots its branch, remotes
// and configured identity. Remote URLs come from local config only; nothing
// is fetched.
func Inspect(path string) (RepoState, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return RepoState{}, fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return RepoState{}, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return RepoState{}, fmt.Errorf("reading config of %s: %w", path, err)
	}

	state := RepoState{
		Path:    path,
		Remotes: make(map[string]string, len(cfg.Remotes)),
		Identity: Identity{
			Name:       cfg.User.Name,
			Email:      cfg.User.Email,
			SigningKey: cfg.Raw.Section("user").Option("signingkey"),
		},
		SignByDefault: strings.EqualFold(cfg.Raw.Section("commit").Option("gpgsign"), "true"),
	}

	for name, rc := range cfg.Remotes {
		if len(rc.URLs) > 0 {
			state.Remotes[name] = rc.URLs[0]
		}
	}

	head, err := repo.Head()
	switch {
	case err == nil:
		if head.Name().IsBranch() {
			state.Branch = head.Name().Short()
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Fresh repository without commits; branch stays empty.
	default:
		return RepoState{}, fmt.Errorf("reading HEAD of %s: %w", path, err)
	}

	return state, nil
}

// SetLocalIdentity rewrites the repository's local identity configuration to
// the given account. Only the local scope is touched: user.name, user.email,
// user.signingkey and commit.gpgsign. Global config, account records and
// history are never modified.
func SetLocalIdentity(path string, account identity.Account, sign bool, logger *logging.AppLogger) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return fmt.Errorf("opening repository at %s: %w", path, err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("reading config of %s: %w", path, err)
	}

	cfg.User.Name = account.GitUserName
	cfg.User.Email = account.Email

	userSection := cfg.Raw.Section("user")
	commitSection := cfg.Raw.Section("commit")
	if account.HasSigningKey() {
		userSection.SetOption("signingkey", account.SigningKeyRef)
	} else {
		userSection.RemoveOption("signingkey")
	}
	if sign {
		commitSection.SetOption("gpgsign", "true")
	} else {
		commitSection.RemoveOption("gpgsign")
	}

	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("writing config of %s: %w", path, err)
	}

	if logger != nil {
		logger.Info("Rewrote local git identity",
			"path", path,
			"account_id", account.ID,
			"user_name", account.GitUserName,
			"email", account.Email,
			"sign", sign,
		)
	}
	return nil
}

// Discover builds a Project record from an on-disk repository: remotes,
// platform and organization are read from the local config. The caller
// registers the result; discovery itself mutates nothing.
func Discover(path string) (project.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return project.Project{}, fmt.Errorf("resolving path %s: %w", path, err)
	}

	state, err := Inspect(abs)
	if err != nil {
		return project.Project{}, err
	}

	p := project.Project{
		ID:         uuid.NewString(),
		Path:       abs,
		Name:       filepath.Base(abs),
		RemoteURLs: state.Remotes,
		Platform:   project.PlatformOther,
	}

	if primary := p.PrimaryRemoteURL(); primary != "" {
		p.Platform = project.DetectPlatform(primary)
		p.Organization = organizationFromURL(primary)
	}

	return p, nil
}

// organizationFromURL extracts the first path segment of a normalized
// remote URL, e.g. "acme" from https://github.com/acme/repo.
func organizationFromURL(remoteURL string) string {
	normalized := pattern.NormalizeRemoteURL(remoteURL)
	idx := strings.Index(normalized, "://")
	if idx < 0 {
		return ""
	}
	rest := normalized[idx+3:]
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[1] == "" {
		return ""
	}
	return parts[1]
}

// IsLinear walks up to depth commits from HEAD along first parents and
// reports whether any of them is a merge commit. It exists for callers
// enforcing requireLinearHistory; the policy engine itself never inspects
// the commit graph.
func IsLinear(path string, depth int) (bool, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return false, fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return false, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// No commits yet: trivially linear.
			return true, nil
		}
		return false, fmt.Errorf("reading HEAD of %s: %w", path, err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return false, fmt.Errorf("reading HEAD commit of %s: %w", path, err)
	}

	for i := 0; i < depth && commit != nil; i++ {
		if commit.NumParents() > 1 {
			return false, nil
		}
		if commit.NumParents() == 0 {
			break
		}
		commit, err = commit.Parent(0)
		if err != nil {
			return false, fmt.Errorf("walking history of %s: %w", path, err)
		}
	}
	return true, nil
}
