package store

import (
	"os"
	"path/filepath"
	"testing"

	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	logger, _ := logging.NewTestLogger()
	return NewFileStore(t.TempDir(), logger)
}

// TestFileStore_EmptyLoads tests that a fresh directory loads as empty
// collections, not errors.
func TestFileStore_EmptyLoads(t *testing.T) {
	fs := newTestStore(t)

	accounts, err := fs.LoadAccounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	patterns, err := fs.LoadPatterns()
	require.NoError(t, err)
	assert.Empty(t, patterns)

	settings, err := fs.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().Weights, settings.Weights)
}

// TestFileStore_RoundTrips tests that each kind persists and reloads
// unchanged.
func TestFileStore_RoundTrips(t *testing.T) {
	fs := newTestStore(t)

	accounts := []identity.Account{
		{ID: "work", DisplayName: "Work", Email: "jane@corp.example", GitUserName: "Jane Doe",
			Priority: 2, SigningKeyRef: "keyring:work", UsageCount: 3, LastUsedAt: 1700000000},
	}
	require.NoError(t, fs.SaveAccounts(accounts))
	gotAccounts, err := fs.LoadAccounts()
	require.NoError(t, err)
	assert.Equal(t, accounts, gotAccounts)

	patterns := []pattern.Pattern{
		{ID: "p1", Expression: "https://github.com/acme/*", Kind: pattern.KindGlob,
			AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser, CreatedAt: 1700000000},
	}
	require.NoError(t, fs.SavePatterns(patterns))
	gotPatterns, err := fs.LoadPatterns()
	require.NoError(t, err)
	assert.Equal(t, patterns, gotPatterns)

	policies := []policy.BranchPolicy{
		{ID: "pol1", BranchPattern: "^main$", RequiredAccountID: "work",
			RequireSignedCommits: true, Enforcement: policy.EnforcementStrict,
			AllowedUserIDs: []string{"jane"}},
	}
	require.NoError(t, fs.SavePolicies(policies))
	gotPolicies, err := fs.LoadPolicies()
	require.NoError(t, err)
	assert.Equal(t, policies, gotPolicies)

	mappings := []remote.Mapping{
		{ProjectID: "proj-1", RemoteName: "origin", AccountID: "work",
			SignCommits: true, IsDefaultPush: true},
	}
	require.NoError(t, fs.SaveMappings(mappings))
	gotMappings, err := fs.LoadMappings()
	require.NoError(t, err)
	assert.Equal(t, mappings, gotMappings)

	projects := []project.Project{
		{ID: "proj-1", Path: "/home/jane/src/widget", Name: "widget",
			RemoteURLs: map[string]string{"origin": "https://github.com/acme/widget"},
			Platform:   project.PlatformGitHub, Confidence: 0.93},
	}
	require.NoError(t, fs.SaveProjects(projects))
	gotProjects, err := fs.LoadProjects()
	require.NoError(t, err)
	assert.Equal(t, projects, gotProjects)
}

// TestFileStore_Settings tests settings persistence and validation.
func TestFileStore_Settings(t *testing.T) {
	fs := newTestStore(t)

	s := DefaultSettings()
	s.AutoFix = true
	s.Weights.AmbiguityWindow = 0.1
	require.NoError(t, fs.SaveSettings(s))

	got, err := fs.LoadSettings()
	require.NoError(t, err)
	assert.True(t, got.AutoFix)
	assert.Equal(t, 0.1, got.Weights.AmbiguityWindow)

	bad := DefaultSettings()
	bad.Weights.UsageSaturation = -1
	assert.Error(t, fs.SaveSettings(bad))
}

// TestFileStore_FilePermissions tests that store files are written 0600.
func TestFileStore_FilePermissions(t *testing.T) {
	fs := newTestStore(t)
	require.NoError(t, fs.SaveAccounts([]identity.Account{
		{ID: "a", DisplayName: "A", Email: "a@x.example", GitUserName: "A", Priority: 1},
	}))

	info, err := os.Stat(filepath.Join(fs.Dir(), "accounts.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// TestFileStore_CorruptFile tests that a hand-edited broken file is
// reported, not silently repaired.
func TestFileStore_CorruptFile(t *testing.T) {
	fs := newTestStore(t)
	require.NoError(t, os.MkdirAll(fs.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), "accounts.yaml"),
		[]byte("accounts: [broken"), 0o600))

	_, err := fs.LoadAccounts()
	assert.Error(t, err)
}

// TestFileStore_SaveOverwrites tests that save replaces, not appends.
func TestFileStore_SaveOverwrites(t *testing.T) {
	fs := newTestStore(t)

	first := []identity.Account{{ID: "a", DisplayName: "A", Email: "a@x.example", GitUserName: "A", Priority: 1}}
	second := []identity.Account{{ID: "b", DisplayName: "B", Email: "b@x.example", GitUserName: "B", Priority: 2}}
	require.NoError(t, fs.SaveAccounts(first))
	require.NoError(t, fs.SaveAccounts(second))

	got, err := fs.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

// TestMemStore_RoundTrips tests the in-memory store honors the same
// contract.
func TestMemStore_RoundTrips(t *testing.T) {
	ms := NewMemStore()

	accounts := []identity.Account{{ID: "a", DisplayName: "A", Email: "a@x.example", GitUserName: "A", Priority: 1}}
	require.NoError(t, ms.SaveAccounts(accounts))
	got, err := ms.LoadAccounts()
	require.NoError(t, err)
	assert.Equal(t, accounts, got)

	// The store hands out copies; mutating the result must not leak back.
	got[0].DisplayName = "mutated"
	again, _ := ms.LoadAccounts()
	assert.Equal(t, "A", again[0].DisplayName)

	settings, err := ms.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().Weights, settings.Weights)
}

// TestProjectLock tests cross-handle exclusion within one process.
func TestProjectLock(t *testing.T) {
	stateDir := t.TempDir()

	l1, err := NewProjectLock(stateDir, "proj-1")
	require.NoError(t, err)
	require.NoError(t, l1.Lock())

	l2, err := NewProjectLock(stateDir, "proj-1")
	require.NoError(t, err)
	ok, err := l2.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "second handle must not acquire a held lock")

	// A different project locks independently.
	l3, err := NewProjectLock(stateDir, "proj-2")
	require.NoError(t, err)
	ok, err = l3.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l3.Unlock())

	require.NoError(t, l1.Unlock())
	ok, err = l2.TryLock()
	require.NoError(t, err)
	assert.True(t, ok, "released lock must be acquirable")
	require.NoError(t, l2.Unlock())
}
