package api

import (
	"encoding/json"
	"fmt"
	"time"

	"gitid/internal/bundle"
	"gitid/internal/enforcer"
	"gitid/internal/gitrepo"
	"gitid/internal/identity"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"

	"github.com/google/uuid"
)

// Request is the inbound envelope: a named operation plus its payload.
type Request struct {
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is the outbound envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(data any) Response {
	return Response{Success: true, Data: data}
}

func fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// Dispatch routes one request to its handler. Unknown operations are an
// error, not a panic; the surrounding application decides how to surface
// them.
func (a *App) Dispatch(req Request) Response {
	handler, okOp := a.handlers()[req.Operation]
	if !okOp {
		return fail(fmt.Errorf("unknown operation %q", req.Operation))
	}
	return handler(req.Payload)
}

func (a *App) handlers() map[string]func(json.RawMessage) Response {
	return map[string]func(json.RawMessage) Response{
		"resolve":           a.handleResolve,
		"suggest":           a.handleSuggest,
		"accept-suggestion": a.handleAcceptSuggestion,
		"reject-suggestion": a.handleRejectSuggestion,
		"validate":          a.handleValidate,
		"pre-commit":        a.handlePreCommit,
		"set-mapping":       a.handleSetMapping,
		"add-account":       a.handleAddAccount,
		"list-accounts":     a.handleListAccounts,
		"remove-account":    a.handleRemoveAccount,
		"apply":             a.handleApply,
		"add-pattern":       a.handleAddPattern,
		"list-patterns":     a.handleListPatterns,
		"add-policy":        a.handleAddPolicy,
		"list-policies":     a.handleListPolicies,
		"add-project":       a.handleAddProject,
		"list-projects":     a.handleListProjects,
		"accuracy":          a.handleAccuracy,
		"export":            a.handleExport,
		"import":            a.handleImport,
	}
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("invalid payload: %w", err)
	}
	return v, nil
}

// resolve

type resolveRequest struct {
	ProjectID  string `json:"project_id"`
	RemoteName string `json:"remote_name"`
	Direction  string `json:"direction"`
}

func (a *App) handleResolve(payload json.RawMessage) Response {
	req, err := decode[resolveRequest](payload)
	if err != nil {
		return fail(err)
	}
	direction := remote.Direction(req.Direction)
	if req.Direction == "" {
		direction = remote.DirectionPush
	}
	res, err := a.Remotes.ResolveForRemote(req.ProjectID, req.RemoteName, direction)
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

// suggest / accept / reject

type suggestRequest struct {
	ProjectID string `json:"project_id"`
	Path      string `json:"path,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
}

func (a *App) suggestionFor(req suggestRequest) (*pattern.MatchContext, string, error) {
	ctx := pattern.MatchContext{Path: req.Path, RemoteURL: req.RemoteURL}
	projectID := req.ProjectID
	if projectID != "" {
		proj, err := a.Projects.Get(projectID)
		if err != nil {
			return nil, "", err
		}
		ctx.Path = proj.Path
		if ctx.RemoteURL == "" {
			ctx.RemoteURL = proj.PrimaryRemoteURL()
		}
	}
	return &ctx, projectID, nil
}

func (a *App) handleSuggest(payload json.RawMessage) Response {
	req, err := decode[suggestRequest](payload)
	if err != nil {
		return fail(err)
	}
	ctx, projectID, err := a.suggestionFor(req)
	if err != nil {
		return fail(err)
	}
	s, err := a.Suggest.Suggest(projectID, *ctx)
	if err != nil {
		return fail(err)
	}
	return ok(*s)
}

func (a *App) handleAcceptSuggestion(payload json.RawMessage) Response {
	req, err := decode[suggestRequest](payload)
	if err != nil {
		return fail(err)
	}
	ctx, projectID, err := a.suggestionFor(req)
	if err != nil {
		return fail(err)
	}
	s, err := a.Suggest.Suggest(projectID, *ctx)
	if err != nil {
		return fail(err)
	}
	// The accept is the resolution's single terminal write step: registry
	// mutations and persistence happen together or not at all.
	if err := a.Suggest.Accept(s, time.Now().UTC()); err != nil {
		return fail(err)
	}
	if err := a.saveAccounts(); err != nil {
		return fail(err)
	}
	if projectID != "" {
		if err := a.saveProjects(); err != nil {
			return fail(err)
		}
	}
	return ok(*s)
}

func (a *App) handleRejectSuggestion(payload json.RawMessage) Response {
	req, err := decode[suggestRequest](payload)
	if err != nil {
		return fail(err)
	}
	ctx, projectID, err := a.suggestionFor(req)
	if err != nil {
		return fail(err)
	}
	s, err := a.Suggest.Suggest(projectID, *ctx)
	if err != nil {
		return fail(err)
	}
	a.Suggest.Reject(s)
	return ok(*s)
}

// validate

type validateRequest struct {
	ProjectID         string `json:"project_id"`
	Branch            string `json:"branch"`
	AccountID         string `json:"account_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	HasValidSignature bool   `json:"has_valid_signature,omitempty"`
}

func (a *App) handleValidate(payload json.RawMessage) Response {
	req, err := decode[validateRequest](payload)
	if err != nil {
		return fail(err)
	}
	verdict := a.Policies.Validate(req.Branch, policy.CommitIdentity{
		AccountID: req.AccountID,
		UserID:    req.UserID,
	}, req.HasValidSignature)
	return ok(verdict)
}

// pre-commit

type preCommitRequest struct {
	ProjectID         string `json:"project_id"`
	ProjectPath       string `json:"project_path,omitempty"`
	Branch            string `json:"branch,omitempty"`
	RemoteName        string `json:"remote_name,omitempty"`
	Direction         string `json:"direction,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	HasValidSignature bool   `json:"has_valid_signature,omitempty"`
}

func (a *App) handlePreCommit(payload json.RawMessage) Response {
	req, err := decode[preCommitRequest](payload)
	if err != nil {
		return fail(err)
	}

	projectID := req.ProjectID
	if projectID == "" && req.ProjectPath != "" {
		proj, err := a.Projects.GetByPath(req.ProjectPath)
		if err != nil {
			return fail(err)
		}
		projectID = proj.ID
	}

	result := a.Enforcer.PreCommit(enforcer.Event{
		ProjectID:         projectID,
		Branch:            req.Branch,
		RemoteName:        req.RemoteName,
		Direction:         remote.Direction(req.Direction),
		UserID:            req.UserID,
		HasValidSignature: req.HasValidSignature,
	})
	return ok(result)
}

// set-mapping

type setMappingRequest struct {
	ProjectID     string `json:"project_id"`
	RemoteName    string `json:"remote_name"`
	AccountID     string `json:"account_id"`
	SignCommits   bool   `json:"sign_commits,omitempty"`
	IsDefaultPush bool   `json:"is_default_push,omitempty"`
	IsDefaultPull bool   `json:"is_default_pull,omitempty"`
}

func (a *App) handleSetMapping(payload json.RawMessage) Response {
	req, err := decode[setMappingRequest](payload)
	if err != nil {
		return fail(err)
	}
	err = a.Remotes.SetMapping(req.ProjectID, req.RemoteName, req.AccountID, remote.SetOptions{
		SignCommits:   req.SignCommits,
		IsDefaultPush: req.IsDefaultPush,
		IsDefaultPull: req.IsDefaultPull,
	})
	if err != nil {
		return fail(err)
	}
	if err := a.saveMappings(); err != nil {
		return fail(err)
	}
	m, _ := a.Remotes.GetMapping(req.ProjectID, req.RemoteName)
	return ok(m)
}

// accounts

func (a *App) handleAddAccount(payload json.RawMessage) Response {
	account, err := decode[identity.Account](payload)
	if err != nil {
		return fail(err)
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Priority == 0 {
		account.Priority = identity.MaxPriority
	}
	if err := a.Accounts.Add(account); err != nil {
		return fail(err)
	}
	if err := a.saveAccounts(); err != nil {
		return fail(err)
	}
	return ok(account)
}

func (a *App) handleListAccounts(json.RawMessage) Response {
	return ok(a.Accounts.All())
}

type removeAccountRequest struct {
	AccountID string `json:"account_id"`
}

func (a *App) handleRemoveAccount(payload json.RawMessage) Response {
	req, err := decode[removeAccountRequest](payload)
	if err != nil {
		return fail(err)
	}
	// Records referencing the account would dangle; refuse until they are
	// removed first.
	for _, p := range a.Patterns {
		if p.AccountID == req.AccountID {
			return fail(fmt.Errorf("account %q is referenced by pattern %q", req.AccountID, p.ID))
		}
	}
	for _, p := range a.Policies.Policies() {
		if p.RequiredAccountID == req.AccountID {
			return fail(fmt.Errorf("account %q is required by policy %q", req.AccountID, p.ID))
		}
	}
	for _, m := range a.Remotes.Mappings() {
		if m.AccountID == req.AccountID {
			return fail(fmt.Errorf("account %q is mapped to remote %q of project %q",
				req.AccountID, m.RemoteName, m.ProjectID))
		}
	}
	if err := a.Accounts.Remove(req.AccountID); err != nil {
		return fail(err)
	}
	if err := a.saveAccounts(); err != nil {
		return fail(err)
	}
	return ok(map[string]string{"removed": req.AccountID})
}

// apply

type applyRequest struct {
	ProjectID  string `json:"project_id,omitempty"`
	Path       string `json:"path,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	RemoteName string `json:"remote_name,omitempty"`
}

type applyResponse struct {
	Path        string `json:"path"`
	AccountID   string `json:"account_id"`
	SignCommits bool   `json:"sign_commits"`
	Source      string `json:"source"`
}

// handleApply resolves the expected account for a project and rewrites the
// repository's local git config. This is the only operation that touches a
// repository, and it only ever writes the local scope.
func (a *App) handleApply(payload json.RawMessage) Response {
	req, err := decode[applyRequest](payload)
	if err != nil {
		return fail(err)
	}

	proj, err := a.projectFor(req.ProjectID, req.Path)
	if err != nil {
		return fail(err)
	}

	accountID := req.AccountID
	signCommits := false
	source := "explicit"
	if accountID == "" {
		remoteName := req.RemoteName
		if remoteName == "" && proj.HasRemote("origin") {
			remoteName = "origin"
		}
		if remoteName != "" {
			res, rerr := a.Remotes.ResolveForRemote(proj.ID, remoteName, remote.DirectionPush)
			if rerr != nil {
				return fail(rerr)
			}
			accountID = res.AccountID
			signCommits = res.SignCommits
			source = res.Source
		} else {
			s, serr := a.Suggest.Suggest(proj.ID, pattern.MatchContext{
				Path:      proj.Path,
				RemoteURL: proj.PrimaryRemoteURL(),
			})
			if serr != nil {
				return fail(serr)
			}
			accountID = s.AccountID
			source = "suggestion"
		}
	}

	account, err := a.Accounts.Get(accountID)
	if err != nil {
		return fail(err)
	}
	if req.AccountID != "" {
		signCommits = account.HasSigningKey()
	}

	// Keyring references are dereferenced here, at the single place that
	// writes git config; the stored account record keeps the reference.
	if account.HasSigningKey() && a.Keys != nil {
		resolved, kerr := a.Keys.Resolve(account.SigningKeyRef)
		if kerr != nil {
			return fail(fmt.Errorf("resolving signing key for account %s: %w", accountID, kerr))
		}
		account.SigningKeyRef = resolved
	}

	if err := gitrepo.SetLocalIdentity(proj.Path, account, signCommits, a.Logger); err != nil {
		return fail(err)
	}
	if err := a.Accounts.RecordUsage(accountID, time.Now().UTC()); err != nil {
		return fail(err)
	}
	if err := a.saveAccounts(); err != nil {
		return fail(err)
	}
	return ok(applyResponse{
		Path:        proj.Path,
		AccountID:   accountID,
		SignCommits: signCommits,
		Source:      source,
	})
}

// projectFor loads a project by id, or by repository path when the id is
// empty.
func (a *App) projectFor(projectID, path string) (project.Project, error) {
	if projectID != "" {
		return a.Projects.Get(projectID)
	}
	if path == "" {
		return project.Project{}, fmt.Errorf("either project_id or path is required")
	}
	return a.Projects.GetByPath(path)
}

// patterns

func (a *App) handleAddPattern(payload json.RawMessage) Response {
	p, err := decode[pattern.Pattern](payload)
	if err != nil {
		return fail(err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Origin == "" {
		p.Origin = pattern.OriginUser
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UTC().Unix()
	}
	if err := pattern.ValidatePattern(p, a.Accounts); err != nil {
		return fail(err)
	}
	a.Patterns = append(a.Patterns, p)
	if err := a.savePatterns(); err != nil {
		return fail(err)
	}
	a.rebuildEnforcer()
	return ok(p)
}

func (a *App) handleListPatterns(json.RawMessage) Response {
	return ok(a.Patterns)
}

// policies

func (a *App) handleAddPolicy(payload json.RawMessage) Response {
	p, err := decode[policy.BranchPolicy](payload)
	if err != nil {
		return fail(err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Enforcement == "" {
		p.Enforcement = policy.EnforcementWarning
	}
	if err := policy.ValidatePolicy(p, a.Accounts); err != nil {
		return fail(err)
	}
	policies := append(a.Policies.Policies(), p)
	if err := policy.ValidateAllPolicies(policies, a.Accounts); err != nil {
		return fail(err)
	}
	a.Policies = policy.NewEngine(policies, a.Logger)
	if err := a.savePolicies(); err != nil {
		return fail(err)
	}
	a.rebuildEnforcer()
	return ok(p)
}

func (a *App) handleListPolicies(json.RawMessage) Response {
	return ok(a.Policies.Policies())
}

// projects

type addProjectRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

func (a *App) handleAddProject(payload json.RawMessage) Response {
	req, err := decode[addProjectRequest](payload)
	if err != nil {
		return fail(err)
	}
	p, err := gitrepo.Discover(req.Path)
	if err != nil {
		return fail(err)
	}
	if req.Name != "" {
		p.Name = req.Name
	}
	if err := a.Projects.Add(p); err != nil {
		return fail(err)
	}
	if err := a.saveProjects(); err != nil {
		return fail(err)
	}
	return ok(p)
}

func (a *App) handleListProjects(json.RawMessage) Response {
	return ok(a.Projects.All())
}

// accuracy

type accuracyRequest struct {
	ProjectID   string `json:"project_id,omitempty"`
	WindowHours int    `json:"window_hours,omitempty"`
}

type accuracyResponse struct {
	PatternAccuracy float64 `json:"pattern_accuracy"`
	HasData         bool    `json:"has_data"`
}

func (a *App) handleAccuracy(payload json.RawMessage) Response {
	req, err := decode[accuracyRequest](payload)
	if err != nil {
		return fail(err)
	}
	if req.WindowHours <= 0 {
		req.WindowHours = 24 * 30
	}
	acc, has := a.Suggest.Accuracy(req.ProjectID, time.Duration(req.WindowHours)*time.Hour)
	return ok(accuracyResponse{PatternAccuracy: acc, HasData: has})
}

// export / import

type exportRequest struct {
	IncludeAccounts bool `json:"include_accounts,omitempty"`
}

func (a *App) handleExport(payload json.RawMessage) Response {
	req, err := decode[exportRequest](payload)
	if err != nil {
		return fail(err)
	}
	b := bundle.Bundle{
		Patterns: a.Patterns,
		Policies: a.Policies.Policies(),
		Mappings: a.Remotes.Mappings(),
	}
	if req.IncludeAccounts {
		b.Accounts = a.Accounts.All()
	}
	data, err := bundle.Export(b)
	if err != nil {
		return fail(err)
	}
	return ok(string(data))
}

type importRequest struct {
	Data string `json:"data"`
}

func (a *App) handleImport(payload json.RawMessage) Response {
	req, err := decode[importRequest](payload)
	if err != nil {
		return fail(err)
	}
	b, err := bundle.Import([]byte(req.Data), a.Accounts)
	if err != nil {
		return fail(err)
	}

	for _, account := range b.Accounts {
		if a.Accounts.Exists(account.ID) {
			continue
		}
		if err := a.Accounts.Add(account); err != nil {
			return fail(err)
		}
	}
	a.Patterns = mergePatterns(a.Patterns, b.Patterns)
	policies := mergePolicies(a.Policies.Policies(), b.Policies)
	a.Policies = policy.NewEngine(policies, a.Logger)

	if err := a.saveAccounts(); err != nil {
		return fail(err)
	}
	if err := a.savePatterns(); err != nil {
		return fail(err)
	}
	if err := a.savePolicies(); err != nil {
		return fail(err)
	}
	for _, m := range b.Mappings {
		if !a.Projects.Exists(m.ProjectID) {
			// Mappings for projects this machine does not know are skipped,
			// not fatal: bundles travel between machines.
			continue
		}
		err := a.Remotes.SetMapping(m.ProjectID, m.RemoteName, m.AccountID, remote.SetOptions{
			SignCommits:   m.SignCommits,
			IsDefaultPush: m.IsDefaultPush,
			IsDefaultPull: m.IsDefaultPull,
		})
		if err != nil {
			return fail(err)
		}
	}
	if err := a.saveMappings(); err != nil {
		return fail(err)
	}

	a.rebuildEnforcer()
	return ok(map[string]int{
		"accounts": len(b.Accounts),
		"patterns": len(b.Patterns),
		"policies": len(b.Policies),
		"mappings": len(b.Mappings),
	})
}

func mergePatterns(existing, incoming []pattern.Pattern) []pattern.Pattern {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.ID] = true
	}
	for _, p := range incoming {
		if !seen[p.ID] {
			existing = append(existing, p)
		}
	}
	return existing
}

func mergePolicies(existing, incoming []policy.BranchPolicy) []policy.BranchPolicy {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.ID] = true
	}
	for _, p := range incoming {
		if !seen[p.ID] {
			existing = append(existing, p)
		}
	}
	return existing
}

// rebuildEnforcer rewires the enforcer after an engine was replaced, so
// later operations in the same invocation observe the new rules.
func (a *App) rebuildEnforcer() {
	a.Enforcer = enforcer.New(a.Accounts, a.Projects, a.Suggest, a.Remotes, a.Policies, a.Sink, a.Logger)
	a.Enforcer.ApplySettings(a.Settings)
}
