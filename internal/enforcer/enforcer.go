// Package enforcer orchestrates the pre-commit and pre-push checks: it
// resolves the expected identity, validates the identity actually in
// effect against the branch policies, and blocks, warns, corrects or
// allows per configuration.
package enforcer

import (
	"errors"
	"fmt"
	"strings"

	"gitid/internal/audit"
	"gitid/internal/gitrepo"
	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"
	"gitid/internal/store"
	"gitid/internal/suggest"
)

// State is a step of the enforcement state machine:
// Idle → Resolving → Validating → {Blocked, Warned, Corrected, Allowed}.
type State string

const (
	StateIdle       State = "idle"
	StateResolving  State = "resolving"
	StateValidating State = "validating"
	StateBlocked    State = "blocked"
	StateWarned     State = "warned"
	StateCorrected  State = "corrected"
	StateAllowed    State = "allowed"
)

// Event is one hook invocation. Branch and remote override what the
// repository inspection reports; hooks that know them pass them in.
type Event struct {
	ProjectID  string
	Branch     string
	RemoteName string
	Direction  remote.Direction
	// UserID identifies the human running the hook, for allow-list policies.
	UserID string
	// HasValidSignature reports whether the proposed commit carries a valid
	// signature. The hook wrapper determines this; the core does not verify
	// signatures.
	HasValidSignature bool
}

// Result is the terminal outcome of one enforcement run.
type Result struct {
	State             State
	Verdict           policy.Verdict
	ExpectedAccountID string
	CurrentIdentity   gitrepo.Identity
	// Reasons collects every human-readable explanation, policy reasons
	// included, in the order they were produced.
	Reasons []string
	// Warnings are surfaced loudly but never gate.
	Warnings []string
	// AutoFixed is set when the local identity was rewritten.
	AutoFixed bool
	// ExitCode is what a git hook should exit with: 0 proceeds, 1 aborts.
	ExitCode int
}

// Enforcer wires the resolution components into the hook pipeline.
type Enforcer struct {
	accounts *identity.Registry
	projects *project.Registry
	engine   *suggest.Engine
	remotes  *remote.Manager
	policies *policy.Engine
	sink     audit.Sink
	logger   *logging.AppLogger

	// AutoFix lets the enforcer rewrite the local identity to the expected
	// account when no policy blocks. It only ever adjusts the local config,
	// never account records or history.
	AutoFix bool
	// StateDir holds the per-project locks. Empty means the standard
	// location.
	StateDir string
}

// New creates an enforcer. A nil sink disables audit events.
func New(accounts *identity.Registry, projects *project.Registry, engine *suggest.Engine,
	remotes *remote.Manager, policies *policy.Engine, sink audit.Sink, logger *logging.AppLogger) *Enforcer {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Enforcer{
		accounts: accounts,
		projects: projects,
		engine:   engine,
		remotes:  remotes,
		policies: policies,
		sink:     sink,
		logger:   logger,
	}
}

// ApplySettings copies the relevant tunables from the persisted settings.
func (e *Enforcer) ApplySettings(s store.Settings) {
	e.AutoFix = s.AutoFix
}

// PreCommit runs the full pre-commit pipeline for one project. Concurrent
// invocations on the same project serialize on the project lock; the lock
// covers both the reads and the terminal write step, so no partial updates
// are ever visible to another resolution.
func (e *Enforcer) PreCommit(ev Event) Result {
	lock, err := store.NewProjectLock(e.StateDir, ev.ProjectID)
	if err == nil {
		if lockErr := lock.Lock(); lockErr == nil {
			defer lock.Unlock()
		} else if e.logger != nil {
			e.logger.Warn("Proceeding without project lock", "project_id", ev.ProjectID, "error", lockErr)
		}
	}
	return e.run(ev)
}

// PrePush runs the same pipeline for a push to a named remote.
func (e *Enforcer) PrePush(ev Event) Result {
	if ev.Direction == "" {
		ev.Direction = remote.DirectionPush
	}
	return e.PreCommit(ev)
}

func (e *Enforcer) run(ev Event) Result {
	result := Result{State: StateResolving}

	proj, err := e.projects.Get(ev.ProjectID)
	if err != nil {
		return e.failResolution(ev.Branch, result, fmt.Errorf("loading project: %w", err))
	}

	repoState, err := gitrepo.Inspect(proj.Path)
	if err != nil {
		return e.failResolution(ev.Branch, result, fmt.Errorf("inspecting repository: %w", err))
	}
	result.CurrentIdentity = repoState.Identity

	branch := ev.Branch
	if branch == "" {
		branch = repoState.Branch
	}

	expectedID, signCommits, err := e.resolveExpected(ev, proj, repoState)
	if err != nil {
		return e.failResolution(branch, result, err)
	}
	result.ExpectedAccountID = expectedID

	// Validate with the identity actually in effect, not the expected one:
	// the policy gate judges what the commit would be recorded as.
	result.State = StateValidating
	currentAccountID := e.accountForIdentity(repoState.Identity)
	verdict := e.policies.Validate(branch, policy.CommitIdentity{
		AccountID: currentAccountID,
		UserID:    ev.UserID,
	}, ev.HasValidSignature)
	result.Verdict = verdict
	for _, r := range verdict.Reasons {
		result.Reasons = append(result.Reasons, fmt.Sprintf("[policy %s] %s", r.PolicyID, r.Message))
	}
	for _, a := range verdict.Advisories {
		result.Warnings = append(result.Warnings, fmt.Sprintf("[advisory %s] %s", a.PolicyID, a.Message))
	}

	switch verdict.Outcome {
	case policy.OutcomeBlock:
		result.State = StateBlocked
		result.ExitCode = 1
		e.emit(audit.EventPolicyBlock, ev.ProjectID, expectedID, firstPolicyID(verdict))
		return result

	case policy.OutcomeWarn:
		result.State = StateWarned
		result.ExitCode = 0
		e.emit(audit.EventPolicyWarn, ev.ProjectID, expectedID, firstPolicyID(verdict))
		return result
	}

	// Verdict allows. Reconcile the configured identity with the expected
	// account.
	if expectedID == "" {
		result.State = StateAllowed
		return result
	}
	expected, err := e.accounts.Get(expectedID)
	if err != nil {
		return e.failResolution(branch, result, fmt.Errorf("loading expected account: %w", err))
	}

	if repoState.Identity.Matches(expected) {
		result.State = StateAllowed
		return result
	}

	if e.AutoFix {
		if err := gitrepo.SetLocalIdentity(proj.Path, expected, signCommits, e.logger); err != nil {
			return e.failResolution(branch, result, fmt.Errorf("rewriting local identity: %w", err))
		}
		result.State = StateCorrected
		result.AutoFixed = true
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"local identity corrected from %s to %s <%s>",
			repoState.Identity, expected.GitUserName, expected.Email))
		e.emit(audit.EventAutoFixApplied, ev.ProjectID, expectedID, "")
		return result
	}

	result.State = StateWarned
	result.Warnings = append(result.Warnings, fmt.Sprintf(
		"configured identity %s does not match expected account %q (%s <%s>); enable auto_fix or run 'gitid apply'",
		repoState.Identity, expected.DisplayName, expected.GitUserName, expected.Email))
	return result
}

// resolveExpected determines which account should be active for the event.
// Resolution order mirrors the remote manager: explicit mapping, default
// mapping, suggestion. "No resolution" is a valid outcome; anything else
// that goes wrong is an internal error for the caller to fail on.
func (e *Enforcer) resolveExpected(ev Event, proj project.Project, repoState gitrepo.RepoState) (string, bool, error) {
	direction := ev.Direction
	if !direction.IsValid() {
		direction = remote.DirectionPush
	}

	remoteName := ev.RemoteName
	if remoteName == "" {
		if proj.HasRemote("origin") {
			remoteName = "origin"
		} else if primary := proj.PrimaryRemoteURL(); primary != "" {
			for name, u := range proj.RemoteURLs {
				if u == primary {
					remoteName = name
					break
				}
			}
		}
	}

	if remoteName != "" && e.remotes != nil {
		res, err := e.remotes.ResolveForRemote(proj.ID, remoteName, direction)
		if err == nil {
			return res.AccountID, res.SignCommits, nil
		}
		if !errors.Is(err, remote.ErrNoResolution) {
			return "", false, err
		}
	}

	// No remotes or no mapping: fall back to a plain suggestion on the
	// project context.
	if e.engine != nil {
		s, err := e.engine.Suggest(proj.ID, pattern.MatchContext{
			Path:      proj.Path,
			RemoteURL: proj.PrimaryRemoteURL(),
		})
		if err == nil {
			account, aerr := e.accounts.Get(s.AccountID)
			if aerr != nil {
				return "", false, aerr
			}
			return s.AccountID, account.HasSigningKey(), nil
		}
		if !errors.Is(err, suggest.ErrNoSuggestion) {
			return "", false, err
		}
	}

	return "", false, nil
}

// failResolution implements the error philosophy: a strict policy's purpose
// is defeated by silently allowing on error, so strict branches fail closed
// while everything else fails open with a loud warning.
func (e *Enforcer) failResolution(branch string, result Result, cause error) Result {
	if e.logger != nil {
		e.logger.Error("Enforcement failed", "branch", branch, "error", cause)
	}

	if e.policies != nil && e.policies.HasStrictFor(branch) {
		result.State = StateBlocked
		result.ExitCode = 1
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("internal error while enforcing a strict policy, refusing to proceed: %v", cause))
		return result
	}

	result.State = StateWarned
	result.ExitCode = 0
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("internal error, proceeding without enforcement: %v", cause))
	return result
}

// accountForIdentity finds the account the configured identity belongs to,
// or "" when it matches no registered account.
func (e *Enforcer) accountForIdentity(id gitrepo.Identity) string {
	if !id.IsSet() {
		return ""
	}
	for _, a := range e.accounts.All() {
		if id.Matches(a) {
			return a.ID
		}
	}
	return ""
}

func (e *Enforcer) emit(t audit.EventType, projectID, accountID, policyID string) {
	ev := audit.NewEvent(t)
	ev.ProjectID = projectID
	ev.AccountID = accountID
	ev.PolicyID = policyID
	e.sink.Record(ev)
}

func firstPolicyID(v policy.Verdict) string {
	for _, r := range v.Reasons {
		if strings.TrimSpace(r.PolicyID) != "" {
			return r.PolicyID
		}
	}
	return ""
}
