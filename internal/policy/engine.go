// Package policy stores branch policies and validates proposed commits
// against them, aggregating every matching rule into a single verdict.
package policy

import (
	"fmt"

	"gitid/internal/logging"

	"github.com/samber/lo"
)

// Outcome is the gate result of a validation.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeWarn  Outcome = "warn"
	OutcomeBlock Outcome = "block"
)

// severity orders outcomes for most-severe-wins aggregation.
func severity(o Outcome) int {
	switch o {
	case OutcomeBlock:
		return 2
	case OutcomeWarn:
		return 1
	default:
		return 0
	}
}

// MoreSevere returns the more severe of two outcomes.
func MoreSevere(a, b Outcome) Outcome {
	if severity(b) > severity(a) {
		return b
	}
	return a
}

// Reason explains one triggered rule. User-visible failures always carry
// the policy ID and a plain-language message, never just a boolean.
type Reason struct {
	PolicyID string `yaml:"policy_id" json:"policy_id"`
	Message  string `yaml:"message" json:"message"`
}

// Verdict is the aggregated result of validating one proposed commit.
type Verdict struct {
	Outcome          Outcome  `json:"outcome"`
	Reasons          []Reason `json:"reasons,omitempty"`
	Advisories       []Reason `json:"advisories,omitempty"`
	MatchedPolicyIDs []string `json:"matched_policy_ids,omitempty"`
	// LinearHistoryRequired is set when any matching policy requires linear
	// history. The caller owns the commit graph and performs that check.
	LinearHistoryRequired bool `json:"linear_history_required,omitempty"`
}

// Blocked reports whether the verdict blocks the commit.
func (v Verdict) Blocked() bool { return v.Outcome == OutcomeBlock }

// CommitIdentity describes who is about to commit, as resolved by the
// caller (expected account plus the user performing the operation).
type CommitIdentity struct {
	AccountID string
	UserID    string
}

// Engine validates proposed commits against the stored branch policies.
type Engine struct {
	policies []BranchPolicy
	logger   *logging.AppLogger
}

// NewEngine creates a policy engine over the given policies.
func NewEngine(policies []BranchPolicy, logger *logging.AppLogger) *Engine {
	return &Engine{policies: policies, logger: logger}
}

// Policies returns the policies the engine evaluates.
func (e *Engine) Policies() []BranchPolicy {
	return e.policies
}

// Validate collects every policy matching the branch and folds their local
// verdicts into one aggregate. The aggregate outcome is the most severe
// local outcome, and all triggering reasons are kept: a single block never
// hides a second, independent violation.
func (e *Engine) Validate(branch string, id CommitIdentity, hasValidSignature bool) Verdict {
	verdict := Verdict{Outcome: OutcomeAllow}

	matching := e.matchingPolicies(branch)
	if len(matching) == 0 {
		return verdict
	}

	verdict.MatchedPolicyIDs = lo.Map(matching, func(p BranchPolicy, _ int) string { return p.ID })

	for _, p := range matching {
		if p.Enforcement == EnforcementOff {
			// Kept for audit, never triggers.
			continue
		}
		if p.RequireLinearHistory {
			verdict.LinearHistoryRequired = true
		}

		local := e.evaluate(p, id, hasValidSignature)
		if p.Enforcement == EnforcementAdvisory {
			verdict.Advisories = append(verdict.Advisories, local...)
			continue
		}

		if len(local) > 0 {
			outcome := OutcomeWarn
			if p.Enforcement == EnforcementStrict {
				outcome = OutcomeBlock
			}
			verdict.Outcome = MoreSevere(verdict.Outcome, outcome)
			verdict.Reasons = append(verdict.Reasons, local...)
		}
	}

	// Two strict policies demanding different accounts can never both be
	// satisfied; report the conflict instead of guessing a precedence.
	if conflict := detectConflict(matching); conflict != nil {
		verdict.Outcome = OutcomeBlock
		verdict.Reasons = append(verdict.Reasons, *conflict)
	}

	if e.logger != nil && verdict.Outcome != OutcomeAllow {
		e.logger.Warn("Branch policy verdict",
			"branch", branch,
			"outcome", verdict.Outcome,
			"matched_policies", len(matching),
			"reasons", len(verdict.Reasons),
		)
	}

	return verdict
}

// HasStrictFor reports whether any strict policy matches the branch. The
// hook enforcer fails closed on internal errors exactly when this is true.
func (e *Engine) HasStrictFor(branch string) bool {
	for _, p := range e.matchingPolicies(branch) {
		if p.Enforcement == EnforcementStrict {
			return true
		}
	}
	return false
}

// matchingPolicies returns the policies whose pattern matches the branch.
// Patterns that fail to compile at evaluation time are skipped and logged,
// keeping one corrupt rule from blocking all commits.
func (e *Engine) matchingPolicies(branch string) []BranchPolicy {
	var matching []BranchPolicy
	for _, p := range e.policies {
		ok, err := p.Matches(branch)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("Skipping policy with uncompilable branch pattern",
					"policy_id", p.ID, "pattern", p.BranchPattern, "error", err)
			}
			continue
		}
		if ok {
			matching = append(matching, p)
		}
	}
	return matching
}

// evaluate computes the triggered reasons of a single policy, independent
// of its enforcement level.
func (e *Engine) evaluate(p BranchPolicy, id CommitIdentity, hasValidSignature bool) []Reason {
	var reasons []Reason

	if p.RequiredAccountID != "" && id.AccountID != p.RequiredAccountID {
		reasons = append(reasons, Reason{
			PolicyID: p.ID,
			Message: fmt.Sprintf("branch requires account %q, current identity is account %q",
				p.RequiredAccountID, displayOr(id.AccountID, "unknown")),
		})
	}

	if p.RequireSignedCommits && !hasValidSignature {
		reasons = append(reasons, Reason{
			PolicyID: p.ID,
			Message:  "branch requires signed commits and no valid signature is present",
		})
	}

	if !p.allowsUser(id.UserID) {
		reasons = append(reasons, Reason{
			PolicyID: p.ID,
			Message: fmt.Sprintf("user %q is not in the allowed user list for this branch",
				displayOr(id.UserID, "unknown")),
		})
	}

	return reasons
}

// detectConflict finds two strict policies with different required accounts
// among the matching set.
func detectConflict(matching []BranchPolicy) *Reason {
	strict := lo.Filter(matching, func(p BranchPolicy, _ int) bool {
		return p.Enforcement == EnforcementStrict && p.RequiredAccountID != ""
	})
	for i := 1; i < len(strict); i++ {
		if strict[i].RequiredAccountID != strict[0].RequiredAccountID {
			return &Reason{
				PolicyID: strict[0].ID,
				Message: fmt.Sprintf("%v: policies %s and %s require different accounts (%q vs %q) on the same branch",
					ErrPolicyConflict, strict[0].ID, strict[i].ID,
					strict[0].RequiredAccountID, strict[i].RequiredAccountID),
			}
		}
	}
	return nil
}

func displayOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
