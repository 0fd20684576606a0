// Package suggest combines pattern matches with historical account usage
// to produce a single ranked suggestion with a confidence score and a
// human-readable justification.
package suggest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gitid/internal/audit"
	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/project"

	"github.com/samber/lo"
)

// ErrNoSuggestion indicates no pattern matched the context at all. Callers
// must treat this as distinct from a low-confidence suggestion.
var ErrNoSuggestion = errors.New("no suggestion for context")

// Weights are the tunable scoring constants. The defaults reproduce the
// observed behavior; they are configuration, not code.
type Weights struct {
	// UsageBonusMax is the maximum bonus an account earns from usage history.
	UsageBonusMax float64 `yaml:"usage_bonus_max"`
	// UsageSaturation is the usage count at which the bonus saturates.
	UsageSaturation int `yaml:"usage_saturation"`
	// DefaultBonus is added when the candidate account is the default.
	DefaultBonus float64 `yaml:"default_bonus"`
	// AmbiguityWindow flags a suggestion ambiguous when the top two
	// candidates score within this distance of each other.
	AmbiguityWindow float64 `yaml:"ambiguity_window"`
}

// DefaultWeights returns the stock scoring constants.
func DefaultWeights() Weights {
	return Weights{
		UsageBonusMax:   0.1,
		UsageSaturation: 50,
		DefaultBonus:    0.05,
		AmbiguityWindow: 0.05,
	}
}

// Validate rejects weight sets that would break score clamping.
func (w Weights) Validate() error {
	if w.UsageBonusMax < 0 || w.DefaultBonus < 0 || w.AmbiguityWindow < 0 {
		return fmt.Errorf("suggestion weights cannot be negative: %+v", w)
	}
	if w.UsageSaturation <= 0 {
		return fmt.Errorf("usage saturation must be positive, got: %d", w.UsageSaturation)
	}
	return nil
}

// Suggestion is the engine's ranked answer for one context.
type Suggestion struct {
	ProjectID string `json:"project_id,omitempty"`
	AccountID string `json:"account_id"`
	// Confidence is the final clamped score in [0, 1].
	Confidence float64 `json:"confidence"`
	// Ambiguous is set when the runner-up scored within the ambiguity
	// window; callers should prompt instead of auto-applying.
	Ambiguous bool `json:"ambiguous,omitempty"`
	// MatchedPatternIDs lists every pattern backing this account.
	MatchedPatternIDs []string `json:"matched_pattern_ids,omitempty"`
	// Justification is a plain-language explanation of the score.
	Justification string `json:"justification"`
	// RunnerUpAccountID is the second-best account, empty if none.
	RunnerUpAccountID string `json:"runner_up_account_id,omitempty"`
}

// Engine folds pattern candidates and account signal into suggestions.
// Suggest is read-only; the registries mutate only through Accept.
type Engine struct {
	matcher  *pattern.Matcher
	accounts *identity.Registry
	projects *project.Registry
	weights  Weights
	sink     audit.Sink
	logger   *logging.AppLogger
}

// NewEngine creates a suggestion engine. A nil sink disables audit events.
func NewEngine(matcher *pattern.Matcher, accounts *identity.Registry, projects *project.Registry,
	weights Weights, sink audit.Sink, logger *logging.AppLogger) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Engine{
		matcher:  matcher,
		accounts: accounts,
		projects: projects,
		weights:  weights,
		sink:     sink,
		logger:   logger,
	}, nil
}

// scored is one account's aggregate during ranking.
type scored struct {
	account    identity.Account
	score      float64
	patternIDs []string
	topPattern pattern.Pattern
}

// Suggest evaluates the context and returns the single best suggestion.
// Returns ErrNoSuggestion when no pattern matches. Calling Suggest twice
// with unchanged state yields identical results; no counters mutate on read.
func (e *Engine) Suggest(projectID string, ctx pattern.MatchContext) (*Suggestion, error) {
	candidates, skipped := e.matcher.Match(ctx)
	for _, err := range skipped {
		if e.logger != nil {
			e.logger.Warn("Pattern excluded from scoring", "error", err)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: path=%s url=%s", ErrNoSuggestion, ctx.Path, ctx.RemoteURL)
	}

	// Group candidates per account: the best raw score carries, every
	// matched pattern is reported.
	byAccount := make(map[string]*scored)
	for _, c := range candidates {
		account, err := e.accounts.Get(c.AccountID)
		if err != nil {
			// Dangling reference; validation should prevent this, exclude
			// from scoring rather than failing the resolution.
			if e.logger != nil {
				e.logger.Warn("Candidate references unknown account",
					"pattern_id", c.Pattern.ID, "account_id", c.AccountID)
			}
			continue
		}

		s, ok := byAccount[c.AccountID]
		if !ok {
			s = &scored{account: account, score: c.RawScore, topPattern: c.Pattern}
			byAccount[c.AccountID] = s
		}
		if c.RawScore > s.score {
			s.score = c.RawScore
			s.topPattern = c.Pattern
		}
		s.patternIDs = append(s.patternIDs, c.Pattern.ID)
	}
	if len(byAccount) == 0 {
		return nil, fmt.Errorf("%w: all candidates referenced unknown accounts", ErrNoSuggestion)
	}

	// Fold in account-level signal and clamp.
	ranked := lo.Values(byAccount)
	for _, s := range ranked {
		usage := float64(s.account.UsageCount) / float64(e.weights.UsageSaturation)
		if usage > 1 {
			usage = 1
		}
		s.score += e.weights.UsageBonusMax * usage
		if s.account.IsDefault {
			s.score += e.weights.DefaultBonus
		}
		if s.score > 1 {
			s.score = 1
		}
		if s.score < 0 {
			s.score = 0
		}
	}

	// Ties resolved by priority (lower wins), then account ID, for full
	// determinism.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].account.Priority != ranked[j].account.Priority {
			return ranked[i].account.Priority < ranked[j].account.Priority
		}
		return ranked[i].account.ID < ranked[j].account.ID
	})

	top := ranked[0]
	s := &Suggestion{
		ProjectID:         projectID,
		AccountID:         top.account.ID,
		Confidence:        top.score,
		MatchedPatternIDs: top.patternIDs,
		Justification: fmt.Sprintf("%s pattern %q matched with confidence %.2f",
			top.topPattern.Kind, top.topPattern.Expression, top.score),
	}
	if len(ranked) > 1 {
		runnerUp := ranked[1]
		s.RunnerUpAccountID = runnerUp.account.ID
		if top.score-runnerUp.score < e.weights.AmbiguityWindow {
			s.Ambiguous = true
			s.Justification += fmt.Sprintf("; close runner-up %q (%.2f apart)",
				runnerUp.account.DisplayName, top.score-runnerUp.score)
		}
	}

	if e.logger != nil {
		e.logger.Debug("Suggestion computed",
			"project_id", projectID,
			"account_id", s.AccountID,
			"confidence", s.Confidence,
			"ambiguous", s.Ambiguous,
		)
	}
	return s, nil
}

// Accept records the user's confirmation of a suggestion. This is the
// single terminal write step of a resolution: the chosen account's usage
// counter increments by exactly one, its last-used time is stamped, the
// project confidence is updated, and an audit event fires. No other
// account's counters change.
func (e *Engine) Accept(s *Suggestion, now time.Time) error {
	if s == nil {
		return fmt.Errorf("cannot accept a nil suggestion")
	}

	if err := e.accounts.RecordUsage(s.AccountID, now); err != nil {
		return fmt.Errorf("recording usage for account %s: %w", s.AccountID, err)
	}

	if s.ProjectID != "" && e.projects != nil {
		if err := e.projects.SetConfidence(s.ProjectID, s.Confidence); err != nil {
			return fmt.Errorf("updating project confidence: %w", err)
		}
	}

	ev := audit.NewEvent(audit.EventSuggestionAccepted)
	ev.ProjectID = s.ProjectID
	ev.AccountID = s.AccountID
	if len(s.MatchedPatternIDs) > 0 {
		ev.PatternID = s.MatchedPatternIDs[0]
	}
	e.sink.Record(ev)
	return nil
}

// Reject records that the user declined a suggestion. Rejections never
// mutate registries; they only feed the accuracy measurement.
func (e *Engine) Reject(s *Suggestion) {
	if s == nil {
		return
	}
	ev := audit.NewEvent(audit.EventSuggestionRejected)
	ev.ProjectID = s.ProjectID
	ev.AccountID = s.AccountID
	if len(s.MatchedPatternIDs) > 0 {
		ev.PatternID = s.MatchedPatternIDs[0]
	}
	e.sink.Record(ev)
}

// Accuracy reports accepted/(accepted+rejected) over the sliding window,
// when the configured sink can replay events.
func (e *Engine) Accuracy(projectID string, window time.Duration) (float64, bool) {
	r, ok := e.sink.(audit.Reader)
	if !ok {
		return 0, false
	}
	return audit.Accuracy(r, projectID, window, time.Now().UTC())
}
