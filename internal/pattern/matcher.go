// Package pattern evaluates stored matching rules against a repository
// context and returns ranked account candidates.
package pattern

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"gitid/internal/logging"
)

// Specificity multipliers applied to a pattern's declared confidence.
// Only the ordering (exact > regex > glob) is contractual; the values are
// tuning constants kept next to the scorer.
const (
	specificityExact = 1.0
	specificityRegex = 0.85
	specificityGlob  = 0.7
)

// MatchContext is the repository context a match runs against.
type MatchContext struct {
	// Path is the absolute local path of the repository.
	Path string
	// RemoteURL is the remote URL to match against, empty when the project
	// has no remotes.
	RemoteURL string
}

// Candidate is one pattern's vote for an account.
type Candidate struct {
	AccountID string
	Pattern   Pattern
	// RawScore is the pattern confidence scaled by kind specificity. The
	// suggestion engine folds account-level signal on top of this.
	RawScore float64
}

// Matcher evaluates a set of stored patterns against a repository context.
// Expressions are compiled once at construction; Match only runs the
// precompiled forms.
type Matcher struct {
	patterns    []Pattern
	compiled    []compiled
	compileErrs []error
	logger      *logging.AppLogger
}

// NewMatcher creates a matcher over the given patterns. The slice is not
// validated here; a pattern whose expression does not compile is skipped
// and reported per match, so one corrupt rule never blocks a whole
// resolution.
func NewMatcher(patterns []Pattern, logger *logging.AppLogger) *Matcher {
	m := &Matcher{
		patterns:    patterns,
		compiled:    make([]compiled, len(patterns)),
		compileErrs: make([]error, len(patterns)),
		logger:      logger,
	}
	for i, p := range patterns {
		m.compiled[i], m.compileErrs[i] = p.compile()
	}
	return m
}

// Match evaluates every pattern against the context and returns candidates
// ranked best-first, plus the per-pattern errors of any skipped rules.
// An empty candidate list means "no suggestion", which callers must treat
// as distinct from a low-confidence suggestion.
func (m *Matcher) Match(ctx MatchContext) ([]Candidate, []error) {
	var (
		candidates []Candidate
		skipped    []error
	)

	normalizedURL := NormalizeRemoteURL(ctx.RemoteURL)

	for i, p := range m.patterns {
		if err := m.compileErrs[i]; err != nil {
			// A pattern that fails to compile despite passing validation is
			// excluded from scoring rather than aborting the resolution.
			skipped = append(skipped, fmt.Errorf("pattern %s skipped: %w", p.ID, err))
			if m.logger != nil {
				m.logger.Warn("Skipping pattern that failed to compile",
					"pattern_id", p.ID, "expression", p.Expression, "error", err)
			}
			continue
		}
		if !matchOne(p, m.compiled[i], ctx.Path, normalizedURL) {
			continue
		}

		candidates = append(candidates, Candidate{
			AccountID: p.AccountID,
			Pattern:   p,
			RawScore:  p.Confidence * specificity(p.Kind),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RawScore != candidates[j].RawScore {
			return candidates[i].RawScore > candidates[j].RawScore
		}
		// Ties: heavier used pattern first, then the more recently added.
		if candidates[i].Pattern.UsageCount != candidates[j].Pattern.UsageCount {
			return candidates[i].Pattern.UsageCount > candidates[j].Pattern.UsageCount
		}
		if candidates[i].Pattern.CreatedAt != candidates[j].Pattern.CreatedAt {
			return candidates[i].Pattern.CreatedAt > candidates[j].Pattern.CreatedAt
		}
		return candidates[i].Pattern.ID < candidates[j].Pattern.ID
	})

	return candidates, skipped
}

func specificity(k Kind) float64 {
	switch k {
	case KindExact:
		return specificityExact
	case KindRegex:
		return specificityRegex
	default:
		return specificityGlob
	}
}

// matchOne evaluates a single precompiled pattern against the path and
// normalized URL. Patterns whose expression failed to compile never reach
// here.
func matchOne(p Pattern, c compiled, path, normalizedURL string) bool {
	switch p.Kind {
	case KindExact:
		if path != "" && p.Expression == path {
			return true
		}
		return normalizedURL != "" && NormalizeRemoteURL(p.Expression) == normalizedURL

	case KindGlob:
		if path != "" && c.glob.Match(path) {
			return true
		}
		return normalizedURL != "" && c.glob.Match(normalizedURL)

	case KindRegex:
		return normalizedURL != "" && c.regex.MatchString(normalizedURL)

	default:
		return false
	}
}

// scpLikePattern matches SSH shorthand URLs like "git@github.com:org/repo.git".
var scpLikePattern = regexp.MustCompile(`^(?:ssh://)?([a-zA-Z0-9_.-]+)@([a-zA-Z0-9_.-]+):(.+)$`)

// NormalizeRemoteURL brings a remote URL into a canonical comparable form:
// SSH shorthand is rewritten as https, the host is lowercased, and a
// trailing ".git" suffix is dropped. Matching is host case-insensitive but
// path case-sensitive, which mirrors how forges treat repository names.
func NormalizeRemoteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if m := scpLikePattern.FindStringSubmatch(raw); m != nil {
		raw = "https://" + m[2] + "/" + m[3]
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Not parseable as a URL; compare as-is minus the .git suffix.
		return strings.TrimSuffix(raw, ".git")
	}

	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, ".git")
	u.User = nil
	return u.String()
}
