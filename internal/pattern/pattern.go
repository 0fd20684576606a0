package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidPatternExpression indicates an expression that does not
	// compile under its declared kind.
	ErrInvalidPatternExpression = errors.New("invalid pattern expression")

	// ErrUnknownAccount indicates the pattern references an account that is
	// not in the registry.
	ErrUnknownAccount = errors.New("pattern references unknown account")
)

// Kind declares how a pattern expression is evaluated.
type Kind string

const (
	// KindExact matches only identical strings (case-sensitive for paths,
	// case-insensitive for the URL host).
	KindExact Kind = "exact"

	// KindGlob supports *, ** and ? against the remote URL or path.
	KindGlob Kind = "glob"

	// KindRegex is evaluated against the remote URL only.
	KindRegex Kind = "regex"
)

// IsValid checks if the kind is one of the supported values.
func (k Kind) IsValid() bool {
	return k == KindExact || k == KindGlob || k == KindRegex
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Origin records who authored a pattern.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginSystem Origin = "system"
)

// IsValid checks if the origin is one of the supported values.
func (o Origin) IsValid() bool {
	return o == OriginUser || o == OriginSystem
}

// Pattern is a rule mapping a remote URL or path shape to an account.
//
// Fields:
//   - ID: Unique identifier (UUID, assigned on creation)
//   - Expression: The match expression, interpreted per Kind
//   - Kind: "exact", "glob" or "regex"
//   - AccountID: The account this pattern votes for
//   - Confidence: Author-declared weight in [0, 1]
//   - Origin: "user" or "system"
//   - UsageCount: How often this pattern backed an accepted suggestion
//   - CreatedAt: Unix timestamp, used as the recency tie-breaker
type Pattern struct {
	ID         string  `yaml:"id" json:"id"`
	Expression string  `yaml:"expression" json:"expression"`
	Kind       Kind    `yaml:"kind" json:"kind"`
	AccountID  string  `yaml:"account_id" json:"account_id"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Origin     Origin  `yaml:"origin" json:"origin"`
	UsageCount int     `yaml:"usage_count" json:"usage_count"`
	CreatedAt  int64   `yaml:"created_at" json:"created_at"`
}

// String returns a string representation of the pattern for logging.
func (p Pattern) String() string {
	return fmt.Sprintf("Pattern{ID: %s, Kind: %s, Expression: %q, Account: %s, Confidence: %.2f}",
		p.ID, p.Kind, p.Expression, p.AccountID, p.Confidence)
}

// compile returns a matcher-ready form of the expression, or an error
// wrapping ErrInvalidPatternExpression. Exact patterns always compile.
func (p Pattern) compile() (compiled, error) {
	switch p.Kind {
	case KindExact:
		return compiled{}, nil
	case KindGlob:
		// '/' as separator: '*' stays within one path segment, '**' crosses.
		g, err := glob.Compile(p.Expression, '/')
		if err != nil {
			return compiled{}, fmt.Errorf("%w: glob %q: %v", ErrInvalidPatternExpression, p.Expression, err)
		}
		return compiled{glob: g}, nil
	case KindRegex:
		re, err := regexp.Compile(p.Expression)
		if err != nil {
			return compiled{}, fmt.Errorf("%w: regex %q: %v", ErrInvalidPatternExpression, p.Expression, err)
		}
		return compiled{regex: re}, nil
	default:
		return compiled{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPatternExpression, p.Kind)
	}
}

type compiled struct {
	glob  glob.Glob
	regex *regexp.Regexp
}

// AccountChecker is the subset of the account registry the pattern package
// needs for reference validation.
type AccountChecker interface {
	Exists(id string) bool
}

// ValidatePattern validates a pattern for structural correctness, compiles
// its expression under the declared kind, and checks the account reference.
// Records failing validation are rejected at the boundary and never reach
// the store.
func ValidatePattern(p Pattern, accounts AccountChecker) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("pattern ID cannot be empty")
	}
	if strings.TrimSpace(p.Expression) == "" {
		return fmt.Errorf("pattern expression cannot be empty")
	}
	if !p.Kind.IsValid() {
		return fmt.Errorf("invalid pattern kind %q (must be %q, %q or %q)",
			p.Kind, KindExact, KindGlob, KindRegex)
	}
	if !p.Origin.IsValid() {
		return fmt.Errorf("invalid pattern origin %q (must be %q or %q)",
			p.Origin, OriginUser, OriginSystem)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern confidence %.3f out of range (must be within [0, 1])", p.Confidence)
	}
	if p.UsageCount < 0 {
		return fmt.Errorf("pattern usage count cannot be negative, got: %d", p.UsageCount)
	}

	if _, err := p.compile(); err != nil {
		return err
	}

	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("pattern account ID cannot be empty")
	}
	if accounts != nil && !accounts.Exists(p.AccountID) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, p.AccountID)
	}

	return nil
}

// ValidateAllPatterns validates a list of patterns, checking for duplicate
// IDs and validating each record. Used by import and by store round trips.
func ValidateAllPatterns(patterns []Pattern, accounts AccountChecker) error {
	seen := make(map[string]bool, len(patterns))
	var validationErrors []string
	for i, p := range patterns {
		if seen[p.ID] {
			return fmt.Errorf("duplicate pattern ID %q", p.ID)
		}
		seen[p.ID] = true
		if err := ValidatePattern(p, accounts); err != nil {
			validationErrors = append(validationErrors,
				fmt.Sprintf("pattern[%d] (%s): %v", i, p.Expression, err))
		}
	}
	if len(validationErrors) > 0 {
		return fmt.Errorf("pattern validation failed:\n  - %s",
			strings.Join(validationErrors, "\n  - "))
	}
	return nil
}
