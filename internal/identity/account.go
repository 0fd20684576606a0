package identity

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Priority bounds for accounts. Lower numbers win ties during resolution.
const (
	MinPriority = 1
	MaxPriority = 10
)

// emailPattern is a permissive shape check, not an RFC 5322 validator.
// Git itself accepts nearly anything here; we only reject obvious garbage.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// colorPattern matches hex colors like "#1f6feb" used by the presentation layer.
var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Account represents a reusable git identity that can be bound to projects,
// remotes, and branch policies.
//
// Fields:
//   - ID: Unique identifier (UUID, assigned on creation)
//   - DisplayName: Human-facing label for UI (e.g., "Work")
//   - Email: Value written to user.email
//   - GitUserName: Value written to user.name
//   - SigningKeyRef: Optional signing key reference. Either a key id/path used
//     verbatim, or "keyring:<name>" resolved through the OS credential store.
//   - Priority: Tie-break rank 1-10, lower wins
//   - Color: Display color hint (hex), carried for the presentation layer
//   - IsDefault: At most one account per registry may be flagged default
//   - UsageCount: Number of accepted suggestions/resolutions for this account
//   - LastUsedAt: Unix timestamp of the last accepted resolution (0 = never)
type Account struct {
	ID            string `yaml:"id" json:"id"`
	DisplayName   string `yaml:"display_name" json:"display_name"`
	Email         string `yaml:"email" json:"email"`
	GitUserName   string `yaml:"git_user_name" json:"git_user_name"`
	SigningKeyRef string `yaml:"signing_key_ref,omitempty" json:"signing_key_ref,omitempty"`
	Priority      int    `yaml:"priority" json:"priority"`
	Color         string `yaml:"color,omitempty" json:"color,omitempty"`
	IsDefault     bool   `yaml:"is_default,omitempty" json:"is_default,omitempty"`
	UsageCount    int    `yaml:"usage_count" json:"usage_count"`
	LastUsedAt    int64  `yaml:"last_used_at,omitempty" json:"last_used_at,omitempty"`
}

// HasSigningKey returns true if the account references a signing key.
func (a Account) HasSigningKey() bool {
	return strings.TrimSpace(a.SigningKeyRef) != ""
}

// LastUsed returns the last-used timestamp as a time.Time, zero if never used.
func (a Account) LastUsed() time.Time {
	if a.LastUsedAt <= 0 {
		return time.Time{}
	}
	return time.Unix(a.LastUsedAt, 0).UTC()
}

// String returns a string representation of the account for logging.
func (a Account) String() string {
	return fmt.Sprintf("Account{ID: %s, Name: %s, Email: %s, Priority: %d, Default: %t}",
		a.ID, a.DisplayName, a.Email, a.Priority, a.IsDefault)
}

// ValidateAccount validates a single account for structural correctness.
// Records failing validation are rejected at the boundary and never reach
// the store.
//
// Validation checks:
//   - ID is non-empty
//   - DisplayName is non-empty and within length limits (1-100 characters)
//   - Email is non-empty and has a plausible shape
//   - GitUserName is non-empty
//   - Priority is within [1, 10]
//   - Color, if set, is a hex color like "#aabbcc"
//   - UsageCount is non-negative
func ValidateAccount(a Account) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("account ID cannot be empty")
	}

	name := strings.TrimSpace(a.DisplayName)
	if name == "" {
		return fmt.Errorf("account display name cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("account display name too long (%d characters, maximum 100)", len(name))
	}

	email := strings.TrimSpace(a.Email)
	if email == "" {
		return fmt.Errorf("account email cannot be empty")
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("account email %q does not look like an email address", email)
	}

	if strings.TrimSpace(a.GitUserName) == "" {
		return fmt.Errorf("account git user name cannot be empty")
	}

	if a.Priority < MinPriority || a.Priority > MaxPriority {
		return fmt.Errorf("account priority %d out of range (must be %d-%d)",
			a.Priority, MinPriority, MaxPriority)
	}

	if a.Color != "" && !colorPattern.MatchString(a.Color) {
		return fmt.Errorf("account color %q is not a hex color (expected format: #aabbcc)", a.Color)
	}

	if a.UsageCount < 0 {
		return fmt.Errorf("account usage count cannot be negative, got: %d", a.UsageCount)
	}

	return nil
}

// ValidateAllAccounts validates a list of accounts for structural correctness
// and registry-wide constraints.
//
// Validation checks:
//   - No duplicate account IDs
//   - No duplicate emails (case-insensitive)
//   - At most one account flagged as default
//   - Each account is structurally valid
func ValidateAllAccounts(accounts []Account) error {
	if len(accounts) == 0 {
		// Empty registry is valid (nothing configured yet).
		return nil
	}

	seenIDs := make(map[string]string, len(accounts)) // ID -> DisplayName
	defaultID := ""
	for _, a := range accounts {
		if existing, ok := seenIDs[a.ID]; ok {
			return fmt.Errorf("duplicate account ID %q found in accounts %q and %q",
				a.ID, existing, a.DisplayName)
		}
		seenIDs[a.ID] = a.DisplayName

		if a.IsDefault {
			if defaultID != "" {
				return fmt.Errorf("multiple default accounts: %q and %q (at most one account may be default)",
					defaultID, a.ID)
			}
			defaultID = a.ID
		}
	}

	seenEmails := make(map[string]string, len(accounts))
	for _, a := range accounts {
		lower := strings.ToLower(strings.TrimSpace(a.Email))
		if existing, ok := seenEmails[lower]; ok {
			return fmt.Errorf("duplicate account email found: %q used by %q and %q",
				a.Email, existing, a.DisplayName)
		}
		seenEmails[lower] = a.DisplayName
	}

	var validationErrors []string
	for i, a := range accounts {
		if err := ValidateAccount(a); err != nil {
			validationErrors = append(validationErrors,
				fmt.Sprintf("account[%d] (%s): %v", i, a.DisplayName, err))
		}
	}
	if len(validationErrors) > 0 {
		return fmt.Errorf("account validation failed:\n  - %s",
			strings.Join(validationErrors, "\n  - "))
	}

	return nil
}
