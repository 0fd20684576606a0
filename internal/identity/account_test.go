package identity

import (
	"strings"
	"testing"
)

func validAccount() Account {
	return Account{
		ID:          "acc-1",
		DisplayName: "Work",
		Email:       "jane@corp.example",
		GitUserName: "Jane Doe",
		Priority:    2,
	}
}

// TestValidateAccount_ValidAccounts tests that well-formed accounts pass.
func TestValidateAccount_ValidAccounts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Account)
	}{
		{name: "minimal account", mutate: func(*Account) {}},
		{name: "with signing key", mutate: func(a *Account) { a.SigningKeyRef = "keyring:work" }},
		{name: "with color", mutate: func(a *Account) { a.Color = "#1f6feb" }},
		{name: "default flag", mutate: func(a *Account) { a.IsDefault = true }},
		{name: "priority at lower bound", mutate: func(a *Account) { a.Priority = MinPriority }},
		{name: "priority at upper bound", mutate: func(a *Account) { a.Priority = MaxPriority }},
		{name: "with usage history", mutate: func(a *Account) { a.UsageCount = 12; a.LastUsedAt = 1700000000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAccount()
			tt.mutate(&a)
			if err := ValidateAccount(a); err != nil {
				t.Errorf("expected no error for valid account, got: %v", err)
			}
		})
	}
}

// TestValidateAccount_InvalidAccounts tests each rejection rule.
func TestValidateAccount_InvalidAccounts(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Account)
		expectErr string
	}{
		{
			name:      "empty ID",
			mutate:    func(a *Account) { a.ID = "" },
			expectErr: "id",
		},
		{
			name:      "empty display name",
			mutate:    func(a *Account) { a.DisplayName = "" },
			expectErr: "display name",
		},
		{
			name:      "display name too long",
			mutate:    func(a *Account) { a.DisplayName = strings.Repeat("x", 101) },
			expectErr: "display name",
		},
		{
			name:      "empty email",
			mutate:    func(a *Account) { a.Email = "" },
			expectErr: "email",
		},
		{
			name:      "email without at sign",
			mutate:    func(a *Account) { a.Email = "jane.corp.example" },
			expectErr: "email",
		},
		{
			name:      "empty git user name",
			mutate:    func(a *Account) { a.GitUserName = "" },
			expectErr: "git user name",
		},
		{
			name:      "priority below range",
			mutate:    func(a *Account) { a.Priority = 0 },
			expectErr: "priority",
		},
		{
			name:      "priority above range",
			mutate:    func(a *Account) { a.Priority = 11 },
			expectErr: "priority",
		},
		{
			name:      "malformed color",
			mutate:    func(a *Account) { a.Color = "blue" },
			expectErr: "color",
		},
		{
			name:      "negative usage count",
			mutate:    func(a *Account) { a.UsageCount = -1 },
			expectErr: "usage count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAccount()
			tt.mutate(&a)
			err := ValidateAccount(a)
			if err == nil {
				t.Fatalf("expected error for %s, got nil", tt.name)
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.expectErr) {
				t.Errorf("expected error mentioning %q, got: %v", tt.expectErr, err)
			}
		})
	}
}

// TestValidateAllAccounts_CrossRecordRules tests duplicate and default
// invariants across a whole slice.
func TestValidateAllAccounts_CrossRecordRules(t *testing.T) {
	base := validAccount()
	second := validAccount()
	second.ID = "acc-2"
	second.DisplayName = "Personal"
	second.Email = "jane@home.example"

	t.Run("distinct accounts pass", func(t *testing.T) {
		if err := ValidateAllAccounts([]Account{base, second}); err != nil {
			t.Errorf("expected no error, got: %v", err)
		}
	})

	t.Run("duplicate IDs rejected", func(t *testing.T) {
		dup := second
		dup.ID = base.ID
		if err := ValidateAllAccounts([]Account{base, dup}); err == nil {
			t.Error("expected error for duplicate account IDs, got nil")
		}
	})

	t.Run("duplicate emails rejected", func(t *testing.T) {
		dup := second
		dup.Email = base.Email
		if err := ValidateAllAccounts([]Account{base, dup}); err == nil {
			t.Error("expected error for duplicate emails, got nil")
		}
	})

	t.Run("two defaults rejected", func(t *testing.T) {
		a, b := base, second
		a.IsDefault = true
		b.IsDefault = true
		if err := ValidateAllAccounts([]Account{a, b}); err == nil {
			t.Error("expected error for two default accounts, got nil")
		}
	})
}

// TestAccount_HasSigningKey tests signing key detection.
func TestAccount_HasSigningKey(t *testing.T) {
	a := validAccount()
	if a.HasSigningKey() {
		t.Error("account without key ref should report no signing key")
	}
	a.SigningKeyRef = "  "
	if a.HasSigningKey() {
		t.Error("whitespace-only key ref should report no signing key")
	}
	a.SigningKeyRef = "ABCDEF0123456789"
	if !a.HasSigningKey() {
		t.Error("account with key ref should report a signing key")
	}
}

// TestAccount_LastUsed tests the timestamp conversion.
func TestAccount_LastUsed(t *testing.T) {
	a := validAccount()
	if !a.LastUsed().IsZero() {
		t.Error("never-used account should report zero time")
	}
	a.LastUsedAt = 1700000000
	if got := a.LastUsed().Unix(); got != 1700000000 {
		t.Errorf("LastUsed() = %d, want 1700000000", got)
	}
}
