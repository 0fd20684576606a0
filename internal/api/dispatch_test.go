package api

import (
	"encoding/json"
	"strings"
	"testing"

	"gitid/internal/audit"
	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"
	"gitid/internal/store"
	"gitid/internal/suggest"
)

// newTestApp loads an app over an in-memory store, optionally pre-seeded.
func newTestApp(t *testing.T, seed func(*store.MemStore)) (*App, *store.MemStore) {
	t.Helper()
	logger, _ := logging.NewTestLogger()
	ms := store.NewMemStore()
	if seed != nil {
		seed(ms)
	}
	app, err := Load(ms, audit.NewMemorySink(), logger)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return app, ms
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling payload: %v", err)
	}
	return data
}

func seedProject(ms *store.MemStore) {
	ms.SaveProjects([]project.Project{
		{
			ID:   "proj-1",
			Path: "/home/jane/src/widget",
			Name: "widget",
			RemoteURLs: map[string]string{
				"origin": "git@github.com:acme/widget.git",
			},
			Platform: project.PlatformGitHub,
		},
	})
}

func seedAccounts(ms *store.MemStore) {
	ms.SaveAccounts([]identity.Account{
		{ID: "work", DisplayName: "Work", Email: "jane@corp.example", GitUserName: "Jane Doe", Priority: 2},
		{ID: "personal", DisplayName: "Personal", Email: "jane@home.example", GitUserName: "Jane", Priority: 5},
	})
}

// TestDispatch_UnknownOperation tests the routing error path.
func TestDispatch_UnknownOperation(t *testing.T) {
	app, _ := newTestApp(t, nil)

	resp := app.Dispatch(Request{Operation: "frobnicate"})
	if resp.Success {
		t.Fatal("unknown operation must fail")
	}
	if !strings.Contains(resp.Error, "unknown operation") {
		t.Errorf("error = %q", resp.Error)
	}
}

// TestDispatch_AddAccount tests defaulting, registry insertion and
// persistence of the add-account operation.
func TestDispatch_AddAccount(t *testing.T) {
	app, ms := newTestApp(t, nil)

	resp := app.Dispatch(Request{
		Operation: "add-account",
		Payload: mustPayload(t, map[string]any{
			"display_name":  "Work",
			"email":         "jane@corp.example",
			"git_user_name": "Jane Doe",
		}),
	})
	if !resp.Success {
		t.Fatalf("add-account failed: %s", resp.Error)
	}

	account, ok := resp.Data.(identity.Account)
	if !ok {
		t.Fatalf("data is %T, want identity.Account", resp.Data)
	}
	if account.ID == "" {
		t.Error("missing ID must be generated")
	}
	if account.Priority != identity.MaxPriority {
		t.Errorf("priority = %d, want defaulted to %d", account.Priority, identity.MaxPriority)
	}

	stored, err := ms.LoadAccounts()
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored accounts = %v, %v", stored, err)
	}

	// A second account with the same display name is rejected and nothing
	// is persisted for it.
	resp = app.Dispatch(Request{
		Operation: "add-account",
		Payload: mustPayload(t, map[string]any{
			"display_name":  "Work",
			"email":         "other@corp.example",
			"git_user_name": "Jane Doe",
		}),
	})
	if resp.Success {
		t.Error("duplicate display name must fail")
	}
	stored, _ = ms.LoadAccounts()
	if len(stored) != 1 {
		t.Errorf("failed add must not persist, stored = %d", len(stored))
	}
}

// TestDispatch_AddPatternAndSuggest tests that a pattern added through
// the boundary feeds the next suggestion in the same invocation.
func TestDispatch_AddPatternAndSuggest(t *testing.T) {
	app, _ := newTestApp(t, func(ms *store.MemStore) {
		seedAccounts(ms)
		seedProject(ms)
	})

	resp := app.Dispatch(Request{
		Operation: "add-pattern",
		Payload: mustPayload(t, map[string]any{
			"expression": "https://github.com/acme/*",
			"kind":       string(pattern.KindGlob),
			"account_id": "work",
			"confidence": 0.9,
		}),
	})
	if !resp.Success {
		t.Fatalf("add-pattern failed: %s", resp.Error)
	}
	p := resp.Data.(pattern.Pattern)
	if p.ID == "" || p.Origin != pattern.OriginUser || p.CreatedAt == 0 {
		t.Errorf("pattern defaults not applied: %+v", p)
	}

	resp = app.Dispatch(Request{
		Operation: "suggest",
		Payload:   mustPayload(t, map[string]any{"project_id": "proj-1"}),
	})
	if !resp.Success {
		t.Fatalf("suggest failed: %s", resp.Error)
	}
	s, isValue := resp.Data.(suggest.Suggestion)
	if !isValue {
		t.Fatalf("data is %T, every operation returns value-typed data", resp.Data)
	}
	if s.AccountID != "work" {
		t.Errorf("suggested account = %s, want work", s.AccountID)
	}

	// A resolve with no mapping falls through to the suggestion engine and
	// must see the pattern added a moment ago.
	resp = app.Dispatch(Request{
		Operation: "resolve",
		Payload: mustPayload(t, map[string]any{
			"project_id":  "proj-1",
			"remote_name": "origin",
		}),
	})
	if !resp.Success {
		t.Fatalf("resolve after add-pattern failed: %s", resp.Error)
	}
	res := resp.Data.(remote.Resolution)
	if res.AccountID != "work" || res.Source != "suggestion" {
		t.Errorf("resolution = %+v, want the fresh pattern's account via the suggestion path", res)
	}

	resp = app.Dispatch(Request{
		Operation: "accept-suggestion",
		Payload:   mustPayload(t, map[string]any{"project_id": "proj-1"}),
	})
	if !resp.Success {
		t.Fatalf("accept-suggestion failed: %s", resp.Error)
	}
	if _, isValue := resp.Data.(suggest.Suggestion); !isValue {
		t.Fatalf("data is %T, every operation returns value-typed data", resp.Data)
	}
	account, _ := app.Accounts.Get("work")
	if account.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1 after accept", account.UsageCount)
	}

	// Unknown account reference fails validation.
	resp = app.Dispatch(Request{
		Operation: "add-pattern",
		Payload: mustPayload(t, map[string]any{
			"expression": "https://github.com/other/*",
			"kind":       string(pattern.KindGlob),
			"account_id": "ghost",
			"confidence": 0.9,
		}),
	})
	if resp.Success {
		t.Error("pattern referencing unknown account must fail")
	}
}

// TestDispatch_SetMappingAndResolve tests the mapping lifecycle through
// the boundary.
func TestDispatch_SetMappingAndResolve(t *testing.T) {
	app, ms := newTestApp(t, func(ms *store.MemStore) {
		seedAccounts(ms)
		seedProject(ms)
	})

	resp := app.Dispatch(Request{
		Operation: "set-mapping",
		Payload: mustPayload(t, map[string]any{
			"project_id":  "proj-1",
			"remote_name": "origin",
			"account_id":  "personal",
		}),
	})
	if !resp.Success {
		t.Fatalf("set-mapping failed: %s", resp.Error)
	}

	stored, _ := ms.LoadMappings()
	if len(stored) != 1 || stored[0].AccountID != "personal" {
		t.Errorf("stored mappings = %+v", stored)
	}

	resp = app.Dispatch(Request{
		Operation: "resolve",
		Payload: mustPayload(t, map[string]any{
			"project_id":  "proj-1",
			"remote_name": "origin",
		}),
	})
	if !resp.Success {
		t.Fatalf("resolve failed: %s", resp.Error)
	}
	res := resp.Data.(remote.Resolution)
	if res.AccountID != "personal" || res.Source != "mapping" {
		t.Errorf("resolution = %+v", res)
	}

	// Unknown remote on a known project is rejected.
	resp = app.Dispatch(Request{
		Operation: "set-mapping",
		Payload: mustPayload(t, map[string]any{
			"project_id":  "proj-1",
			"remote_name": "mirror",
			"account_id":  "work",
		}),
	})
	if resp.Success {
		t.Error("mapping to an unknown remote must fail")
	}
}

// TestDispatch_RemoveAccount tests the dangling-reference refusal.
func TestDispatch_RemoveAccount(t *testing.T) {
	app, _ := newTestApp(t, func(ms *store.MemStore) {
		seedAccounts(ms)
		ms.SavePatterns([]pattern.Pattern{
			{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
				AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser},
		})
	})

	resp := app.Dispatch(Request{
		Operation: "remove-account",
		Payload:   mustPayload(t, map[string]any{"account_id": "work"}),
	})
	if resp.Success {
		t.Fatal("removing a referenced account must fail")
	}
	if !strings.Contains(resp.Error, "referenced by pattern") {
		t.Errorf("error = %q", resp.Error)
	}

	resp = app.Dispatch(Request{
		Operation: "remove-account",
		Payload:   mustPayload(t, map[string]any{"account_id": "personal"}),
	})
	if !resp.Success {
		t.Fatalf("removing an unreferenced account failed: %s", resp.Error)
	}
	if app.Accounts.Exists("personal") {
		t.Error("account still present after removal")
	}
}

// TestDispatch_Validate tests the policy check operation.
func TestDispatch_Validate(t *testing.T) {
	app, _ := newTestApp(t, func(ms *store.MemStore) {
		seedAccounts(ms)
		ms.SavePolicies([]policy.BranchPolicy{
			{ID: "pol1", BranchPattern: "^main$", RequiredAccountID: "work",
				Enforcement: policy.EnforcementStrict},
		})
	})

	resp := app.Dispatch(Request{
		Operation: "validate",
		Payload: mustPayload(t, map[string]any{
			"branch":     "main",
			"account_id": "personal",
		}),
	})
	if !resp.Success {
		t.Fatalf("validate failed: %s", resp.Error)
	}
	verdict := resp.Data.(policy.Verdict)
	if !verdict.Blocked() {
		t.Errorf("verdict = %+v, want block", verdict)
	}

	resp = app.Dispatch(Request{
		Operation: "validate",
		Payload: mustPayload(t, map[string]any{
			"branch":     "main",
			"account_id": "work",
		}),
	})
	verdict = resp.Data.(policy.Verdict)
	if verdict.Blocked() {
		t.Errorf("verdict = %+v, want allow", verdict)
	}
}

// TestDispatch_AddPolicy tests defaulting and whole-slice revalidation
// when a policy is added next to existing ones.
func TestDispatch_AddPolicy(t *testing.T) {
	app, _ := newTestApp(t, func(ms *store.MemStore) {
		seedAccounts(ms)
		ms.SavePolicies([]policy.BranchPolicy{
			{ID: "pol1", BranchPattern: "^main$", RequiredAccountID: "work",
				Enforcement: policy.EnforcementStrict},
		})
	})

	resp := app.Dispatch(Request{
		Operation: "add-policy",
		Payload: mustPayload(t, map[string]any{
			"branch_pattern":      "^release/.*$",
			"required_account_id": "personal",
			"enforcement":         string(policy.EnforcementStrict),
		}),
	})
	if !resp.Success {
		t.Fatalf("non-overlapping strict policy rejected: %s", resp.Error)
	}
	if len(app.Policies.Policies()) != 2 {
		t.Errorf("policy count = %d, want 2", len(app.Policies.Policies()))
	}
}

// TestDispatch_ExportImport tests a full configuration round trip
// between two independent installations.
func TestDispatch_ExportImport(t *testing.T) {
	src, _ := newTestApp(t, func(ms *store.MemStore) {
		seedAccounts(ms)
		ms.SavePatterns([]pattern.Pattern{
			{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
				AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser, CreatedAt: 1700000000},
		})
		ms.SavePolicies([]policy.BranchPolicy{
			{ID: "pol1", BranchPattern: "^main$", RequiredAccountID: "work",
				Enforcement: policy.EnforcementWarning},
		})
	})

	resp := src.Dispatch(Request{
		Operation: "export",
		Payload:   mustPayload(t, map[string]any{"include_accounts": true}),
	})
	if !resp.Success {
		t.Fatalf("export failed: %s", resp.Error)
	}
	data := resp.Data.(string)

	dst, ms := newTestApp(t, nil)
	resp = dst.Dispatch(Request{
		Operation: "import",
		Payload:   mustPayload(t, map[string]any{"data": data}),
	})
	if !resp.Success {
		t.Fatalf("import failed: %s", resp.Error)
	}

	if !dst.Accounts.Exists("work") || !dst.Accounts.Exists("personal") {
		t.Error("bundled accounts not imported")
	}
	if len(dst.Patterns) != 1 {
		t.Errorf("imported patterns = %d, want 1", len(dst.Patterns))
	}
	if len(dst.Policies.Policies()) != 1 {
		t.Errorf("imported policies = %d, want 1", len(dst.Policies.Policies()))
	}

	stored, _ := ms.LoadPatterns()
	if len(stored) != 1 {
		t.Error("imported patterns not persisted")
	}

	// Importing the same bundle again is idempotent per record ID.
	resp = dst.Dispatch(Request{
		Operation: "import",
		Payload:   mustPayload(t, map[string]any{"data": data}),
	})
	if !resp.Success {
		t.Fatalf("second import failed: %s", resp.Error)
	}
	if len(dst.Patterns) != 1 || len(dst.Policies.Policies()) != 1 {
		t.Error("second import duplicated records")
	}
}

// TestDispatch_Accuracy tests the no-data edge of the accuracy report.
func TestDispatch_Accuracy(t *testing.T) {
	app, _ := newTestApp(t, nil)

	resp := app.Dispatch(Request{Operation: "accuracy"})
	if !resp.Success {
		t.Fatalf("accuracy failed: %s", resp.Error)
	}
	report := resp.Data.(accuracyResponse)
	if report.HasData {
		t.Error("empty trail must report has_data=false")
	}
}
