package suggest

import (
	"errors"
	"testing"
	"time"

	"gitid/internal/audit"
	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/project"
)

type fixture struct {
	engine   *Engine
	accounts *identity.Registry
	projects *project.Registry
	sink     *audit.MemorySink
}

func newFixture(t *testing.T, accounts []identity.Account, patterns []pattern.Pattern) *fixture {
	t.Helper()
	logger, _ := logging.NewTestLogger()

	accountReg, err := identity.NewRegistry(accounts)
	if err != nil {
		t.Fatalf("building account registry: %v", err)
	}
	projectReg, err := project.NewRegistry([]project.Project{
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
	if err != nil {
		t.Fatalf("building project registry: %v", err)
	}

	sink := audit.NewMemorySink()
	engine, err := NewEngine(pattern.NewMatcher(patterns, logger), accountReg, projectReg,
		DefaultWeights(), sink, logger)
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	return &fixture{engine: engine, accounts: accountReg, projects: projectReg, sink: sink}
}

func twoAccounts() []identity.Account {
	return []identity.Account{
		{ID: "work", DisplayName: "Work", Email: "jane@corp.example", GitUserName: "Jane Doe", Priority: 2},
		{ID: "personal", DisplayName: "Personal", Email: "jane@home.example", GitUserName: "Jane", Priority: 5},
	}
}

// TestEngine_Suggest_ExactURLPattern tests that an exact URL pattern with
// full confidence produces a high-confidence unambiguous suggestion.
func TestEngine_Suggest_ExactURLPattern(t *testing.T) {
	f := newFixture(t, twoAccounts(), []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindExact, Expression: "https://github.com/acme/widget",
			AccountID: "work", Confidence: 1.0, Origin: pattern.OriginUser},
	})

	s, err := f.engine.Suggest("proj-1", pattern.MatchContext{
		Path:      "/home/jane/src/widget",
		RemoteURL: "git@github.com:acme/widget.git",
	})
	if err != nil {
		t.Fatalf("Suggest() unexpected error: %v", err)
	}
	if s.AccountID != "work" {
		t.Errorf("suggested account = %s, want work", s.AccountID)
	}
	if s.Confidence < 0.9 {
		t.Errorf("confidence = %.2f, want >= 0.9", s.Confidence)
	}
	if s.Ambiguous {
		t.Error("single-candidate suggestion should not be ambiguous")
	}
	if s.Justification == "" {
		t.Error("suggestion must carry a justification")
	}
}

// TestEngine_Suggest_NoMatch tests the distinct no-suggestion outcome.
func TestEngine_Suggest_NoMatch(t *testing.T) {
	f := newFixture(t, twoAccounts(), []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindExact, Expression: "https://github.com/other/repo",
			AccountID: "work", Confidence: 1.0, Origin: pattern.OriginUser},
	})

	_, err := f.engine.Suggest("proj-1", pattern.MatchContext{
		RemoteURL: "https://github.com/acme/widget",
	})
	if !errors.Is(err, ErrNoSuggestion) {
		t.Errorf("error = %v, want ErrNoSuggestion", err)
	}
}

// TestEngine_Suggest_AmbiguityWindow tests that two near-equal candidates
// are flagged instead of silently picking one.
func TestEngine_Suggest_AmbiguityWindow(t *testing.T) {
	f := newFixture(t, twoAccounts(), []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser},
		{ID: "p2", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "personal", Confidence: 0.88, Origin: pattern.OriginUser},
	})

	s, err := f.engine.Suggest("proj-1", pattern.MatchContext{
		RemoteURL: "https://github.com/acme/widget",
	})
	if err != nil {
		t.Fatalf("Suggest() unexpected error: %v", err)
	}
	if !s.Ambiguous {
		t.Error("candidates 0.014 apart should be flagged ambiguous")
	}
	if s.AccountID != "work" {
		t.Errorf("top account = %s, want work", s.AccountID)
	}
	if s.RunnerUpAccountID != "personal" {
		t.Errorf("runner-up = %s, want personal", s.RunnerUpAccountID)
	}
}

// TestEngine_Suggest_UsageAndDefaultBonus tests that account-level signal
// breaks otherwise equal candidates.
func TestEngine_Suggest_UsageAndDefaultBonus(t *testing.T) {
	accounts := twoAccounts()
	accounts[1].UsageCount = 100 // saturated usage bonus for personal

	f := newFixture(t, accounts, []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "work", Confidence: 0.8, Origin: pattern.OriginUser},
		{ID: "p2", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "personal", Confidence: 0.8, Origin: pattern.OriginUser},
	})

	s, err := f.engine.Suggest("proj-1", pattern.MatchContext{
		RemoteURL: "https://github.com/acme/widget",
	})
	if err != nil {
		t.Fatalf("Suggest() unexpected error: %v", err)
	}
	if s.AccountID != "personal" {
		t.Errorf("heavily used account should win, got %s", s.AccountID)
	}
}

// TestEngine_Suggest_Idempotent tests that suggesting twice with no state
// change yields identical results and mutates nothing.
func TestEngine_Suggest_Idempotent(t *testing.T) {
	f := newFixture(t, twoAccounts(), []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser},
	})
	ctx := pattern.MatchContext{RemoteURL: "https://github.com/acme/widget"}

	first, err := f.engine.Suggest("proj-1", ctx)
	if err != nil {
		t.Fatalf("first Suggest() error: %v", err)
	}
	second, err := f.engine.Suggest("proj-1", ctx)
	if err != nil {
		t.Fatalf("second Suggest() error: %v", err)
	}

	if first.AccountID != second.AccountID || first.Confidence != second.Confidence {
		t.Errorf("repeated suggestion differs: %+v vs %+v", first, second)
	}
	a, _ := f.accounts.Get("work")
	if a.UsageCount != 0 {
		t.Errorf("Suggest() mutated usage count to %d", a.UsageCount)
	}
	if len(f.sink.Events()) != 0 {
		t.Errorf("Suggest() emitted %d audit events, want 0", len(f.sink.Events()))
	}
}

// TestEngine_Accept tests the terminal write step: one usage increment,
// project confidence update, one audit event.
func TestEngine_Accept(t *testing.T) {
	f := newFixture(t, twoAccounts(), []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser},
	})

	s, err := f.engine.Suggest("proj-1", pattern.MatchContext{RemoteURL: "https://github.com/acme/widget"})
	if err != nil {
		t.Fatalf("Suggest() error: %v", err)
	}

	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	if err := f.engine.Accept(s, now); err != nil {
		t.Fatalf("Accept() unexpected error: %v", err)
	}

	a, _ := f.accounts.Get("work")
	if a.UsageCount != 1 {
		t.Errorf("usage count = %d, want exactly 1", a.UsageCount)
	}
	other, _ := f.accounts.Get("personal")
	if other.UsageCount != 0 {
		t.Errorf("unrelated account usage count = %d, want 0", other.UsageCount)
	}

	p, _ := f.projects.Get("proj-1")
	if p.Confidence != s.Confidence {
		t.Errorf("project confidence = %.2f, want %.2f", p.Confidence, s.Confidence)
	}

	events := f.sink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	if events[0].Type != audit.EventSuggestionAccepted {
		t.Errorf("event type = %s, want %s", events[0].Type, audit.EventSuggestionAccepted)
	}
	if events[0].AccountID != "work" || events[0].PatternID != "p1" {
		t.Errorf("event references wrong records: %+v", events[0])
	}
}

// TestEngine_Reject tests that rejections only feed the audit trail.
func TestEngine_Reject(t *testing.T) {
	f := newFixture(t, twoAccounts(), []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser},
	})

	s, _ := f.engine.Suggest("proj-1", pattern.MatchContext{RemoteURL: "https://github.com/acme/widget"})
	f.engine.Reject(s)

	a, _ := f.accounts.Get("work")
	if a.UsageCount != 0 {
		t.Errorf("Reject() mutated usage count to %d", a.UsageCount)
	}
	events := f.sink.Events()
	if len(events) != 1 || events[0].Type != audit.EventSuggestionRejected {
		t.Errorf("expected exactly one rejection event, got %+v", events)
	}
}

// TestEngine_Accuracy tests the accepted/(accepted+rejected) window over
// the engine's own sink.
func TestEngine_Accuracy(t *testing.T) {
	f := newFixture(t, twoAccounts(), []pattern.Pattern{
		{ID: "p1", Kind: pattern.KindGlob, Expression: "https://github.com/acme/*",
			AccountID: "work", Confidence: 0.9, Origin: pattern.OriginUser},
	})
	ctx := pattern.MatchContext{RemoteURL: "https://github.com/acme/widget"}

	if _, ok := f.engine.Accuracy("proj-1", time.Hour); ok {
		t.Error("accuracy with no events should report ok=false")
	}

	s, _ := f.engine.Suggest("proj-1", ctx)
	f.engine.Accept(s, time.Now().UTC())
	s2, _ := f.engine.Suggest("proj-1", ctx)
	f.engine.Reject(s2)
	s3, _ := f.engine.Suggest("proj-1", ctx)
	f.engine.Accept(s3, time.Now().UTC())

	acc, ok := f.engine.Accuracy("proj-1", time.Hour)
	if !ok {
		t.Fatal("expected accuracy data")
	}
	want := 2.0 / 3.0
	if acc < want-0.001 || acc > want+0.001 {
		t.Errorf("accuracy = %.3f, want %.3f", acc, want)
	}
}

// TestWeights_Validate tests weight boundary checks.
func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights must validate, got: %v", err)
	}

	bad := DefaultWeights()
	bad.UsageBonusMax = -0.1
	if err := bad.Validate(); err == nil {
		t.Error("negative usage bonus should be rejected")
	}

	bad = DefaultWeights()
	bad.UsageSaturation = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero saturation should be rejected")
	}
}
