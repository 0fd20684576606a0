package project

import (
	"testing"
)

// TestDetectPlatform tests host-based platform detection across URL forms.
func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://github.com/acme/widget.git", PlatformGitHub},
		{"git@github.com:acme/widget.git", PlatformGitHub},
		{"https://gitlab.com/group/repo", PlatformGitLab},
		{"https://gitlab.corp.example/group/repo", PlatformGitLab},
		{"git@bitbucket.org:team/repo.git", PlatformBitbucket},
		{"https://git.sr.ht/~jane/repo", PlatformOther},
		{"", PlatformOther},
	}
	for _, tt := range tests {
		if got := DetectPlatform(tt.url); got != tt.want {
			t.Errorf("DetectPlatform(%q) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

// TestProject_PrimaryRemoteURL tests the origin-first remote selection.
func TestProject_PrimaryRemoteURL(t *testing.T) {
	p := Project{RemoteURLs: map[string]string{
		"upstream": "https://github.com/up/repo",
		"origin":   "https://github.com/acme/repo",
	}}
	if got := p.PrimaryRemoteURL(); got != "https://github.com/acme/repo" {
		t.Errorf("PrimaryRemoteURL() = %s, want origin's URL", got)
	}

	p = Project{RemoteURLs: map[string]string{
		"zeta":  "https://z.example/r",
		"alpha": "https://a.example/r",
	}}
	if got := p.PrimaryRemoteURL(); got != "https://a.example/r" {
		t.Errorf("PrimaryRemoteURL() = %s, want lexicographically first", got)
	}

	if got := (Project{}).PrimaryRemoteURL(); got != "" {
		t.Errorf("PrimaryRemoteURL() on remoteless project = %q, want empty", got)
	}
}

// TestValidateProject tests structural validation.
func TestValidateProject(t *testing.T) {
	valid := Project{ID: "p1", Path: "/home/jane/src/widget", Name: "widget", Confidence: 0.5}
	if err := ValidateProject(valid); err != nil {
		t.Errorf("valid project rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Project)
	}{
		{name: "empty ID", mutate: func(p *Project) { p.ID = "" }},
		{name: "empty path", mutate: func(p *Project) { p.Path = "" }},
		{name: "relative path", mutate: func(p *Project) { p.Path = "src/widget" }},
		{name: "empty name", mutate: func(p *Project) { p.Name = " " }},
		{name: "confidence out of range", mutate: func(p *Project) { p.Confidence = 1.2 }},
		{name: "empty remote URL", mutate: func(p *Project) { p.RemoteURLs = map[string]string{"origin": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := ValidateProject(p); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

// TestRegistry_PathLookupAndUniqueness tests the byPath index and the
// path uniqueness invariant.
func TestRegistry_PathLookupAndUniqueness(t *testing.T) {
	r, err := NewRegistry([]Project{
		{ID: "p1", Path: "/home/jane/src/widget", Name: "widget"},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	got, err := r.GetByPath("/home/jane/src/widget")
	if err != nil || got.ID != "p1" {
		t.Errorf("GetByPath() = %+v, %v", got, err)
	}

	// Same path, different ID: rejected.
	err = r.Add(Project{ID: "p2", Path: "/home/jane/src/widget", Name: "other"})
	if err == nil {
		t.Error("expected error for duplicate path")
	}

	// Update to a new path reindexes.
	p, _ := r.Get("p1")
	p.Path = "/home/jane/src/widget2"
	if err := r.Update(p); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if _, err := r.GetByPath("/home/jane/src/widget"); err == nil {
		t.Error("old path should no longer resolve")
	}
	if _, err := r.GetByPath("/home/jane/src/widget2"); err != nil {
		t.Errorf("new path should resolve, got: %v", err)
	}
}

// TestRegistry_SetConfidence tests clamping and the unknown-project error.
func TestRegistry_SetConfidence(t *testing.T) {
	r, _ := NewRegistry([]Project{
		{ID: "p1", Path: "/home/jane/src/widget", Name: "widget"},
	})

	if err := r.SetConfidence("p1", 0.93); err != nil {
		t.Fatalf("SetConfidence() error: %v", err)
	}
	p, _ := r.Get("p1")
	if p.Confidence != 0.93 {
		t.Errorf("confidence = %.2f, want 0.93", p.Confidence)
	}

	r.SetConfidence("p1", 1.5)
	p, _ = r.Get("p1")
	if p.Confidence != 1 {
		t.Errorf("confidence = %.2f, want clamped to 1", p.Confidence)
	}

	if err := r.SetConfidence("ghost", 0.5); err == nil {
		t.Error("expected error for unknown project")
	}
}
