package team

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"report.md", "report.md"},
		{"  My Report!.md ", "My-Report-.md"},
		{"nested/dir/report.md", "report.md"},
		{`windows\style\report.md`, "report.md"},
		{"../../etc/passwd", "passwd.md"},
		{"no-extension", "no-extension.md"},
		{"***", "fallback.md"},
		{"", "fallback.md"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.raw, "fallback.md"); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}

	// Idempotent: a sanitized name survives a second pass unchanged.
	for _, tc := range cases {
		once := sanitizeFilename(tc.raw, "fallback.md")
		if twice := sanitizeFilename(once, "fallback.md"); twice != once {
			t.Fatalf("sanitize not idempotent: %q then %q", once, twice)
		}
	}
}

func TestListArtifactNamesRecursive(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"b.md", "sub/a.md", "sub/deeper/c.md"} {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got := listArtifactNames(dir)
	want := []string{"b.md", "sub/a.md", "sub/deeper/c.md"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("listArtifactNames = %v, want %v", got, want)
	}
	if missing := listArtifactNames(filepath.Join(dir, "missing")); len(missing) != 0 {
		t.Fatalf("missing dir should list empty, got %v", missing)
	}
}

func TestPromoteArtifact(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(t, env, "draft.md", "content")

	promoted, err := env.service.PromoteArtifact(context.Background(), testCampID, "draft.md")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted != "artifacts/promoted/draft.md" {
		t.Fatalf("promoted path = %q", promoted)
	}
	if _, err := os.Stat(filepath.Join(env.campDir, artifactsDirName, draftsDirName, "draft.md")); !os.IsNotExist(err) {
		t.Fatalf("draft should be removed after promotion")
	}

	entries := env.readBus(t)
	if len(entries) != 1 || entries[0].Type != EntryPromotion {
		t.Fatalf("promotion not journaled: %+v", entries)
	}
	if entries[0].From != "supervisor" || entries[0].To != "all" {
		t.Fatalf("promotion addressing wrong: %+v", entries[0])
	}
	if env.notifier.count("team://artifact_promoted") != 1 {
		t.Fatalf("artifact_promoted not published")
	}
}

// Promoting over an existing name renames with a timestamp suffix instead of
// overwriting.
func TestPromoteArtifactCollision(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(t, env, "draft.md", "new content")

	promotedDir := filepath.Join(env.campDir, artifactsDirName, promotedDirName)
	if err := os.MkdirAll(promotedDir, 0o755); err != nil {
		t.Fatalf("mkdir promoted: %v", err)
	}
	if err := os.WriteFile(filepath.Join(promotedDir, "draft.md"), []byte("old content"), 0o644); err != nil {
		t.Fatalf("seed promoted: %v", err)
	}

	promoted, err := env.service.PromoteArtifact(context.Background(), testCampID, "artifacts/drafts/draft.md")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !regexp.MustCompile(`^artifacts/promoted/draft-\d+\.md$`).MatchString(promoted) {
		t.Fatalf("collision name wrong: %q", promoted)
	}

	if data, _ := os.ReadFile(filepath.Join(promotedDir, "draft.md")); string(data) != "old content" {
		t.Fatalf("existing promoted artifact overwritten: %q", data)
	}
	if data, _ := os.ReadFile(filepath.Join(env.campDir, filepath.FromSlash(promoted))); string(data) != "new content" {
		t.Fatalf("promoted content wrong: %q", data)
	}
	if _, err := os.Stat(filepath.Join(env.campDir, artifactsDirName, draftsDirName, "draft.md")); !os.IsNotExist(err) {
		t.Fatalf("original draft should be removed")
	}
}

func TestPromoteArtifactRejectsBadPaths(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(t, env, "draft.md", "content")

	if _, err := env.service.PromoteArtifact(context.Background(), testCampID, "../team.json"); err == nil {
		t.Fatalf("traversal path accepted")
	}
	if _, err := env.service.PromoteArtifact(context.Background(), testCampID, "missing.md"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("want not-found error, got %v", err)
	}
}
