package team

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/basecamp/internal/provider"
)

func seedDraft(t *testing.T, env *testEnv, name string, content string) {
	t.Helper()
	dir := filepath.Join(env.campDir, artifactsDirName, draftsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir drafts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
}

func reflectionRoster(t *testing.T, env *testEnv) {
	t.Helper()
	env.addAgent(t, "writer1", "writer")
	env.addAgent(t, "critic1", "critic")
}

// A critic that never passes burns every configured round and the artifact
// is promoted anyway.
func TestReflectionExhaustsRoundsAndStillPromotes(t *testing.T) {
	env := newTestEnv(t)
	reflectionRoster(t, env)
	seedDraft(t, env, "report.md", "first draft")

	env.chat.handler = func(call int, modelRef string, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error) {
		if strings.Contains(messages[1].Content, "Review the draft below") || strings.Contains(messages[1].Content, `"pass"`) {
			return textResponse(`{"issues":["too short"],"suggestions":["add detail"],"pass":false}`, 5, 5), nil
		}
		return textResponse("revised draft", 5, 5), nil
	}

	summary, err := env.service.RunReflectionLoop(context.Background(), testCampID, "report.md", 0)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}

	if summary.RoundsCompleted != defaultMaxReflectionRounds {
		t.Fatalf("rounds_completed = %d, want %d", summary.RoundsCompleted, defaultMaxReflectionRounds)
	}
	if summary.Pass {
		t.Fatalf("pass should stay false")
	}
	if len(summary.Critiques) != defaultMaxReflectionRounds {
		t.Fatalf("critiques = %d", len(summary.Critiques))
	}
	if summary.PromotedPath != "artifacts/promoted/report.md" {
		t.Fatalf("promoted path = %q", summary.PromotedPath)
	}

	if _, err := os.Stat(filepath.Join(env.campDir, artifactsDirName, promotedDirName, "report.md")); err != nil {
		t.Fatalf("artifact not promoted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.campDir, artifactsDirName, draftsDirName, "report.md")); !os.IsNotExist(err) {
		t.Fatalf("draft should be moved, not copied")
	}

	// A critique per round, a revision for every round but the last, then
	// the promotion.
	entries := env.readBus(t)
	critiques, results, promotions := 0, 0, 0
	for _, entry := range entries {
		switch entry.Type {
		case EntryCritique:
			critiques++
		case EntryResult:
			results++
		case EntryPromotion:
			promotions++
		}
	}
	if critiques != 2 || results != 1 || promotions != 1 {
		t.Fatalf("journal shape wrong: %d critiques, %d results, %d promotions", critiques, results, promotions)
	}
}

// With reflection loops switched off the critic still gets one look, but a
// failing verdict never triggers a revision.
func TestReflectionDisabledStopsAfterFirstCritique(t *testing.T) {
	env := newTestEnv(t)
	reflectionRoster(t, env)
	if _, err := env.service.UpdateSettings(context.Background(), testCampID, SettingsUpdate{
		SupervisorModel:     "lmstudio/qwen2.5",
		ReflectionLoops:     false,
		MaxReflectionRounds: 4,
	}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	seedDraft(t, env, "report.md", "draft")

	env.chat.handler = func(call int, modelRef string, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error) {
		return textResponse(`{"issues":["x"],"suggestions":[],"pass":false}`, 1, 1), nil
	}

	summary, err := env.service.RunReflectionLoop(context.Background(), testCampID, "report.md", 0)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if summary.RoundsCompleted != 1 || summary.Pass {
		t.Fatalf("summary = %+v", summary)
	}
	if env.chat.callCount() != 1 {
		t.Fatalf("model calls = %d, want 1 (writer never invoked)", env.chat.callCount())
	}
	if summary.PromotedPath == "" {
		t.Fatalf("artifact should still be promoted")
	}
}

func TestReflectionStopsWhenCriticPasses(t *testing.T) {
	env := newTestEnv(t)
	reflectionRoster(t, env)
	seedDraft(t, env, "report.md", "solid draft")

	env.chat.handler = func(call int, modelRef string, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error) {
		return textResponse(`{"issues":[],"suggestions":[],"pass":true}`, 3, 3), nil
	}

	summary, err := env.service.RunReflectionLoop(context.Background(), testCampID, "report.md", 0)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if summary.RoundsCompleted != 1 || !summary.Pass {
		t.Fatalf("summary = %+v", summary)
	}
	if env.chat.callCount() != 1 {
		t.Fatalf("model calls = %d, want 1 (no revision after a pass)", env.chat.callCount())
	}
}

func TestReflectionClampsRequestedRounds(t *testing.T) {
	env := newTestEnv(t)
	reflectionRoster(t, env)
	if _, err := env.service.UpdateSettings(context.Background(), testCampID, SettingsUpdate{
		SupervisorModel:     "lmstudio/qwen2.5",
		ReflectionLoops:     true,
		MaxReflectionRounds: 3,
	}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	seedDraft(t, env, "report.md", "draft")

	env.chat.handler = func(call int, modelRef string, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error) {
		if strings.Contains(messages[1].Content, `"pass"`) {
			return textResponse(`{"issues":["x"],"suggestions":[],"pass":false}`, 1, 1), nil
		}
		return textResponse("revision", 1, 1), nil
	}

	summary, err := env.service.RunReflectionLoop(context.Background(), testCampID, "report.md", 10)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if summary.RoundsCompleted != 3 {
		t.Fatalf("rounds_completed = %d, want clamp to configured max 3", summary.RoundsCompleted)
	}
}

func TestReflectionRequiresWriterAndCritic(t *testing.T) {
	env := newTestEnv(t)
	env.addAgent(t, "writer1", "writer")
	seedDraft(t, env, "report.md", "draft")

	_, err := env.service.RunReflectionLoop(context.Background(), testCampID, "report.md", 0)
	if err == nil || !strings.Contains(err.Error(), "critic") {
		t.Fatalf("want missing critic error, got %v", err)
	}

	env2 := newTestEnv(t)
	env2.addAgent(t, "critic1", "critic")
	seedDraft(t, env2, "report.md", "draft")
	_, err = env2.service.RunReflectionLoop(context.Background(), testCampID, "report.md", 0)
	if err == nil || !strings.Contains(err.Error(), "writer") {
		t.Fatalf("want missing writer error, got %v", err)
	}
}

func TestReflectionRoleLookupFallsBackToID(t *testing.T) {
	cfg := &TeamConfig{Agents: []AgentConfig{
		{ID: "writer", Role: "prose specialist"},
		{ID: "c1", Role: "Critic"},
	}}
	if got := cfg.findAgentByRole("writer"); got == nil || got.ID != "writer" {
		t.Fatalf("id fallback failed: %+v", got)
	}
	if got := cfg.findAgentByRole("CRITIC"); got == nil || got.ID != "c1" {
		t.Fatalf("case-insensitive role lookup failed: %+v", got)
	}
}

func TestReflectionRewritesDraftBetweenRounds(t *testing.T) {
	env := newTestEnv(t)
	reflectionRoster(t, env)
	seedDraft(t, env, "report.md", "first draft")

	sawRevised := false
	env.chat.handler = func(call int, modelRef string, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error) {
		if strings.Contains(messages[1].Content, `"pass"`) {
			if strings.Contains(messages[1].Content, "revised body") {
				sawRevised = true
				return textResponse(`{"issues":[],"suggestions":[],"pass":true}`, 1, 1), nil
			}
			return textResponse(`{"issues":["weak"],"suggestions":[],"pass":false}`, 1, 1), nil
		}
		return textResponse("revised body", 1, 1), nil
	}

	summary, err := env.service.RunReflectionLoop(context.Background(), testCampID, "report.md", 0)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if !sawRevised {
		t.Fatalf("critic never saw the revised draft")
	}
	if summary.RoundsCompleted != 2 || !summary.Pass {
		t.Fatalf("summary = %+v", summary)
	}

	data, err := os.ReadFile(filepath.Join(env.campDir, artifactsDirName, promotedDirName, "report.md"))
	if err != nil || !strings.Contains(string(data), "revised body") {
		t.Fatalf("promoted artifact should carry the revision: %q %v", data, err)
	}
}
