package team

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/user/basecamp/internal/db"
	"github.com/user/basecamp/internal/provider"
)

const testCampID = "camp1"

// fakeChat scripts chat completions per call. The handler receives the
// 1-based call number so tests can vary behavior across a loop.
type fakeChat struct {
	mu      sync.Mutex
	calls   int
	handler func(call int, modelRef string, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error)
}

func (f *fakeChat) Send(ctx context.Context, modelRef string, messages []provider.Message, tools []provider.ToolSpec) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.handler == nil {
		return textResponse("ok", 1, 1), nil
	}
	return f.handler(call, modelRef, messages, tools)
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func textResponse(text string, input int64, output int64) *provider.ChatResponse {
	return &provider.ChatResponse{
		OutputText: text,
		Message:    provider.AssistantMessage(text, nil),
		Usage:      provider.Usage{Input: input, Output: output},
	}
}

func toolCallResponse(name string, arguments string) *provider.ChatResponse {
	calls := []provider.ToolCall{{
		ID:       "call-1",
		Type:     "function",
		Function: provider.FunctionCall{Name: name, Arguments: arguments},
	}}
	return &provider.ChatResponse{
		Message: provider.AssistantMessage("", calls),
		Usage:   provider.Usage{Input: 1, Output: 1},
	}
}

type fakeCamps struct {
	mu      sync.Mutex
	camp    db.Camp
	touches int
}

func (f *fakeCamps) Get(ctx context.Context, campID string) (*db.Camp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if campID != f.camp.ID {
		return nil, nil
	}
	camp := f.camp
	return &camp, nil
}

func (f *fakeCamps) MarkTeamMode(ctx context.Context, campID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if campID != f.camp.ID {
		return fmt.Errorf("camp %q not found", campID)
	}
	f.camp.IsTeam = true
	return nil
}

func (f *fakeCamps) Touch(ctx context.Context, campID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

func (f *fakeCamps) touchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touches
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Publish(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, got := range f.events {
		if got == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	service  *Service
	chat     *fakeChat
	camps    *fakeCamps
	notifier *fakeNotifier
	campDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	campDir := filepath.Join(root, testCampID)
	if err := os.MkdirAll(campDir, 0o755); err != nil {
		t.Fatalf("create camp dir: %v", err)
	}

	chat := &fakeChat{}
	camps := &fakeCamps{camp: db.Camp{ID: testCampID, Name: "Camp One", Model: "lmstudio/qwen2.5"}}
	notifier := &fakeNotifier{}
	service, err := New(Options{
		CampsRoot: root,
		Chat:      chat,
		Camps:     camps,
		Notifier:  notifier,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{service: service, chat: chat, camps: camps, notifier: notifier, campDir: campDir}
}

func (e *testEnv) addAgent(t *testing.T, id string, role string, tools ...string) {
	t.Helper()
	_, err := e.service.CreateAgent(context.Background(), testCampID, AgentConfig{
		ID:         id,
		Role:       role,
		Model:      "lmstudio/qwen2.5",
		ToolSubset: tools,
	})
	if err != nil {
		t.Fatalf("add agent %s: %v", id, err)
	}
}

func (e *testEnv) readBus(t *testing.T) []BusEntry {
	t.Helper()
	entries, err := e.service.journal.Read(e.campDir)
	if err != nil {
		t.Fatalf("read bus: %v", err)
	}
	return entries
}

func TestValidateIdentifier(t *testing.T) {
	if _, err := validateIdentifier("  camp-7 ", "camp_id"); err != nil {
		t.Fatalf("valid identifier rejected: %v", err)
	}
	for _, bad := range []string{"", "  ", "a/b", `a\b`, "..", "a..b"} {
		if _, err := validateIdentifier(bad, "camp_id"); err == nil {
			t.Fatalf("identifier %q should be rejected", bad)
		}
	}
}

func TestResolveCampDirUnknownCamp(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.service.GetTeamConfig(context.Background(), "missing"); err == nil || !strings.Contains(err.Error(), "camp not found") {
		t.Fatalf("want camp not found, got %v", err)
	}
}
