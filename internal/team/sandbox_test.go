package team

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/basecamp/internal/provider"
)

func newTestSandbox(t *testing.T) *sandbox {
	t.Helper()
	sb, err := newSandbox(t.TempDir(), "agent1")
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	return sb
}

func callTool(name string, args map[string]any) provider.ToolCall {
	raw, _ := json.Marshal(args)
	return provider.ToolCall{
		ID:       "call-1",
		Type:     "function",
		Function: provider.FunctionCall{Name: name, Arguments: string(raw)},
	}
}

func decodeResult(t *testing.T, result string) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal([]byte(result), &decoded); err != nil {
		t.Fatalf("tool result is not JSON: %v (%s)", err, result)
	}
	return decoded
}

func TestWriteFileRejectsEscapingPaths(t *testing.T) {
	sb := newTestSandbox(t)

	for _, path := range []string{"../../etc/passwd", "/etc/passwd", `notes\evil.md`, "a/../b.md", "./x.md"} {
		outcome := sb.execute(callTool(toolWriteFile, map[string]any{"path": path, "content": "owned"}))
		decoded := decodeResult(t, outcome.result)
		message, _ := decoded["error"].(string)
		if message == "" {
			t.Fatalf("path %q should fail, got %s", path, outcome.result)
		}
		if path == "../../etc/passwd" && !strings.Contains(message, "escapes the agent context directory") {
			t.Fatalf("traversal error message = %q", message)
		}
		if outcome.wrote != "" {
			t.Fatalf("rejected write reported a written path %q", outcome.wrote)
		}
	}

	// Nothing escaped: the directory two levels above the sandbox root has
	// gained no etc/passwd.
	outside := filepath.Join(sb.root, "..", "..", "etc", "passwd")
	if _, err := os.Stat(outside); !os.IsNotExist(err) {
		t.Fatalf("file escaped the sandbox: %v", err)
	}
}

func TestSandboxSymlinkEscapeBlocked(t *testing.T) {
	sb := newTestSandbox(t)
	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("hidden"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	if err := os.Symlink(filepath.Dir(secret), filepath.Join(sb.root, "leak")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	outcome := sb.execute(callTool(toolReadFile, map[string]any{"path": "leak/secret.txt"}))
	decoded := decodeResult(t, outcome.result)
	if message, _ := decoded["error"].(string); !strings.Contains(message, "escapes the agent context directory") {
		t.Fatalf("symlink read should be blocked, got %s", outcome.result)
	}
}

func TestWriteReadListRoundTrip(t *testing.T) {
	sb := newTestSandbox(t)

	outcome := sb.execute(callTool(toolWriteFile, map[string]any{"path": "notes/draft.md", "content": "hello"}))
	decoded := decodeResult(t, outcome.result)
	if decoded["bytes_written"] != float64(5) || outcome.wrote != "notes/draft.md" {
		t.Fatalf("write result wrong: %s (wrote %q)", outcome.result, outcome.wrote)
	}

	outcome = sb.execute(callTool(toolReadFile, map[string]any{"path": "notes/draft.md"}))
	decoded = decodeResult(t, outcome.result)
	if decoded["content"] != "hello" {
		t.Fatalf("read result wrong: %s", outcome.result)
	}

	outcome = sb.execute(callTool(toolListFiles, map[string]any{}))
	decoded = decodeResult(t, outcome.result)
	files, _ := decoded["files"].([]any)
	if len(files) != 1 || files[0] != "notes/draft.md" {
		t.Fatalf("list result wrong: %s", outcome.result)
	}
}

func TestWriteFileBase64(t *testing.T) {
	sb := newTestSandbox(t)
	payload := base64.StdEncoding.EncodeToString([]byte{0x1, 0x2, 0x3})

	outcome := sb.execute(callTool(toolWriteFile, map[string]any{"path": "blob.bin", "content": payload, "encoding": "base64"}))
	decoded := decodeResult(t, outcome.result)
	if decoded["bytes_written"] != float64(3) {
		t.Fatalf("base64 write wrong: %s", outcome.result)
	}

	outcome = sb.execute(callTool(toolWriteFile, map[string]any{"path": "blob.bin", "content": "not base64!!", "encoding": "base64"}))
	decoded = decodeResult(t, outcome.result)
	if message, _ := decoded["error"].(string); !strings.Contains(message, "base64") {
		t.Fatalf("invalid base64 should fail, got %s", outcome.result)
	}
}

func TestWebSearchAlwaysFails(t *testing.T) {
	sb := newTestSandbox(t)
	outcome := sb.execute(callTool(toolWebSearch, map[string]any{"query": "anything"}))
	decoded := decodeResult(t, outcome.result)
	if message, _ := decoded["error"].(string); !strings.Contains(message, "not available in local deterministic team mode") {
		t.Fatalf("web_search result wrong: %s", outcome.result)
	}
}

func TestUnknownToolReported(t *testing.T) {
	sb := newTestSandbox(t)
	outcome := sb.execute(callTool("launch_rockets", nil))
	decoded := decodeResult(t, outcome.result)
	if message, _ := decoded["error"].(string); !strings.Contains(message, "unknown tool") {
		t.Fatalf("unknown tool result wrong: %s", outcome.result)
	}
}

func TestToolSpecsForSubsetDropsUnknownNames(t *testing.T) {
	specs := toolSpecsForSubset([]string{"read_file", "launch_rockets", "web_search"})
	if len(specs) != 2 {
		t.Fatalf("specs = %d, want 2", len(specs))
	}
	for i, want := range []string{"read_file", "web_search"} {
		fn, _ := specs[i]["function"].(map[string]any)
		if got := fmt.Sprint(fn["name"]); got != want {
			t.Fatalf("spec %d = %q, want %q", i, got, want)
		}
	}
}
