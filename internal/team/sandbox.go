package team

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/user/basecamp/internal/provider"
)

// sandbox confines an agent's file tools to its context directory. Every
// path is validated syntactically and then re-checked after symlink
// resolution, so a symlink planted inside the sandbox cannot reach out.
type sandbox struct {
	root string
}

func newSandbox(campDir string, agentID string) (*sandbox, error) {
	dir := filepath.Join(campDir, agentsDirName, agentID, "context")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create agent context directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agent context directory: %w", err)
	}
	return &sandbox{root: root}, nil
}

// validateRelativePath rejects absolute paths, backslash separators and any
// "." or ".." segment before the path ever touches the filesystem.
func validateRelativePath(raw string, fieldName string, allowEmpty bool) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if allowEmpty {
			return "", nil
		}
		return "", fmt.Errorf("%s is required", fieldName)
	}
	if strings.Contains(trimmed, `\`) {
		return "", fmt.Errorf("%s must use forward slashes", fieldName)
	}
	if filepath.IsAbs(trimmed) {
		return "", fmt.Errorf("%s must be a relative path", fieldName)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "." || segment == ".." {
			return "", fmt.Errorf("%s escapes the agent context directory", fieldName)
		}
	}
	return trimmed, nil
}

func (sb *sandbox) containmentErr() error {
	return fmt.Errorf("path escapes the agent context directory")
}

func (sb *sandbox) ensureWithin(resolved string) error {
	if resolved == sb.root || strings.HasPrefix(resolved, sb.root+string(filepath.Separator)) {
		return nil
	}
	return sb.containmentErr()
}

// resolveExisting canonicalizes a relative path that must already exist and
// confirms it is still inside the sandbox after symlinks resolve.
func (sb *sandbox) resolveExisting(relPath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(sb.root, filepath.FromSlash(relPath)))
	if err != nil {
		return "", fmt.Errorf("unable to resolve path %q: %w", relPath, err)
	}
	if err := sb.ensureWithin(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// resolveForWrite prepares a target path for writing: parent directories are
// created, then the deepest existing ancestor is canonicalized and checked
// for containment.
func (sb *sandbox) resolveForWrite(relPath string) (string, error) {
	target := filepath.Join(sb.root, filepath.FromSlash(relPath))
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("unable to create parent directory for %q: %w", relPath, err)
	}
	resolvedParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return "", fmt.Errorf("unable to resolve path %q: %w", relPath, err)
	}
	if err := sb.ensureWithin(resolvedParent); err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(target)), nil
}

type toolOutcome struct {
	result string
	wrote  string
}

// execute runs one tool call and returns its JSON result string. Failures
// are reported inside the result so the model can observe and recover; the
// step itself does not fail.
func (sb *sandbox) execute(call provider.ToolCall) toolOutcome {
	var args map[string]any
	if strings.TrimSpace(call.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return sb.failure(call, fmt.Errorf("invalid tool arguments: %w", err))
		}
	}

	switch call.Function.Name {
	case toolReadFile:
		result, err := sb.readFile(stringArg(args, "path"))
		if err != nil {
			return sb.failure(call, err)
		}
		return toolOutcome{result: result}
	case toolListFiles:
		result, err := sb.listFiles(stringArg(args, "path"))
		if err != nil {
			return sb.failure(call, err)
		}
		return toolOutcome{result: result}
	case toolWriteFile:
		result, wrote, err := sb.writeFile(stringArg(args, "path"), stringArg(args, "content"), stringArg(args, "encoding"))
		if err != nil {
			return sb.failure(call, err)
		}
		return toolOutcome{result: result, wrote: wrote}
	case toolWebSearch:
		return sb.failure(call, fmt.Errorf("web_search is not available in local deterministic team mode"))
	default:
		return sb.failure(call, fmt.Errorf("unknown tool %q", call.Function.Name))
	}
}

func (sb *sandbox) failure(call provider.ToolCall, err error) toolOutcome {
	return toolOutcome{result: mustToolResult(map[string]any{
		"error":        err.Error(),
		"tool":         call.Function.Name,
		"tool_call_id": call.ID,
	})}
}

func (sb *sandbox) readFile(rawPath string) (string, error) {
	relPath, err := validateRelativePath(rawPath, "path", false)
	if err != nil {
		return "", err
	}
	resolved, err := sb.resolveExisting(relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("unable to read %q: %w", relPath, err)
	}
	return mustToolResult(map[string]any{
		"path":    relPath,
		"content": string(data),
	}), nil
}

func (sb *sandbox) listFiles(rawPath string) (string, error) {
	relPath, err := validateRelativePath(rawPath, "path", true)
	if err != nil {
		return "", err
	}
	start := sb.root
	if relPath != "" {
		start, err = sb.resolveExisting(relPath)
		if err != nil {
			return "", err
		}
	}

	files := []string{}
	if err := sb.collect(start, &files); err != nil {
		return "", err
	}
	sort.Strings(files)
	return mustToolResult(map[string]any{
		"path":  relPath,
		"files": files,
	}), nil
}

// collect walks a directory recursively, resolving every entry so symlinked
// escapes are caught, and records file paths relative to the sandbox root.
func (sb *sandbox) collect(dir string, files *[]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("unable to list %q: %w", dir, err)
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		resolved, err := filepath.EvalSymlinks(full)
		if err != nil {
			return fmt.Errorf("unable to resolve path %q: %w", entry.Name(), err)
		}
		if err := sb.ensureWithin(resolved); err != nil {
			return err
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return fmt.Errorf("unable to inspect %q: %w", entry.Name(), err)
		}
		if info.IsDir() {
			if err := sb.collect(resolved, files); err != nil {
				return err
			}
			continue
		}
		rel, err := filepath.Rel(sb.root, resolved)
		if err != nil {
			return sb.containmentErr()
		}
		*files = append(*files, filepath.ToSlash(rel))
	}
	return nil
}

func (sb *sandbox) writeFile(rawPath string, content string, encoding string) (string, string, error) {
	relPath, err := validateRelativePath(rawPath, "path", false)
	if err != nil {
		return "", "", err
	}

	var data []byte
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		data = []byte(content)
	case "base64":
		data, err = base64.StdEncoding.DecodeString(content)
		if err != nil {
			return "", "", fmt.Errorf("content is not valid base64: %w", err)
		}
	default:
		return "", "", fmt.Errorf("encoding must be utf-8 or base64")
	}

	target, err := sb.resolveForWrite(relPath)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", "", fmt.Errorf("unable to write %q: %w", relPath, err)
	}
	result := mustToolResult(map[string]any{
		"path":          relPath,
		"bytes_written": len(data),
	})
	return result, relPath, nil
}

func stringArg(args map[string]any, key string) string {
	if value, ok := args[key].(string); ok {
		return value
	}
	return ""
}

func mustToolResult(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
