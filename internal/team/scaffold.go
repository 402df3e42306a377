package team

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/basecamp/configs"
)

var (
	defaultSupervisorPrompt = mustPrompt("prompts/supervisor.md")
	defaultAgentPrompt      = mustPrompt("prompts/agent.md")
)

func mustPrompt(name string) string {
	data, err := configs.PromptDefaults.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt %s missing: %v", name, err))
	}
	return string(data)
}

// ensureTeamScaffold creates the camp's team directory layout and seeds the
// supervisor and per-agent files that do not exist yet. Files already on
// disk are never overwritten, so user edits to prompts survive.
func ensureTeamScaffold(campDir string, cfg *TeamConfig) error {
	dirs := []string{
		filepath.Join(campDir, supervisorDirName),
		filepath.Join(campDir, agentsDirName),
		filepath.Join(campDir, artifactsDirName, draftsDirName),
		filepath.Join(campDir, artifactsDirName, promotedDirName),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	supervisorDir := filepath.Join(campDir, supervisorDirName)
	if err := writeFileIfMissing(filepath.Join(supervisorDir, "system_prompt.md"), defaultSupervisorPrompt); err != nil {
		return err
	}
	if err := writeFileIfMissing(filepath.Join(supervisorDir, "transcript.jsonl"), ""); err != nil {
		return err
	}
	if err := writeFileIfMissing(filepath.Join(supervisorDir, "tools.json"), "[]\n"); err != nil {
		return err
	}

	for i := range cfg.Agents {
		if err := ensureAgentScaffold(campDir, &cfg.Agents[i]); err != nil {
			return err
		}
	}
	return nil
}

func ensureAgentScaffold(campDir string, agent *AgentConfig) error {
	agentDir := filepath.Join(campDir, agentsDirName, agent.ID)
	if err := os.MkdirAll(filepath.Join(agentDir, "context"), 0o755); err != nil {
		return fmt.Errorf("failed to create agent directory for %q: %w", agent.ID, err)
	}
	if err := writeFileIfMissing(filepath.Join(agentDir, "system_prompt.md"), renderAgentPrompt(agent)); err != nil {
		return err
	}
	if err := writeFileIfMissing(filepath.Join(agentDir, "transcript.jsonl"), ""); err != nil {
		return err
	}

	toolsPath := filepath.Join(agentDir, "tools.json")
	if _, err := os.Stat(toolsPath); os.IsNotExist(err) {
		if err := writeJSONFile(toolsPath, agent.ToolSubset); err != nil {
			return err
		}
	}
	return nil
}

func renderAgentPrompt(agent *AgentConfig) string {
	description := strings.TrimSpace(agent.Description)
	if description == "" {
		description = "Specialized contributor"
	}
	replacer := strings.NewReplacer(
		"{{role}}", agent.Role,
		"{{agent_id}}", agent.ID,
		"{{description}}", description,
	)
	return replacer.Replace(defaultAgentPrompt)
}

// readAgentSystemPrompt prefers the on-disk prompt so user edits take
// effect; a missing or empty file falls back to the rendered default.
func readAgentSystemPrompt(campDir string, agent *AgentConfig) string {
	data, err := os.ReadFile(filepath.Join(campDir, agentsDirName, agent.ID, "system_prompt.md"))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return renderAgentPrompt(agent)
	}
	return string(data)
}

func readSupervisorSystemPrompt(campDir string) string {
	data, err := os.ReadFile(filepath.Join(campDir, supervisorDirName, "system_prompt.md"))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return defaultSupervisorPrompt
	}
	return string(data)
}

// readAgentToolNames returns the agent's effective tool subset: tools.json
// when it parses as a string list, the roster subset otherwise.
func readAgentToolNames(campDir string, agent *AgentConfig) []string {
	data, err := os.ReadFile(filepath.Join(campDir, agentsDirName, agent.ID, "tools.json"))
	if err == nil {
		var names []string
		if jsonErr := json.Unmarshal(data, &names); jsonErr == nil {
			return normalizeToolSubset(names)
		}
	}
	return normalizeToolSubset(agent.ToolSubset)
}

func writeFileIfMissing(path string, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
