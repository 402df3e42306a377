package team

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/user/basecamp/internal/provider"
)

// AgentConfig describes one roster member. ToolSubset is stored as written
// (trimmed, lowercased, deduplicated); names without a built-in tool spec are
// kept in the roster and only filtered when tool specs are built for a step.
type AgentConfig struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Model       string   `json:"model"`
	ToolSubset  []string `json:"tool_subset"`
	Description string   `json:"description"`
}

// TeamConfig is the durable team.json document for a camp.
type TeamConfig struct {
	IsTeam              bool          `json:"is_team"`
	SupervisorModel     string        `json:"supervisor_model"`
	Agents              []AgentConfig `json:"agents"`
	ReflectionLoops     bool          `json:"reflection_loops"`
	MaxReflectionRounds int           `json:"max_reflection_rounds"`
}

func defaultTeamConfig(baseModel string) *TeamConfig {
	model := strings.TrimSpace(baseModel)
	if model == "" {
		model = provider.DefaultModelRef
	}
	return &TeamConfig{
		IsTeam:              true,
		SupervisorModel:     model,
		Agents:              []AgentConfig{},
		ReflectionLoops:     true,
		MaxReflectionRounds: defaultMaxReflectionRounds,
	}
}

// normalizeToolSubset trims and lowercases tool names and deduplicates while
// preserving first-occurrence order. The operation is idempotent: normalizing
// its own output changes nothing.
func normalizeToolSubset(subset []string) []string {
	seen := make(map[string]bool, len(subset))
	out := make([]string, 0, len(subset))
	for _, name := range subset {
		cleaned := strings.ToLower(strings.TrimSpace(name))
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		out = append(out, cleaned)
	}
	return out
}

// normalizeTeamConfig repairs a loaded or submitted config in place: blank
// agent models inherit the camp base model, tool subsets are cleaned up, the
// roster sorts by id, and the reflection round cap clamps to the supported
// range.
func normalizeTeamConfig(cfg *TeamConfig, baseModel string) {
	cfg.IsTeam = true
	if strings.TrimSpace(cfg.SupervisorModel) == "" {
		cfg.SupervisorModel = strings.TrimSpace(baseModel)
	}
	if strings.TrimSpace(cfg.SupervisorModel) == "" {
		cfg.SupervisorModel = provider.DefaultModelRef
	}
	if cfg.MaxReflectionRounds <= 0 {
		cfg.MaxReflectionRounds = defaultMaxReflectionRounds
	}
	if cfg.MaxReflectionRounds > 8 {
		cfg.MaxReflectionRounds = 8
	}
	if cfg.Agents == nil {
		cfg.Agents = []AgentConfig{}
	}
	for i := range cfg.Agents {
		agent := &cfg.Agents[i]
		agent.ID = strings.TrimSpace(agent.ID)
		agent.Role = strings.TrimSpace(agent.Role)
		agent.Model = strings.TrimSpace(agent.Model)
		if agent.Model == "" {
			agent.Model = cfg.SupervisorModel
		}
		agent.ToolSubset = normalizeToolSubset(agent.ToolSubset)
	}
	sort.SliceStable(cfg.Agents, func(i, j int) bool {
		return strings.ToLower(cfg.Agents[i].ID) < strings.ToLower(cfg.Agents[j].ID)
	})
}

func (c *TeamConfig) findAgent(agentID string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].ID == agentID {
			return &c.Agents[i]
		}
	}
	return nil
}

// findAgentByRole matches a role name case-insensitively, falling back to an
// id match so a roster without literal role labels still works.
func (c *TeamConfig) findAgentByRole(role string) *AgentConfig {
	for i := range c.Agents {
		if strings.EqualFold(c.Agents[i].Role, role) {
			return &c.Agents[i]
		}
	}
	for i := range c.Agents {
		if strings.EqualFold(c.Agents[i].ID, role) {
			return &c.Agents[i]
		}
	}
	return nil
}

// loadTeamConfig reads team.json for a camp, seeding the default config on
// first use. Loading a team config flips the camp into team mode and makes
// sure the on-disk scaffold exists.
func (s *Service) loadTeamConfig(ctx context.Context, campID string, campDir string) (*TeamConfig, error) {
	camp, err := s.camps.Get(ctx, campID)
	if err != nil {
		return nil, fmt.Errorf("failed to load camp %q: %w", campID, err)
	}
	baseModel := ""
	if camp != nil {
		baseModel = camp.Model
	}

	cfg := defaultTeamConfig(baseModel)
	path := filepath.Join(campDir, teamFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg = &TeamConfig{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse team configuration: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read team configuration: %w", err)
	}

	normalizeTeamConfig(cfg, baseModel)
	if err := s.saveTeamConfig(ctx, campID, campDir, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// saveTeamConfig persists team.json and keeps the side effects consistent:
// the scaffold directories exist for every agent and the camp row is marked
// as a team camp.
func (s *Service) saveTeamConfig(ctx context.Context, campID string, campDir string, cfg *TeamConfig) error {
	if err := writeJSONFile(filepath.Join(campDir, teamFileName), cfg); err != nil {
		return err
	}
	if err := ensureTeamScaffold(campDir, cfg); err != nil {
		return err
	}
	if err := s.camps.MarkTeamMode(ctx, campID); err != nil {
		return fmt.Errorf("failed to mark camp %q as team camp: %w", campID, err)
	}
	return nil
}

func writeJSONFile(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
