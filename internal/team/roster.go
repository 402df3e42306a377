package team

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// CreateAgent adds an agent to the roster or replaces the one with the same
// id. New agents beyond the roster cap are rejected; replacements always
// pass.
func (s *Service) CreateAgent(ctx context.Context, campID string, agent AgentConfig) (*AgentConfig, error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadTeamConfig(ctx, campID, campDir)
	if err != nil {
		return nil, err
	}

	agent.ID, err = validateIdentifier(agent.ID, "agent_id")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(agent.Role) == "" {
		return nil, fmt.Errorf("agent role is required")
	}
	if strings.TrimSpace(agent.Model) == "" {
		return nil, fmt.Errorf("agent model is required")
	}

	if existing := cfg.findAgent(agent.ID); existing != nil {
		*existing = agent
	} else {
		if len(cfg.Agents) >= maxTeamAgents {
			return nil, fmt.Errorf("a team can have at most %d agents; remove one before adding another", maxTeamAgents)
		}
		cfg.Agents = append(cfg.Agents, agent)
	}

	normalizeTeamConfig(cfg, cfg.SupervisorModel)
	if err := s.saveTeamConfig(ctx, campID, campDir, cfg); err != nil {
		return nil, err
	}

	stored := cfg.findAgent(agent.ID)
	out := *stored
	return &out, nil
}

// RemoveAgent drops an agent from the roster and deletes its working
// directory. The directory removal is best effort.
func (s *Service) RemoveAgent(ctx context.Context, campID string, agentID string) error {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return err
	}
	cfg, err := s.loadTeamConfig(ctx, campID, campDir)
	if err != nil {
		return err
	}

	agentID, err = validateIdentifier(agentID, "agent_id")
	if err != nil {
		return err
	}

	kept := cfg.Agents[:0]
	found := false
	for _, agent := range cfg.Agents {
		if agent.ID == agentID {
			found = true
			continue
		}
		kept = append(kept, agent)
	}
	if !found {
		return fmt.Errorf("agent %q not found in team roster", agentID)
	}
	cfg.Agents = kept

	if err := s.saveTeamConfig(ctx, campID, campDir, cfg); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(campDir, agentsDirName, agentID)); err != nil {
		slog.Debug("failed to remove agent directory", "agent_id", agentID, "error", err)
	}
	return nil
}

// SettingsUpdate carries the mutable team-level settings.
type SettingsUpdate struct {
	SupervisorModel     string `json:"supervisor_model"`
	ReflectionLoops     bool   `json:"reflection_loops"`
	MaxReflectionRounds int    `json:"max_reflection_rounds"`
}

// UpdateSettings replaces the team-level settings, clamping the reflection
// round cap to the supported range, and returns the stored config.
func (s *Service) UpdateSettings(ctx context.Context, campID string, update SettingsUpdate) (*TeamConfig, error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadTeamConfig(ctx, campID, campDir)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(update.SupervisorModel)
	if model == "" {
		return nil, fmt.Errorf("supervisor_model is required")
	}

	rounds := update.MaxReflectionRounds
	if rounds < 1 {
		rounds = 1
	}
	if rounds > 8 {
		rounds = 8
	}

	cfg.SupervisorModel = model
	cfg.ReflectionLoops = update.ReflectionLoops
	cfg.MaxReflectionRounds = rounds
	normalizeTeamConfig(cfg, model)
	if err := s.saveTeamConfig(ctx, campID, campDir, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetTeamConfig loads the current team configuration, seeding defaults on
// first use.
func (s *Service) GetTeamConfig(ctx context.Context, campID string) (*TeamConfig, error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}
	return s.loadTeamConfig(ctx, campID, campDir)
}
