package team

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/basecamp/internal/provider"
)

const previewRuneLimit = 200

// StepStatus is the replayed state of one plan step.
type StepStatus struct {
	StepID      string   `json:"step_id"`
	AssignedTo  string   `json:"assigned_to"`
	Instruction string   `json:"instruction"`
	DependsOn   []string `json:"depends_on"`
	Status      string   `json:"status"`
	Preview     string   `json:"preview"`
}

type AgentStatus struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Model   string         `json:"model"`
	Status  string         `json:"status"`
	Preview string         `json:"preview"`
	Usage   provider.Usage `json:"usage"`
}

type ArtifactsStatus struct {
	Drafts   []string `json:"drafts"`
	Promoted []string `json:"promoted"`
}

// TeamStatus is a pure projection of the journal plus the current config;
// nothing here is stored separately, so it can never drift from the bus.
type TeamStatus struct {
	IsTeam              bool            `json:"is_team"`
	SupervisorModel     string          `json:"supervisor_model"`
	TaskSummary         string          `json:"task_summary"`
	ReflectionLoops     bool            `json:"reflection_loops"`
	MaxReflectionRounds int             `json:"max_reflection_rounds"`
	Steps               []StepStatus    `json:"steps"`
	Agents              []AgentStatus   `json:"agents"`
	Artifacts           ArtifactsStatus `json:"artifacts"`
	EntryCount          int             `json:"entry_count"`
	TotalUsage          provider.Usage  `json:"total_usage"`
}

// GetTeamStatus rebuilds the live team view by replaying the journal: the
// latest decomposition defines the step list, later delegation, result and
// error entries move steps through pending, running, complete and failed.
func (s *Service) GetTeamStatus(ctx context.Context, campID string) (*TeamStatus, error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}

	// A camp that never entered team mode reads as an empty status instead
	// of being flipped into team mode by the query.
	camp, err := s.camps.Get(ctx, campID)
	if err != nil {
		return nil, err
	}
	if camp != nil && !camp.IsTeam {
		if _, statErr := os.Stat(filepath.Join(campDir, teamFileName)); os.IsNotExist(statErr) {
			return &TeamStatus{Steps: []StepStatus{}, Agents: []AgentStatus{}, Artifacts: emptyArtifacts()}, nil
		}
	}

	cfg, err := s.loadTeamConfig(ctx, campID, campDir)
	if err != nil {
		return nil, err
	}
	entries, err := s.journal.Read(campDir)
	if err != nil {
		return nil, err
	}

	status := &TeamStatus{
		IsTeam:              true,
		SupervisorModel:     cfg.SupervisorModel,
		ReflectionLoops:     cfg.ReflectionLoops,
		MaxReflectionRounds: cfg.MaxReflectionRounds,
		Steps:               []StepStatus{},
		Agents:              []AgentStatus{},
		Artifacts: ArtifactsStatus{
			Drafts:   listArtifactNames(draftsDir(campDir)),
			Promoted: listArtifactNames(promotedDir(campDir)),
		},
	}

	status.EntryCount = len(entries)
	stepIndex := map[string]int{}
	agentUsage := map[string]provider.Usage{}
	agentPreview := map[string]string{}
	reflecting := map[string]bool{}

	for _, entry := range entries {
		status.TotalUsage.Input += entry.TokenUsage.Input
		status.TotalUsage.Output += entry.TokenUsage.Output
		if entry.From != "" && entry.From != "supervisor" {
			usage := agentUsage[entry.From]
			usage.Input += entry.TokenUsage.Input
			usage.Output += entry.TokenUsage.Output
			agentUsage[entry.From] = usage
		}

		switch entry.Type {
		case EntryDecomposition:
			var plan DecompositionPlan
			if json.Unmarshal(entry.Content, &plan) != nil {
				continue
			}
			status.TaskSummary = plan.TaskSummary
			status.Steps = status.Steps[:0]
			stepIndex = map[string]int{}
			for _, step := range plan.Steps {
				stepIndex[step.StepID] = len(status.Steps)
				status.Steps = append(status.Steps, StepStatus{
					StepID:      step.StepID,
					AssignedTo:  step.AssignedTo,
					Instruction: step.Instruction,
					DependsOn:   append([]string{}, step.DependsOn...),
					Status:      "pending",
				})
			}
		case EntryDelegation:
			if i, ok := stepIndex[entry.StepID]; ok {
				status.Steps[i].Status = "running"
			}
		case EntryResult:
			preview := previewFromContent(entry.Content)
			if entry.From != "" && entry.From != "supervisor" {
				agentPreview[entry.From] = preview
			}
			if i, ok := stepIndex[entry.StepID]; ok {
				status.Steps[i].Status = "complete"
				status.Steps[i].Preview = preview
			}
		case EntryError:
			if i, ok := stepIndex[entry.StepID]; ok {
				status.Steps[i].Status = "failed"
				status.Steps[i].Preview = previewFromContent(entry.Content)
			}
		case EntryCritique:
			reflecting[entry.From] = true
		}
	}

	for _, agent := range cfg.Agents {
		state := "idle"
		for _, step := range status.Steps {
			if step.AssignedTo == agent.ID && step.Status == "running" {
				state = "working"
				break
			}
		}
		if state == "idle" && reflecting[agent.ID] {
			state = "reflecting"
		}
		status.Agents = append(status.Agents, AgentStatus{
			ID:      agent.ID,
			Role:    agent.Role,
			Model:   agent.Model,
			Status:  state,
			Preview: agentPreview[agent.ID],
			Usage:   agentUsage[agent.ID],
		})
	}
	return status, nil
}

// previewFromContent extracts a short single-line preview from an entry's
// content: the output_text or message field when the content is an object,
// the string itself otherwise, capped at 200 runes.
func previewFromContent(raw json.RawMessage) string {
	text := ""
	var direct string
	if json.Unmarshal(raw, &direct) == nil {
		text = direct
	} else {
		var obj map[string]any
		if json.Unmarshal(raw, &obj) == nil {
			if value, ok := obj["output_text"].(string); ok {
				text = value
			} else if value, ok := obj["message"].(string); ok {
				text = value
			}
		}
	}

	text = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", " "), "\n", " "))
	runes := []rune(text)
	if len(runes) > previewRuneLimit {
		return string(runes[:previewRuneLimit])
	}
	return text
}

func emptyArtifacts() ArtifactsStatus {
	return ArtifactsStatus{Drafts: []string{}, Promoted: []string{}}
}
