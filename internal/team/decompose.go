package team

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/basecamp/internal/provider"
)

// DelegationStep is one unit of delegated work inside a decomposition plan.
type DelegationStep struct {
	StepID         string   `json:"step_id"`
	AssignedTo     string   `json:"assigned_to"`
	Instruction    string   `json:"instruction"`
	DependsOn      []string `json:"depends_on"`
	ExpectedOutput string   `json:"expected_output"`
}

// DecompositionPlan is the supervisor's structured answer to a user task.
type DecompositionPlan struct {
	TaskSummary        string           `json:"task_summary"`
	Steps              []DelegationStep `json:"steps"`
	ReflectionRequired bool             `json:"reflection_required"`
}

// renderAgentRoster formats the roster for the supervisor prompt, one agent
// per line with its tool subset.
func renderAgentRoster(cfg *TeamConfig) string {
	if len(cfg.Agents) == 0 {
		return "(no agents registered)"
	}
	var b strings.Builder
	for _, agent := range cfg.Agents {
		tools := "none"
		if len(agent.ToolSubset) > 0 {
			tools = strings.Join(agent.ToolSubset, ", ")
		}
		description := agent.Description
		if strings.TrimSpace(description) == "" {
			description = "Specialized contributor"
		}
		fmt.Fprintf(&b, "- id: %s | role: %s | model: %s | tools: %s | %s\n",
			agent.ID, agent.Role, agent.Model, tools, description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// extractJSONPayload pulls a JSON document out of raw model output. Models
// wrap answers in prose or markdown fences often enough that three attempts
// are made in order: the raw text, the content of a fenced block, and the
// widest braced substring.
func extractJSONPayload(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("model returned empty output where JSON was expected")
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unable to parse JSON payload from model output")
}

func parsePlanOutput(raw string) (*DecompositionPlan, error) {
	payload, err := extractJSONPayload(raw)
	if err != nil {
		return nil, err
	}
	var plan DecompositionPlan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("unable to parse JSON payload from model output: %w", err)
	}
	return &plan, nil
}

// validatePlan checks a parsed plan against the roster and normalizes it in
// place. Dependencies must name steps that exist in the plan; ordering
// between them is not checked, so forward references and cycles pass.
func validatePlan(cfg *TeamConfig, plan *DecompositionPlan) error {
	if len(plan.Steps) == 0 {
		return fmt.Errorf("decomposition produced no steps")
	}
	if strings.TrimSpace(plan.TaskSummary) == "" {
		plan.TaskSummary = "Task decomposition"
	}

	stepIDs := make(map[string]bool, len(plan.Steps))
	for i := range plan.Steps {
		step := &plan.Steps[i]
		step.StepID = strings.TrimSpace(step.StepID)
		step.AssignedTo = strings.TrimSpace(step.AssignedTo)
		step.Instruction = strings.TrimSpace(step.Instruction)
		step.ExpectedOutput = strings.TrimSpace(step.ExpectedOutput)
		if step.StepID == "" {
			return fmt.Errorf("step %d is missing step_id", i+1)
		}
		if _, idErr := validateIdentifier(step.StepID, "step_id"); idErr != nil {
			return fmt.Errorf("step %q: %w", step.StepID, idErr)
		}
		if stepIDs[step.StepID] {
			return fmt.Errorf("duplicate step id %q in plan", step.StepID)
		}
		stepIDs[step.StepID] = true
		if step.Instruction == "" {
			return fmt.Errorf("step %q is missing an instruction", step.StepID)
		}
		if _, idErr := validateIdentifier(step.AssignedTo, "assigned_to"); idErr != nil {
			return fmt.Errorf("step %q: %w", step.StepID, idErr)
		}
		if cfg.findAgent(step.AssignedTo) == nil {
			return fmt.Errorf("step %q is assigned to unknown agent %q", step.StepID, step.AssignedTo)
		}
		if step.ExpectedOutput == "" {
			step.ExpectedOutput = step.StepID + ".md"
		}
		step.DependsOn = dedupeStrings(step.DependsOn)
		for _, dep := range step.DependsOn {
			if _, depErr := validateIdentifier(dep, "depends_on entry"); depErr != nil {
				return fmt.Errorf("step %q: %w", step.StepID, depErr)
			}
		}
	}

	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			if !stepIDs[dep] {
				return fmt.Errorf("step %q depends on unknown step %q", step.StepID, dep)
			}
		}
	}
	return nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return out
}

// DecomposeTask asks the supervisor model to split a task across the roster
// and journals the resulting plan as one decomposition entry followed by one
// delegation entry per step.
func (s *Service) DecomposeTask(ctx context.Context, campID string, userTask string) (plan *DecompositionPlan, err error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadTeamConfig(ctx, campID, campDir)
	if err != nil {
		return nil, err
	}

	run := s.beginRun(ctx, campID, "decompose")
	defer func() { s.endRun(ctx, run, err) }()

	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("Team has no agents. Add at least one agent before decomposition.")
	}
	task := strings.TrimSpace(userTask)
	if task == "" {
		return nil, fmt.Errorf("user_task is required")
	}

	systemPrompt := strings.ReplaceAll(readSupervisorSystemPrompt(campDir), "{{agent_roster}}", renderAgentRoster(cfg))
	messages := []provider.Message{
		provider.SystemMessage(systemPrompt),
		provider.UserMessage(task),
	}

	resp, err := s.chat.Send(ctx, cfg.SupervisorModel, messages, nil)
	if err != nil {
		s.journalError(campDir, "supervisor", "all", "", fmt.Sprintf("decomposition failed: %s", err))
		return nil, err
	}

	plan, err = parsePlanOutput(resp.OutputText)
	if err == nil {
		err = validatePlan(cfg, plan)
	}
	if err != nil {
		s.journalError(campDir, "supervisor", "all", "", fmt.Sprintf("decomposition failed: %s", err))
		return nil, err
	}

	entry, err := newBusEntry(EntryDecomposition, "supervisor", "all", "", plan, resp.Usage)
	if err != nil {
		return nil, err
	}
	if err = s.appendEntry(campDir, entry); err != nil {
		return nil, err
	}
	for _, step := range plan.Steps {
		delegation, entryErr := newBusEntry(EntryDelegation, "supervisor", step.AssignedTo, step.StepID, map[string]any{
			"instruction":     step.Instruction,
			"depends_on":      step.DependsOn,
			"expected_output": step.ExpectedOutput,
		}, provider.Usage{})
		if entryErr != nil {
			return nil, entryErr
		}
		if err = s.appendEntry(campDir, delegation); err != nil {
			return nil, err
		}
	}

	s.touchCamp(ctx, campID)
	return plan, nil
}

// journalError records a failure on the bus. Best effort: if the journal
// itself is unwritable the original error still wins.
func (s *Service) journalError(campDir string, from string, to string, stepID string, message string) {
	entry, err := newBusEntry(EntryError, from, to, stepID, map[string]any{"message": message}, provider.Usage{})
	if err == nil {
		err = s.appendEntry(campDir, entry)
	}
	if err != nil {
		logJournalFailure(err)
	}
}
