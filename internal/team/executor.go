package team

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/user/basecamp/internal/provider"
)

// AgentStepResult is the outcome of one executed delegation step.
// ContextWrites lists the sandbox paths the agent's tools wrote during the
// loop.
type AgentStepResult struct {
	StepID        string         `json:"step_id"`
	AgentID       string         `json:"agent_id"`
	OutputText    string         `json:"output_text"`
	DraftPath     string         `json:"draft_path"`
	ContextWrites []string       `json:"context_writes"`
	ToolRounds    int            `json:"tool_rounds"`
	TokenUsage    provider.Usage `json:"token_usage"`
}

type loopResult struct {
	output       string
	usage        provider.Usage
	filesWritten []string
	rounds       int
}

// runAgentLoop drives one agent conversation to completion: the model is
// called, returned tool calls are executed in the sandbox and fed back, and
// the loop stops when the model answers without tool calls or the round cap
// is reached. At most maxToolLoops model calls are made.
func (s *Service) runAgentLoop(ctx context.Context, campDir string, agent *AgentConfig, messages []provider.Message) (*loopResult, error) {
	sb, err := newSandbox(campDir, agent.ID)
	if err != nil {
		return nil, err
	}
	tools := toolSpecsForSubset(readAgentToolNames(campDir, agent))

	result := &loopResult{filesWritten: []string{}}
	for round := 0; round < maxToolLoops; round++ {
		resp, err := s.chat.Send(ctx, agent.Model, messages, tools)
		if err != nil {
			return nil, err
		}
		result.rounds++
		result.usage.Input += resp.Usage.Input
		result.usage.Output += resp.Usage.Output
		result.output = strings.TrimSpace(resp.OutputText)

		messages = append(messages, resp.Message)
		if len(resp.Message.ToolCalls) == 0 {
			break
		}
		for _, call := range resp.Message.ToolCalls {
			outcome := sb.execute(call)
			if outcome.wrote != "" {
				result.filesWritten = append(result.filesWritten, outcome.wrote)
			}
			callID := call.ID
			if callID == "" {
				callID = "tool-" + uuid.NewString()
			}
			messages = append(messages, provider.ToolMessage(callID, call.Function.Name, outcome.result))
		}
	}
	return result, nil
}

func composeStepPrompt(agent *AgentConfig, step *DelegationStep) string {
	deps := "none"
	if len(step.DependsOn) > 0 {
		deps = strings.Join(step.DependsOn, ", ")
	}
	output := strings.TrimSpace(step.ExpectedOutput)
	if output == "" {
		output = step.StepID + ".md"
	}
	var b strings.Builder
	b.WriteString("Delegated step: ")
	b.WriteString(step.StepID)
	b.WriteString("\nYour role: ")
	b.WriteString(agent.Role)
	b.WriteString("\n\nInstruction:\n")
	b.WriteString(step.Instruction)
	b.WriteString("\n\nThis step depends on: ")
	b.WriteString(deps)
	b.WriteString("\nExpected output artifact: ")
	b.WriteString(output)
	b.WriteString("\n\nProduce the complete deliverable for this step as your final answer.")
	return b.String()
}

// ExecuteAgentStep runs one delegation step on its assigned agent, saves the
// final output as a draft artifact and journals a result entry. The agent id
// must name a roster member and match the step's assignee.
func (s *Service) ExecuteAgentStep(ctx context.Context, campID string, agentID string, step DelegationStep) (result *AgentStepResult, err error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadTeamConfig(ctx, campID, campDir)
	if err != nil {
		return nil, err
	}

	run := s.beginRun(ctx, campID, "execute_step")
	defer func() { s.endRun(ctx, run, err) }()

	step.StepID = strings.TrimSpace(step.StepID)
	step.AssignedTo = strings.TrimSpace(step.AssignedTo)
	step.Instruction = strings.TrimSpace(step.Instruction)
	if step.StepID == "" {
		return nil, fmt.Errorf("step_id is required")
	}
	if step.Instruction == "" {
		return nil, fmt.Errorf("instruction is required")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}
	agent := cfg.findAgent(agentID)
	if agent == nil {
		return nil, fmt.Errorf("agent %q not found in team roster", agentID)
	}
	if agentID != step.AssignedTo {
		return nil, fmt.Errorf("step %q is assigned to %q, not agent %q", step.StepID, step.AssignedTo, agentID)
	}

	messages := []provider.Message{
		provider.SystemMessage(readAgentSystemPrompt(campDir, agent)),
		provider.UserMessage(composeStepPrompt(agent, &step)),
	}
	loop, err := s.runAgentLoop(ctx, campDir, agent, messages)
	if err != nil {
		s.journalError(campDir, agent.ID, "supervisor", step.StepID, fmt.Sprintf("step execution failed: %s", err))
		return nil, err
	}

	draftPath, err := writeStepDraft(campDir, &step, loop.output)
	if err != nil {
		return nil, err
	}

	result = &AgentStepResult{
		StepID:        step.StepID,
		AgentID:       agent.ID,
		OutputText:    loop.output,
		DraftPath:     draftPath,
		ContextWrites: loop.filesWritten,
		ToolRounds:    loop.rounds,
		TokenUsage:    loop.usage,
	}
	entry, err := newBusEntry(EntryResult, agent.ID, "supervisor", step.StepID, map[string]any{
		"output_text":    loop.output,
		"draft_path":     draftPath,
		"context_writes": loop.filesWritten,
		"tool_rounds":    loop.rounds,
	}, loop.usage)
	if err != nil {
		return nil, err
	}
	if err = s.appendEntry(campDir, entry); err != nil {
		return nil, err
	}

	s.publish("team://step_complete", result)
	s.touchCamp(ctx, campID)
	return result, nil
}
