package team

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/user/basecamp/internal/provider"
)

// CritiqueResult is the structured verdict a critic agent returns for one
// reflection round.
type CritiqueResult struct {
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Pass        bool     `json:"pass"`
}

// ReflectionSummary reports a finished reflection loop. The artifact is
// promoted whether or not the critic ever passed it; Pass records the final
// verdict and Critiques the full round history.
type ReflectionSummary struct {
	ArtifactPath    string           `json:"artifact_path"`
	PromotedPath    string           `json:"promoted_path"`
	Pass            bool             `json:"pass"`
	RoundsCompleted int              `json:"rounds_completed"`
	Critiques       []CritiqueResult `json:"critiques"`
	TokenUsage      provider.Usage   `json:"token_usage"`
}

func composeCritiquePrompt(draft string) string {
	return fmt.Sprintf(`Review the draft below and answer with JSON only, shaped as
{"issues": ["..."], "suggestions": ["..."], "pass": true|false}.
Set "pass" to true only when the draft needs no further revision.

Draft:
%s`, draft)
}

func composeRevisionPrompt(draft string, critique *CritiqueResult) string {
	var b strings.Builder
	b.WriteString("Revise the draft below to resolve the critique. Answer with the complete revised draft only, no commentary.\n")
	if len(critique.Issues) > 0 {
		b.WriteString("\nIssues:\n")
		for _, issue := range critique.Issues {
			b.WriteString("- " + issue + "\n")
		}
	}
	if len(critique.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range critique.Suggestions {
			b.WriteString("- " + suggestion + "\n")
		}
	}
	b.WriteString("\nDraft:\n")
	b.WriteString(draft)
	return b.String()
}

func parseCritiqueOutput(raw string) (*CritiqueResult, error) {
	payload, err := extractJSONPayload(raw)
	if err != nil {
		return nil, err
	}
	var critique CritiqueResult
	if err := json.Unmarshal([]byte(payload), &critique); err != nil {
		return nil, fmt.Errorf("unable to parse JSON payload from model output: %w", err)
	}
	if critique.Issues == nil {
		critique.Issues = []string{}
	}
	if critique.Suggestions == nil {
		critique.Suggestions = []string{}
	}
	return &critique, nil
}

// RunReflectionLoop alternates critic and writer over a draft artifact for
// at most the configured number of rounds, then promotes the draft
// unconditionally. The loop ends early when the critic passes the draft.
func (s *Service) RunReflectionLoop(ctx context.Context, campID string, artifactPath string, requestedRounds int) (summary *ReflectionSummary, err error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadTeamConfig(ctx, campID, campDir)
	if err != nil {
		return nil, err
	}

	run := s.beginRun(ctx, campID, "reflect")
	defer func() { s.endRun(ctx, run, err) }()

	writer := cfg.findAgentByRole("writer")
	if writer == nil {
		return nil, fmt.Errorf("team is missing a writer agent required for the reflection loop")
	}
	critic := cfg.findAgentByRole("critic")
	if critic == nil {
		return nil, fmt.Errorf("team is missing a critic agent required for the reflection loop")
	}

	draftAbs, name, err := resolveDraft(campDir, artifactPath)
	if err != nil {
		return nil, err
	}

	rounds := requestedRounds
	if rounds <= 0 || rounds > cfg.MaxReflectionRounds {
		rounds = cfg.MaxReflectionRounds
	}

	summary = &ReflectionSummary{Critiques: []CritiqueResult{}}
	for round := 1; round <= rounds; round++ {
		draft, readErr := os.ReadFile(draftAbs)
		if readErr != nil {
			err = fmt.Errorf("failed to read draft artifact: %w", readErr)
			return nil, err
		}

		critiqueResp, sendErr := s.chat.Send(ctx, critic.Model, []provider.Message{
			provider.SystemMessage(readAgentSystemPrompt(campDir, critic)),
			provider.UserMessage(composeCritiquePrompt(string(draft))),
		}, nil)
		if sendErr != nil {
			err = sendErr
			s.journalError(campDir, critic.ID, "supervisor", "", fmt.Sprintf("reflection round %d failed: %s", round, err))
			return nil, err
		}
		summary.TokenUsage.Input += critiqueResp.Usage.Input
		summary.TokenUsage.Output += critiqueResp.Usage.Output

		critique, parseErr := parseCritiqueOutput(critiqueResp.OutputText)
		if parseErr != nil {
			err = parseErr
			s.journalError(campDir, critic.ID, "supervisor", "", fmt.Sprintf("reflection round %d failed: %s", round, err))
			return nil, err
		}

		summary.RoundsCompleted = round
		summary.Pass = critique.Pass
		summary.Critiques = append(summary.Critiques, *critique)

		entry, entryErr := newBusEntry(EntryCritique, critic.ID, "supervisor", "", map[string]any{
			"round":       round,
			"issues":      critique.Issues,
			"suggestions": critique.Suggestions,
			"pass":        critique.Pass,
		}, critiqueResp.Usage)
		if entryErr != nil {
			err = entryErr
			return nil, err
		}
		if err = s.appendEntry(campDir, entry); err != nil {
			return nil, err
		}
		s.publish("team://reflection_round", map[string]any{
			"camp_id": campID,
			"round":   round,
			"pass":    critique.Pass,
		})

		if critique.Pass {
			break
		}
		if !cfg.ReflectionLoops || round == rounds {
			break
		}

		revisionResp, sendErr := s.chat.Send(ctx, writer.Model, []provider.Message{
			provider.SystemMessage(readAgentSystemPrompt(campDir, writer)),
			provider.UserMessage(composeRevisionPrompt(string(draft), critique)),
		}, nil)
		if sendErr != nil {
			err = sendErr
			s.journalError(campDir, writer.ID, critic.ID, "", fmt.Sprintf("reflection round %d failed: %s", round, err))
			return nil, err
		}
		summary.TokenUsage.Input += revisionResp.Usage.Input
		summary.TokenUsage.Output += revisionResp.Usage.Output

		revised := strings.TrimSpace(revisionResp.OutputText)
		if revised != "" {
			if writeErr := os.WriteFile(draftAbs, []byte(revised+"\n"), 0o644); writeErr != nil {
				err = fmt.Errorf("failed to write revised draft: %w", writeErr)
				return nil, err
			}
		}

		revision, entryErr := newBusEntry(EntryResult, writer.ID, critic.ID, "", map[string]any{
			"round":         round,
			"artifact_path": artifactPath,
			"output_text":   revised,
		}, revisionResp.Usage)
		if entryErr != nil {
			err = entryErr
			return nil, err
		}
		if err = s.appendEntry(campDir, revision); err != nil {
			return nil, err
		}
	}

	fromRel, toRel, err := promoteDraft(campDir, draftAbs, name)
	if err != nil {
		return nil, err
	}
	promotion, err := newBusEntry(EntryPromotion, "supervisor", "all", "", map[string]any{
		"from":             fromRel,
		"to":               toRel,
		"pass":             summary.Pass,
		"rounds_completed": summary.RoundsCompleted,
	}, provider.Usage{})
	if err != nil {
		return nil, err
	}
	if err = s.appendEntry(campDir, promotion); err != nil {
		return nil, err
	}
	s.publish("team://artifact_promoted", map[string]any{
		"camp_id": campID,
		"from":    fromRel,
		"to":      toRel,
	})

	summary.ArtifactPath = fromRel
	summary.PromotedPath = toRel
	s.touchCamp(ctx, campID)
	return summary, nil
}
