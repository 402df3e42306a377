// Package team implements the Basecamp team orchestration engine: roster
// management, supervisor task decomposition, sandboxed delegation step
// execution, the writer/critic reflection loop, the append-only team bus
// journal, and status reconstruction from that journal.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/basecamp/internal/db"
	"github.com/user/basecamp/internal/provider"
)

const (
	teamFileName      = "team.json"
	teamBusFileName   = "team_bus.jsonl"
	supervisorDirName = "supervisor"
	agentsDirName     = "agents"
	artifactsDirName  = "artifacts"
	draftsDirName     = "drafts"
	promotedDirName   = "promoted"

	defaultMaxReflectionRounds = 2
	maxTeamAgents              = 8
	maxToolLoops               = 6
)

// CampStore is the session persistence port: the engine marks camps as
// team-enabled and bumps their update timestamp through it.
type CampStore interface {
	Get(ctx context.Context, campID string) (*db.Camp, error)
	MarkTeamMode(ctx context.Context, campID string) error
	Touch(ctx context.Context, campID string) error
}

// RunRecorder logs orchestration operation runs. Recording is best-effort;
// failures never affect the operation outcome.
type RunRecorder interface {
	Create(ctx context.Context, run *db.TeamRun) error
	Finish(ctx context.Context, runID string, status string, runErr string) error
}

// Notifier is the live notification port. Pushes are best-effort and must
// never influence durable state.
type Notifier interface {
	Publish(event string, payload any)
}

type Options struct {
	CampsRoot string
	Chat      provider.Service
	Camps     CampStore
	Runs      RunRecorder
	Journal   JournalStore
	Notifier  Notifier
}

type Service struct {
	campsRoot string
	chat      provider.Service
	camps     CampStore
	runs      RunRecorder
	journal   JournalStore
	notifier  Notifier
}

func New(opts Options) (*Service, error) {
	if strings.TrimSpace(opts.CampsRoot) == "" {
		return nil, fmt.Errorf("camps root is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("chat completion service is required")
	}
	if opts.Camps == nil {
		return nil, fmt.Errorf("camp store is required")
	}
	journal := opts.Journal
	if journal == nil {
		journal = &FileJournal{}
	}
	return &Service{
		campsRoot: opts.CampsRoot,
		chat:      opts.Chat,
		camps:     opts.Camps,
		runs:      opts.Runs,
		journal:   journal,
		notifier:  opts.Notifier,
	}, nil
}

func (s *Service) resolveCampDir(campID string) (string, error) {
	validated, err := validateIdentifier(campID, "camp_id")
	if err != nil {
		return "", err
	}
	campDir := filepath.Join(s.campsRoot, validated)
	info, err := os.Stat(campDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("camp not found")
	}
	return campDir, nil
}

// validateIdentifier accepts path-safe identifiers only: no separators, no
// traversal segments.
func validateIdentifier(value string, fieldName string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", fieldName)
	}
	if strings.ContainsAny(trimmed, `/\`) || strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("%s must not contain path separators or traversal segments", fieldName)
	}
	return trimmed, nil
}

func (s *Service) publish(event string, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(event, payload)
}

func (s *Service) touchCamp(ctx context.Context, campID string) {
	if err := s.camps.Touch(ctx, campID); err != nil {
		slog.Debug("failed to touch camp", "camp_id", campID, "error", err)
	}
}

func (s *Service) beginRun(ctx context.Context, campID string, operation string) *db.TeamRun {
	if s.runs == nil {
		return nil
	}
	run := &db.TeamRun{CampID: campID, Operation: operation}
	if err := s.runs.Create(ctx, run); err != nil {
		slog.Debug("failed to record run start", "operation", operation, "error", err)
		return nil
	}
	return run
}

func (s *Service) endRun(ctx context.Context, run *db.TeamRun, opErr error) {
	if s.runs == nil || run == nil {
		return
	}
	status, message := "succeeded", ""
	if opErr != nil {
		status, message = "failed", opErr.Error()
	}
	if err := s.runs.Finish(ctx, run.ID, status, message); err != nil {
		slog.Debug("failed to record run end", "operation", run.Operation, "error", err)
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func logJournalFailure(err error) {
	slog.Warn("failed to journal team bus entry", "error", err)
}
