package team

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/user/basecamp/internal/provider"
)

// EntryType tags the kind of a team bus journal entry.
type EntryType string

const (
	EntryDecomposition EntryType = "decomposition"
	EntryDelegation    EntryType = "delegation"
	EntryResult        EntryType = "result"
	EntryCritique      EntryType = "critique"
	EntryPromotion     EntryType = "promotion"
	EntryError         EntryType = "error"
)

// BusEntry is one line of the append-only team_bus.jsonl journal. Entries
// are never rewritten; all team state is reconstructed by replaying them.
type BusEntry struct {
	ID         string          `json:"id"`
	Timestamp  string          `json:"timestamp"`
	Type       EntryType       `json:"type"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	StepID     string          `json:"step_id,omitempty"`
	Content    json.RawMessage `json:"content"`
	TokenUsage provider.Usage  `json:"token_usage"`
}

func newBusEntry(entryType EntryType, from string, to string, stepID string, content any, usage provider.Usage) (*BusEntry, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s entry content: %w", entryType, err)
	}
	return &BusEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Type:       entryType,
		From:       from,
		To:         to,
		StepID:     stepID,
		Content:    raw,
		TokenUsage: usage,
	}, nil
}

// JournalStore is the durable journal port. Implementations append entries
// as single JSON lines and return them in append order.
type JournalStore interface {
	Append(campDir string, entry *BusEntry) error
	Read(campDir string) ([]BusEntry, error)
}

// FileJournal stores the journal in team_bus.jsonl inside the camp
// directory, one JSON object per line.
type FileJournal struct{}

func (FileJournal) busPath(campDir string) string {
	return filepath.Join(campDir, teamBusFileName)
}

func (j *FileJournal) Append(campDir string, entry *BusEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode team bus entry: %w", err)
	}

	f, err := os.OpenFile(j.busPath(campDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open team bus: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("failed to append team bus entry: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to append team bus entry: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush team bus: %w", err)
	}
	return nil
}

// Read replays the journal in append order. Blank lines are skipped; a
// malformed line fails the whole read rather than silently dropping history.
func (j *FileJournal) Read(campDir string) ([]BusEntry, error) {
	f, err := os.Open(j.busPath(campDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []BusEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open team bus: %w", err)
	}
	defer f.Close()

	entries := []BusEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry BusEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("unable to parse team bus entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read team bus: %w", err)
	}
	return entries, nil
}

// appendEntry writes the entry to the durable journal first and only then
// notifies live subscribers. A failed notification never fails the write.
func (s *Service) appendEntry(campDir string, entry *BusEntry) error {
	if err := s.journal.Append(campDir, entry); err != nil {
		return err
	}
	s.publish("team://bus_update", entry)
	return nil
}

// GetTeamBus returns the full journal for a camp in append order.
func (s *Service) GetTeamBus(ctx context.Context, campID string) ([]BusEntry, error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadTeamConfig(ctx, campID, campDir); err != nil {
		return nil, err
	}
	return s.journal.Read(campDir)
}
