package team

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/user/basecamp/internal/provider"
)

func draftsDir(campDir string) string {
	return filepath.Join(campDir, artifactsDirName, draftsDirName)
}

func promotedDir(campDir string) string {
	return filepath.Join(campDir, artifactsDirName, promotedDirName)
}

// sanitizeFilename reduces a requested artifact name to a safe flat file
// name: the base name only, with anything outside [a-zA-Z0-9._-] replaced by
// a dash and runs of dashes collapsed. An unusable name falls back.
func sanitizeFilename(raw string, fallback string) string {
	name := filepath.Base(strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/")))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}

	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
			}
			lastDash = true
		}
	}

	cleaned := strings.Trim(b.String(), "-.")
	if cleaned == "" {
		cleaned = fallback
	}
	if !strings.Contains(cleaned, ".") {
		cleaned += ".md"
	}
	return cleaned
}

// writeStepDraft persists a step's final output under artifacts/drafts and
// returns the camp-relative draft path. A name collision falls back to a
// timestamped file instead of overwriting an existing draft.
func writeStepDraft(campDir string, step *DelegationStep, output string) (string, error) {
	dir := draftsDir(campDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create drafts directory: %w", err)
	}

	fallback := step.StepID + ".md"
	name := sanitizeFilename(step.ExpectedOutput, fallback)
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		stem := strings.TrimSuffix(sanitizeFilename(step.StepID, "step"), ".md")
		name = fmt.Sprintf("%s-%d.md", stem, nowMillis())
		target = filepath.Join(dir, name)
	}

	if err := os.WriteFile(target, []byte(output), 0o644); err != nil {
		return "", fmt.Errorf("failed to write draft artifact: %w", err)
	}
	return path.Join(artifactsDirName, draftsDirName, name), nil
}

// resolveDraft maps a camp-relative artifact path (with or without the
// artifacts/drafts/ prefix) to the absolute draft file, enforcing that the
// file exists inside the drafts directory.
func resolveDraft(campDir string, artifactPath string) (absPath string, name string, err error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(artifactPath, `\`, "/"))
	trimmed = strings.TrimPrefix(trimmed, artifactsDirName+"/"+draftsDirName+"/")
	relPath, err := validateRelativePath(trimmed, "artifact_path", false)
	if err != nil {
		return "", "", err
	}

	root, err := filepath.EvalSymlinks(draftsDir(campDir))
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve drafts directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return "", "", fmt.Errorf("draft artifact %q not found", relPath)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("artifact_path escapes the drafts directory")
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", "", fmt.Errorf("artifact_path must point to a draft file")
	}
	return resolved, filepath.Base(resolved), nil
}

// promoteDraft moves a draft into artifacts/promoted, picking a timestamped
// name when the target already exists. Returns camp-relative from/to paths.
func promoteDraft(campDir string, draftAbs string, name string) (fromRel string, toRel string, err error) {
	dir := promotedDir(campDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create promoted directory: %w", err)
	}

	targetName := name
	target := filepath.Join(dir, targetName)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		targetName = fmt.Sprintf("%s-%d%s", stem, nowMillis(), ext)
		target = filepath.Join(dir, targetName)
	}

	if err := os.Rename(draftAbs, target); err != nil {
		return "", "", fmt.Errorf("failed to promote draft artifact: %w", err)
	}
	fromRel = path.Join(artifactsDirName, draftsDirName, name)
	toRel = path.Join(artifactsDirName, promotedDirName, targetName)
	return fromRel, toRel, nil
}

// PromoteArtifact moves a draft into the promoted directory and journals the
// promotion.
func (s *Service) PromoteArtifact(ctx context.Context, campID string, artifactPath string) (promoted string, err error) {
	campDir, err := s.resolveCampDir(campID)
	if err != nil {
		return "", err
	}
	if _, err = s.loadTeamConfig(ctx, campID, campDir); err != nil {
		return "", err
	}

	run := s.beginRun(ctx, campID, "promote")
	defer func() { s.endRun(ctx, run, err) }()

	draftAbs, name, err := resolveDraft(campDir, artifactPath)
	if err != nil {
		return "", err
	}
	fromRel, toRel, err := promoteDraft(campDir, draftAbs, name)
	if err != nil {
		return "", err
	}

	entry, err := newBusEntry(EntryPromotion, "supervisor", "all", "", map[string]any{
		"from": fromRel,
		"to":   toRel,
	}, provider.Usage{})
	if err != nil {
		return "", err
	}
	if err = s.appendEntry(campDir, entry); err != nil {
		return "", err
	}

	s.publish("team://artifact_promoted", map[string]any{
		"camp_id": campID,
		"from":    fromRel,
		"to":      toRel,
	})
	s.touchCamp(ctx, campID)
	return toRel, nil
}

// listArtifactNames walks one artifacts subdirectory recursively and returns
// the sorted slash-relative file paths. A missing directory reads as empty.
func listArtifactNames(dir string) []string {
	names := []string{}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return nil
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(names)
	return names
}
