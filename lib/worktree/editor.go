// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// ensureEditorExcluded adds the ledger checkout to the project's
// VS Code watcher exclusions, so the secondary worktree's churn does
// not feed editor file watchers. Settings files are hand-edited and
// commonly carry comments, so the existing content is read as JSONC.
//
// Best-effort on purpose: this only touches a .vscode directory that
// already exists, and any failure is logged and ignored. Editor
// comfort must never block ledger setup.
func (m *Manager) ensureEditorExcluded() {
	settingsDir := filepath.Join(m.repo.Dir(), ".vscode")
	if info, err := os.Stat(settingsDir); err != nil || !info.IsDir() {
		return
	}

	rel, err := filepath.Rel(m.repo.Dir(), m.dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	pattern := "**/" + filepath.ToSlash(rel) + "/**"

	settingsPath := filepath.Join(settingsDir, "settings.json")
	settings := map[string]any{}
	if raw, err := os.ReadFile(settingsPath); err == nil {
		if err := json.Unmarshal(jsonc.ToJSON(raw), &settings); err != nil {
			m.logger.Debug("editor settings unparseable, leaving untouched",
				"path", settingsPath, "error", err)
			return
		}
	}

	exclusions, _ := settings["files.watcherExclude"].(map[string]any)
	if exclusions == nil {
		exclusions = map[string]any{}
	}
	if excluded, ok := exclusions[pattern].(bool); ok && excluded {
		return
	}
	exclusions[pattern] = true
	settings["files.watcherExclude"] = exclusions

	updated, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return
	}
	updated = append(updated, '\n')
	if err := os.WriteFile(settingsPath, updated, 0644); err != nil {
		m.logger.Debug("editor settings update failed", "path", settingsPath, "error", err)
	}
}
