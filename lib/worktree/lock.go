// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// withWriteLock runs fn while holding an exclusive advisory flock on a
// lock file inside the repository's git directory. The lock serializes
// ledger mutations across goroutines and across processes sharing the
// repository; readers never take it. Acquisition blocks until the
// holder releases, which for ledger-sized operations is short.
func (m *Manager) withWriteLock(ctx context.Context, fn func() error) error {
	lockPath, err := m.lockPath(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("opening ledger lock: %w", err)
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("acquiring ledger lock: %w", err)
	}
	defer unix.Flock(int(file.Fd()), unix.LOCK_UN)

	return fn()
}

// lockPath returns the ledger lock file location. It lives under the
// git common directory so every worktree of the repository contends on
// the same lock.
func (m *Manager) lockPath(ctx context.Context) (string, error) {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()
	gitDir, err := m.repo.GitDir(localCtx)
	if err != nil {
		return "", fmt.Errorf("locating git directory for lock: %w", err)
	}
	return filepath.Join(gitDir, "chronik", "ledger.lock"), nil
}
