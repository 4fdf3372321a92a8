// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for ledger
// operations. Chronik stores its ledger inside the host project's own
// repository, so every operation shells out to the same git binary the
// project's tooling uses — merge, rebase, and push semantics are
// inherited rather than reimplemented. All commands target a specific
// repository directory via the -C flag, which is automatically injected
// by all Repository methods.
//
// Timeouts are the caller's responsibility via context: local
// operations should get 15-30 seconds, network push/pull longer. A
// timeout surfaces as an ordinary error and must be treated as a soft,
// retryable failure.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory — callers must always specify which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory,
// which may be the primary working tree or a secondary checkout.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Discover resolves the repository whose working tree contains dir and
// returns a Repository rooted at its top level. Running from a
// subdirectory of the project must behave exactly like running from
// its root.
func Discover(ctx context.Context, dir string) (*Repository, error) {
	probe := &Repository{dir: dir}
	root, err := probe.RunTrimmed(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%s is not inside a git working tree: %w", dir, err)
	}
	return &Repository{dir: root}, nil
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunTrimmed executes a git command and returns stdout with
// surrounding whitespace removed. Convenience for single-value queries
// like rev-parse and config reads.
func (r *Repository) RunTrimmed(ctx context.Context, args ...string) (string, error) {
	output, err := r.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, and Stderr before
// starting the process. The -C flag targeting this repository is
// automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}

// GitDir returns the absolute path of this repository's .git directory
// (the common directory when called from a linked worktree).
func (r *Repository) GitDir(ctx context.Context) (string, error) {
	return r.RunTrimmed(ctx, "rev-parse", "--path-format=absolute", "--git-common-dir")
}

// Head returns the commit id the repository's HEAD currently points
// at. For the ledger this is always queried on the primary working
// tree, never the ledger checkout: recorded runs reference the main
// line's state at record time.
func (r *Repository) Head(ctx context.Context) (string, error) {
	return r.RunTrimmed(ctx, "rev-parse", "HEAD")
}

// UserName returns the configured git identity (user.name). Returns
// "unknown" if no identity is configured — records must never fail
// just because the host has no git identity.
func (r *Repository) UserName(ctx context.Context) string {
	name, err := r.RunTrimmed(ctx, "config", "user.name")
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

// HasRemote reports whether the named remote is configured.
func (r *Repository) HasRemote(ctx context.Context, name string) bool {
	_, err := r.RunTrimmed(ctx, "remote", "get-url", name)
	return err == nil
}

// RefExists reports whether the given fully-qualified ref (e.g.
// "refs/heads/chronik/ledger") exists.
func (r *Repository) RefExists(ctx context.Context, ref string) bool {
	_, err := r.Run(ctx, "show-ref", "--verify", "--quiet", ref)
	return err == nil
}
