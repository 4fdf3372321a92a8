// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
	"github.com/chronik-dev/chronik/lib/config"
	"github.com/chronik-dev/chronik/lib/git"
	"github.com/chronik-dev/chronik/lib/ledger"
	"github.com/chronik-dev/chronik/lib/trace"
	"github.com/chronik-dev/chronik/lib/worktree"
)

// environment bundles everything a ledger-backed command needs:
// configuration, the discovered repository, the worktree manager, and
// the ledger and trace store built on top of them.
type environment struct {
	cfg    *config.Config
	repo   *git.Repository
	tree   *worktree.Manager
	ledger *ledger.Ledger
	traces *trace.Store
	logger *slog.Logger
}

// openEnvironment loads configuration, discovers the enclosing git
// repository from the working directory, and wires up the ledger
// stack. Commands run from any subdirectory of the project.
//
// Ensure is not called here: read-only commands work against whatever
// checkout state exists, and write paths call Setup themselves.
func openEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	repo, err := git.Discover(ctx, workingDir)
	if err != nil {
		return nil, err
	}

	logger := cli.NewCommandLogger()
	tree := worktree.NewManager(repo, worktree.Options{
		Branch:         cfg.Ledger.Branch,
		Remote:         cfg.Ledger.Remote,
		Dir:            resolveLedgerDir(cfg.Ledger.Dir, repo.Dir()),
		LocalTimeout:   cfg.Git.LocalTimeout(),
		NetworkTimeout: cfg.Git.NetworkTimeout(),
		Logger:         logger,
	})

	return &environment{
		cfg:    cfg,
		repo:   repo,
		tree:   tree,
		ledger: ledger.New(repo, tree, ledger.Options{Logger: logger}),
		traces: trace.NewStore(tree, trace.StoreOptions{Logger: logger}),
		logger: logger,
	}, nil
}

// setup also brings the ledger branch and checkout into working order.
// Every command that writes goes through this.
func (e *environment) setup(ctx context.Context) error {
	return e.ledger.Setup(ctx)
}

// resolveLedgerDir resolves the configured checkout directory against
// the repository root when it is relative.
func resolveLedgerDir(dir, repoRoot string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(repoRoot, dir)
}
