// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chronik-dev/chronik/lib/testutil"
)

func TestRepository_Run(t *testing.T) {
	t.Parallel()

	dir := testutil.InitRepo(t)
	repo := NewRepository(dir)

	output, err := repo.Run(context.Background(), "status", "--porcelain")
	if err != nil {
		t.Fatalf("Run(status --porcelain): %v", err)
	}
	if strings.TrimSpace(output) != "" {
		t.Errorf("fresh repository should be clean, got %q", output)
	}
}

func TestRepository_Run_InvalidSubcommand(t *testing.T) {
	t.Parallel()

	dir := testutil.InitRepo(t)
	repo := NewRepository(dir)

	_, err := repo.Run(context.Background(), "not-a-real-command")
	if err == nil {
		t.Fatal("expected error for invalid git subcommand")
	}
	if !strings.Contains(err.Error(), dir) {
		t.Errorf("error = %v, want to contain repository dir %q", err, dir)
	}
}

func TestRepository_Command(t *testing.T) {
	t.Parallel()

	repo := NewRepository("/some/dir")

	cmd := repo.Command(context.Background(), "status", "--porcelain")

	// exec.Cmd.Args includes the program name as Args[0].
	expectedArgs := []string{"git", "-C", "/some/dir", "status", "--porcelain"}
	if len(cmd.Args) != len(expectedArgs) {
		t.Fatalf("cmd.Args = %v, want %v", cmd.Args, expectedArgs)
	}
	for i, want := range expectedArgs {
		if cmd.Args[i] != want {
			t.Errorf("cmd.Args[%d] = %q, want %q", i, cmd.Args[i], want)
		}
	}
}

func TestRepository_Head(t *testing.T) {
	t.Parallel()

	dir := testutil.InitRepo(t)
	repo := NewRepository(dir)

	head, err := repo.Head(context.Background())
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if len(head) != 40 {
		t.Errorf("Head = %q, want a 40-character commit id", head)
	}
}

func TestRepository_UserName(t *testing.T) {
	t.Parallel()

	dir := testutil.InitRepo(t)
	repo := NewRepository(dir)

	// InitRepo configures user.name = "Test".
	if got := repo.UserName(context.Background()); got != "Test" {
		t.Errorf("UserName = %q, want %q", got, "Test")
	}
}

func TestRepository_UserName_Unconfigured(t *testing.T) {
	t.Parallel()

	repo := NewRepository("/tmp/nonexistent-chronik-repo")
	if got := repo.UserName(context.Background()); got != "unknown" {
		t.Errorf("UserName = %q, want %q", got, "unknown")
	}
}

func TestRepository_HasRemote(t *testing.T) {
	t.Parallel()

	dir := testutil.InitRepo(t)
	repo := NewRepository(dir)
	ctx := context.Background()

	if repo.HasRemote(ctx, "origin") {
		t.Error("fresh repository should have no origin remote")
	}

	if _, err := repo.Run(ctx, "remote", "add", "origin", "/tmp/does-not-matter"); err != nil {
		t.Fatalf("remote add: %v", err)
	}
	if !repo.HasRemote(ctx, "origin") {
		t.Error("HasRemote = false after remote add")
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	dir := testutil.InitRepo(t)
	sub := filepath.Join(dir, "nested", "deeper")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	repo, err := Discover(context.Background(), sub)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	// git resolves symlinks (macOS /tmp), so compare resolved paths.
	resolved, err := filepath.EvalSymlinks(repo.Dir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	if resolved != want {
		t.Errorf("Discover dir = %q, want %q", resolved, want)
	}

	if _, err := Discover(context.Background(), t.TempDir()); err == nil {
		t.Error("Discover outside any repository should fail")
	}
}

func TestRepository_RefExists(t *testing.T) {
	t.Parallel()

	dir := testutil.InitRepo(t)
	repo := NewRepository(dir)
	ctx := context.Background()

	branch, err := repo.RunTrimmed(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		t.Fatalf("rev-parse: %v", err)
	}
	if !repo.RefExists(ctx, "refs/heads/"+branch) {
		t.Errorf("RefExists(refs/heads/%s) = false, want true", branch)
	}
	if repo.RefExists(ctx, "refs/heads/no-such-branch") {
		t.Error("RefExists(refs/heads/no-such-branch) = true, want false")
	}
}
