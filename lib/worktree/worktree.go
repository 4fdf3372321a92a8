// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chronik-dev/chronik/lib/git"
)

// Defaults applied by NewManager when the corresponding option is zero.
const (
	// DefaultBranch is the dedicated ledger branch name.
	DefaultBranch = "chronik/ledger"

	// DefaultRemote is the remote used for push/pull synchronization.
	DefaultRemote = "origin"

	// DefaultDirName is the secondary checkout directory, relative to
	// the repository root.
	DefaultDirName = ".chronik"

	// DefaultLocalTimeout bounds local git subprocess calls.
	DefaultLocalTimeout = 30 * time.Second

	// DefaultNetworkTimeout bounds fetch/push/pull against a remote.
	DefaultNetworkTimeout = 120 * time.Second
)

// Options configures a Manager. Zero-value fields get defaults.
type Options struct {
	Branch         string
	Remote         string
	Dir            string
	LocalTimeout   time.Duration
	NetworkTimeout time.Duration
	Logger         *slog.Logger
}

// Manager owns the ledger branch and its secondary checkout.
// All methods are safe for concurrent use: mutating operations take an
// advisory flock for their full duration.
type Manager struct {
	repo           *git.Repository
	branch         string
	remote         string
	dir            string
	localTimeout   time.Duration
	networkTimeout time.Duration
	logger         *slog.Logger
}

// TagEntry pairs a tag name with its message body. ListTags returns
// only the message's first line, which is where the ledger stores its
// compact single-line JSON payloads.
type TagEntry struct {
	Name    string
	Message string
}

// NewManager returns a Manager for the repository at the primary
// working tree. Call Ensure before the first read or write.
func NewManager(repo *git.Repository, opts Options) *Manager {
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}
	if opts.Remote == "" {
		opts.Remote = DefaultRemote
	}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(repo.Dir(), DefaultDirName)
	}
	if opts.LocalTimeout == 0 {
		opts.LocalTimeout = DefaultLocalTimeout
	}
	if opts.NetworkTimeout == 0 {
		opts.NetworkTimeout = DefaultNetworkTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		repo:           repo,
		branch:         opts.Branch,
		remote:         opts.Remote,
		dir:            opts.Dir,
		localTimeout:   opts.LocalTimeout,
		networkTimeout: opts.NetworkTimeout,
		logger:         opts.Logger,
	}
}

// Dir returns the secondary checkout directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Branch returns the ledger branch name.
func (m *Manager) Branch() string {
	return m.branch
}

// checkout returns a Repository targeting the secondary checkout.
func (m *Manager) checkout() *git.Repository {
	return git.NewRepository(m.dir)
}

// Ensure brings the ledger branch, its secondary checkout, and the
// exclusion entries into their final state. It is idempotent and safe
// to call before every operation: each step checks before it acts.
//
// The fetch step is best-effort — no remote, or a remote without the
// ledger branch, is normal on first use and offline.
func (m *Manager) Ensure(ctx context.Context) error {
	return m.withWriteLock(ctx, func() error {
		m.fetchBestEffort(ctx)

		if err := m.ensureBranch(ctx); err != nil {
			return err
		}
		if err := m.ensureCheckout(ctx); err != nil {
			return err
		}
		if err := m.ensureExcluded(ctx); err != nil {
			return err
		}
		m.ensureEditorExcluded()
		return nil
	})
}

// fetchBestEffort fetches the ledger branch from the remote, swallowing
// all failures. First use has no remote branch; offline use has no
// reachable remote. Neither may block setup.
func (m *Manager) fetchBestEffort(ctx context.Context) {
	if !m.repo.HasRemote(ctx, m.remote) {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, m.networkTimeout)
	defer cancel()
	if _, err := m.repo.Run(fetchCtx, "fetch", m.remote, m.branch); err != nil {
		m.logger.Debug("ledger fetch skipped", "remote", m.remote, "branch", m.branch, "error", err)
	}
}

// ensureBranch creates the local ledger branch if it does not exist.
// When the remote already carries the branch (fetched above), the
// local branch starts from it; otherwise an orphan root commit is
// created from an empty tree so the ledger shares no history with the
// main line.
func (m *Manager) ensureBranch(ctx context.Context) error {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()

	if m.repo.RefExists(localCtx, "refs/heads/"+m.branch) {
		return nil
	}

	remoteRef := "refs/remotes/" + m.remote + "/" + m.branch
	if m.repo.RefExists(localCtx, remoteRef) {
		if _, err := m.repo.Run(localCtx, "branch", m.branch, m.remote+"/"+m.branch); err != nil {
			return fmt.Errorf("creating ledger branch from %s: %w", remoteRef, err)
		}
		m.logger.Info("ledger branch created from remote", "branch", m.branch)
		return nil
	}

	// Orphan root: empty tree → parentless commit → branch ref.
	mktree := m.repo.Command(localCtx, "mktree")
	mktree.Stdin = strings.NewReader("")
	treeOut, err := mktree.Output()
	if err != nil {
		return fmt.Errorf("building empty tree for ledger branch: %w", err)
	}
	tree := strings.TrimSpace(string(treeOut))

	commit, err := m.repo.RunTrimmed(localCtx, "commit-tree", tree, "-m", "chronik: initialize ledger")
	if err != nil {
		return fmt.Errorf("creating ledger root commit: %w", err)
	}
	if _, err := m.repo.Run(localCtx, "update-ref", "refs/heads/"+m.branch, commit); err != nil {
		return fmt.Errorf("pointing %s at root commit: %w", m.branch, err)
	}
	m.logger.Info("ledger branch initialized", "branch", m.branch, "commit", commit)
	return nil
}

// ensureCheckout attaches the secondary worktree if it is missing, and
// repairs a checkout pointing at the wrong branch.
func (m *Manager) ensureCheckout(ctx context.Context) error {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()

	gitFile := filepath.Join(m.dir, ".git")
	if _, err := os.Stat(gitFile); err == nil {
		head, err := m.checkout().RunTrimmed(localCtx, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return fmt.Errorf("inspecting ledger checkout %s: %w", m.dir, err)
		}
		if head == m.branch {
			return nil
		}
		if _, err := m.checkout().Run(localCtx, "checkout", m.branch); err != nil {
			return fmt.Errorf("switching ledger checkout to %s: %w", m.branch, err)
		}
		return nil
	}

	if info, err := os.Stat(m.dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists but is not a directory", m.dir)
		}
		return fmt.Errorf("%s exists but is not a ledger worktree (remove it and rerun setup)", m.dir)
	}

	// A previous checkout at this path may still be registered.
	if _, err := m.repo.Run(localCtx, "worktree", "prune"); err != nil {
		m.logger.Debug("worktree prune failed", "error", err)
	}
	if _, err := m.repo.Run(localCtx, "worktree", "add", m.dir, m.branch); err != nil {
		return fmt.Errorf("attaching ledger worktree at %s: %w", m.dir, err)
	}
	m.logger.Info("ledger worktree attached", "dir", m.dir, "branch", m.branch)
	return nil
}

// ensureExcluded appends the checkout path to .git/info/exclude so the
// ledger never appears as an untracked change on the primary branch.
// info/exclude is used instead of .gitignore because it is local-only:
// enabling the ledger must not dirty the project's tracked files.
func (m *Manager) ensureExcluded(ctx context.Context) error {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()

	gitDir, err := m.repo.GitDir(localCtx)
	if err != nil {
		return fmt.Errorf("locating git directory: %w", err)
	}

	rel, err := filepath.Rel(m.repo.Dir(), m.dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Checkout outside the working tree — nothing to exclude.
		return nil
	}
	entry := "/" + filepath.ToSlash(rel) + "/"

	excludePath := filepath.Join(gitDir, "info", "exclude")
	existing, err := os.ReadFile(excludePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", excludePath, err)
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(excludePath), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(excludePath), err)
	}
	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"
	if err := os.WriteFile(excludePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("updating %s: %w", excludePath, err)
	}
	return nil
}

// WriteFile writes data to the given checkout-relative path, creating
// parent directories as needed. The write is atomic: a temp file in
// the target directory followed by rename, so a crashed writer never
// leaves a half-written record.
func (m *Manager) WriteFile(rel string, data []byte) error {
	if err := validateRelPath(rel); err != nil {
		return err
	}
	path := filepath.Join(m.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chronik-write-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", rel, err)
	}
	return nil
}

// ReadFile reads the file at the given checkout-relative path.
// A missing file surfaces as an fs.ErrNotExist-wrapping error.
func (m *Manager) ReadFile(rel string) ([]byte, error) {
	if err := validateRelPath(rel); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(m.dir, rel))
}

// Remove deletes the file or directory at the given checkout-relative
// path. Missing paths are not an error. The deletion is staged by the
// next Commit naming the path.
func (m *Manager) Remove(rel string) error {
	if err := validateRelPath(rel); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(m.dir, rel))
}

// ListDir returns the entry names under the given checkout-relative
// directory, sorted. A missing directory yields an empty list.
func (m *Manager) ListDir(rel string) ([]string, error) {
	if err := validateRelPath(rel); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(m.dir, rel))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// Commit stages the named checkout-relative paths (additions and
// deletions) and commits them on the ledger branch. A commit with
// nothing to record is treated as success: idempotent re-recording of
// identical content needs no special-casing by callers.
func (m *Manager) Commit(ctx context.Context, message string, paths ...string) error {
	for _, rel := range paths {
		if err := validateRelPath(rel); err != nil {
			return err
		}
	}
	return m.withWriteLock(ctx, func() error {
		localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
		defer cancel()

		wt := m.checkout()
		addArgs := append([]string{"add", "-A", "--"}, paths...)
		if _, err := wt.Run(localCtx, addArgs...); err != nil {
			return fmt.Errorf("staging ledger paths: %w", err)
		}
		if _, err := wt.Run(localCtx, "commit", "-m", message); err != nil {
			// "nothing to commit" exits non-zero. Distinguish it from
			// real failures by checking whether the tree is clean.
			status, statusErr := wt.RunTrimmed(localCtx, "status", "--porcelain")
			if statusErr == nil && status == "" {
				m.logger.Debug("ledger commit skipped, nothing changed", "message", message)
				return nil
			}
			return fmt.Errorf("committing ledger paths: %w", err)
		}
		return nil
	})
}

// Tag creates (or force-updates) an annotated tag pointing at target
// with the given message. Tags are repository-global, so re-recording
// the same id overwrites its index entry rather than failing.
func (m *Manager) Tag(ctx context.Context, name, target, message string) error {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()
	if _, err := m.repo.Run(localCtx, "tag", "-a", "-f", name, "-m", message, target); err != nil {
		return fmt.Errorf("creating tag %s: %w", name, err)
	}
	return nil
}

// DeleteTag removes a tag. A missing tag is not an error.
func (m *Manager) DeleteTag(ctx context.Context, name string) error {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()
	if !m.repo.RefExists(localCtx, "refs/tags/"+name) {
		return nil
	}
	if _, err := m.repo.Run(localCtx, "tag", "-d", name); err != nil {
		return fmt.Errorf("deleting tag %s: %w", name, err)
	}
	return nil
}

// ListTags returns up to n tags matching the prefix, newest first by
// tag creation time, each with the first line of its message. The
// single-line constraint is deliberate: the ledger stores compact JSON
// there so listing never has to read the worktree tree.
func (m *Manager) ListTags(ctx context.Context, prefix string, n int) ([]TagEntry, error) {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()

	args := []string{
		"for-each-ref",
		"--sort=-creatordate",
		"--format=%(refname:short)%09%(contents:subject)",
		"refs/tags/" + prefix + "*",
	}
	if n > 0 {
		args = append(args, fmt.Sprintf("--count=%d", n))
	}
	output, err := m.repo.Run(localCtx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s tags: %w", prefix, err)
	}

	var entries []TagEntry
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		name, message, _ := strings.Cut(line, "\t")
		entries = append(entries, TagEntry{Name: name, Message: message})
	}
	return entries, nil
}

// TagMessage returns the full message body of an annotated tag. The
// second return value is false if the tag does not exist.
func (m *Manager) TagMessage(ctx context.Context, name string) (string, bool) {
	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	defer cancel()

	if !m.repo.RefExists(localCtx, "refs/tags/"+name) {
		return "", false
	}
	message, err := m.repo.Run(localCtx, "tag", "-l", "--format=%(contents)", name)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(message), true
}

// Push publishes the ledger branch and tags. The branch is rebased on
// the remote first so concurrent remote writers are reconciled before
// publishing. "No remote configured" and "nothing to push yet" are
// success — first use and offline operation must not error.
func (m *Manager) Push(ctx context.Context) error {
	if !m.repo.HasRemote(ctx, m.remote) {
		m.logger.Debug("ledger push skipped, no remote", "remote", m.remote)
		return nil
	}
	return m.withWriteLock(ctx, func() error {
		netCtx, cancel := context.WithTimeout(ctx, m.networkTimeout)
		defer cancel()

		wt := m.checkout()
		if _, err := wt.Run(netCtx, "pull", "--rebase", m.remote, m.branch); err != nil {
			if !isMissingRemoteBranch(err) {
				return fmt.Errorf("rebasing ledger branch on %s: %w", m.remote, err)
			}
		}
		if _, err := wt.Run(netCtx, "push", m.remote, m.branch); err != nil {
			return fmt.Errorf("pushing ledger branch: %w", err)
		}
		if _, err := m.repo.Run(netCtx, "push", m.remote, "--tags"); err != nil {
			return fmt.Errorf("pushing ledger tags: %w", err)
		}
		return nil
	})
}

// Pull rebases the local ledger branch onto the remote. The same
// normalizations as Push apply: no remote, or a remote that does not
// carry the branch yet, is success.
func (m *Manager) Pull(ctx context.Context) error {
	if !m.repo.HasRemote(ctx, m.remote) {
		m.logger.Debug("ledger pull skipped, no remote", "remote", m.remote)
		return nil
	}
	return m.withWriteLock(ctx, func() error {
		netCtx, cancel := context.WithTimeout(ctx, m.networkTimeout)
		defer cancel()

		if _, err := m.checkout().Run(netCtx, "pull", "--rebase", m.remote, m.branch); err != nil {
			if isMissingRemoteBranch(err) {
				m.logger.Debug("ledger pull skipped, branch not on remote", "branch", m.branch)
				return nil
			}
			return fmt.Errorf("pulling ledger branch: %w", err)
		}
		return nil
	})
}

// isMissingRemoteBranch reports whether a pull failed only because the
// remote does not carry the ledger branch yet.
func isMissingRemoteBranch(err error) bool {
	message := err.Error()
	return strings.Contains(message, "couldn't find remote ref") ||
		strings.Contains(message, "no such ref was fetched")
}

// validateRelPath rejects paths that would escape the checkout.
func validateRelPath(rel string) error {
	if rel == "" {
		return fmt.Errorf("empty ledger path")
	}
	if filepath.IsAbs(rel) {
		return fmt.Errorf("ledger path %q must be relative", rel)
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if segment == ".." {
			return fmt.Errorf("ledger path %q must not contain ..", rel)
		}
	}
	return nil
}
