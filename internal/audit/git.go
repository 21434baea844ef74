// Package audit records each cycle's snapshot changes as a git commit in the
// snapshot directory, so the history of every stream can be inspected with
// ordinary git tooling.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// GitCommitter commits the contents of a directory after every cycle. It
// initialises a repository in the directory on first use.
type GitCommitter struct {
	dir     string
	timeout time.Duration
	name    string
	email   string
}

// NewGitCommitter returns a committer for dir.
func NewGitCommitter(dir string) *GitCommitter {
	return &GitCommitter{
		dir:     dir,
		timeout: defaultTimeout,
		name:    "bank-forwarder",
		email:   "bank-forwarder@localhost",
	}
}

// Dir returns the repository directory.
func (g *GitCommitter) Dir() string {
	return g.dir
}

// Commit stages everything in the directory and commits it with a message
// naming the streams stored this cycle. It is a no-op when nothing changed.
// The whole operation is bounded by the committer's timeout.
func (g *GitCommitter) Commit(ctx context.Context, streams []string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.ensureRepository(ctx); err != nil {
		return err
	}
	if _, err := g.run(ctx, "add", "-A", "--", "."); err != nil {
		return err
	}
	status, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return nil
	}

	_, err = g.run(ctx,
		"-c", "user.name="+g.name,
		"-c", "user.email="+g.email,
		"commit", "-q", "-m", commitMessage(streams))
	return err
}

func commitMessage(streams []string) string {
	if len(streams) == 0 {
		return "Update snapshots"
	}
	return "Update snapshots: " + strings.Join(streams, ", ")
}

func (g *GitCommitter) ensureRepository(ctx context.Context) error {
	_, err := os.Stat(filepath.Join(g.dir, ".git"))
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", g.dir, err)
	}
	_, err = g.run(ctx, "init", "-q")
	return err
}

// run executes git against the repository directory and returns stdout.
// Stderr is included in the error on failure.
func (g *GitCommitter) run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", g.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), g.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
