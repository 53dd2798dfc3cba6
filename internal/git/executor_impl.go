package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zjrosen/phaseguide/internal/log"
)

var (
	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrDetachedHead indicates HEAD does not point at a branch.
	ErrDetachedHead = errors.New("HEAD is detached")
)

// Compile-time check that RealExecutor implements GitExecutor.
var _ GitExecutor = (*RealExecutor)(nil)

// RealExecutor implements GitExecutor by executing actual git commands.
type RealExecutor struct {
	workDir string
}

// NewRealExecutor creates a new RealExecutor.
func NewRealExecutor(workDir string) *RealExecutor {
	return &RealExecutor{workDir: workDir}
}

// runGit executes a git command and returns an error if it fails.
func (e *RealExecutor) runGit(args ...string) error {
	_, err := e.runGitOutput(args...)
	return err
}

// runGitOutput executes a git command and returns stdout and any error.
func (e *RealExecutor) runGitOutput(args ...string) (string, error) {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.Command("git", args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", parseGitError(stderrStr, err)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// parseGitError converts git stderr messages to specific error types.
func parseGitError(stderr string, originalErr error) error {
	stderrLower := strings.ToLower(stderr)

	if strings.Contains(stderrLower, "not a git repository") {
		return fmt.Errorf("%w: %s", ErrNotGitRepo, stderr)
	}
	if strings.Contains(stderrLower, "ref head is not a symbolic ref") {
		return fmt.Errorf("%w: %s", ErrDetachedHead, stderr)
	}

	return fmt.Errorf("git error: %s: %w", stderr, originalErr)
}

// IsGitRepo checks if the working directory is inside a git repository.
func (e *RealExecutor) IsGitRepo() bool {
	err := e.runGit("rev-parse", "--git-dir")
	return err == nil
}

// IsDetachedHead checks if HEAD is detached (not on a branch).
func (e *RealExecutor) IsDetachedHead() (bool, error) {
	// symbolic-ref fails if HEAD is detached
	err := e.runGit("symbolic-ref", "HEAD")
	if err != nil {
		if _, revErr := e.runGitOutput("rev-parse", "HEAD"); revErr == nil {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// GetCurrentBranch returns the name of the current branch.
func (e *RealExecutor) GetCurrentBranch() (string, error) {
	// First try git branch --show-current (git 2.22+)
	output, err := e.runGitOutput("branch", "--show-current")
	if err == nil && output != "" {
		return output, nil
	}

	// Fallback: parse symbolic-ref
	output, err = e.runGitOutput("symbolic-ref", "--short", "HEAD")
	if err != nil {
		if errors.Is(err, ErrDetachedHead) {
			return "", err
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return output, nil
}

// GetRepoRoot returns the root directory of the git repository.
func (e *RealExecutor) GetRepoRoot() (string, error) {
	return e.runGitOutput("rev-parse", "--show-toplevel")
}

// CurrentBranch returns the branch checked out at projectPath, or
// DefaultBranch when the path is not a repository or HEAD is detached.
func CurrentBranch(projectPath string) string {
	return branchOf(NewRealExecutor(projectPath))
}

func branchOf(executor GitExecutor) string {
	if !executor.IsGitRepo() {
		log.Debug(log.CatGit, "Not a git repository, using default branch")
		return DefaultBranch
	}
	if detached, err := executor.IsDetachedHead(); err == nil && detached {
		log.Debug(log.CatGit, "HEAD is detached, using default branch")
		return DefaultBranch
	}
	branch, err := executor.GetCurrentBranch()
	if err != nil || branch == "" {
		log.Debug(log.CatGit, "Could not determine branch, using default", "error", err)
		return DefaultBranch
	}
	return branch
}

// RepoRoot returns the top level of the checkout containing projectPath, so a
// subdirectory maps to the same conversation as the repository root. Paths
// outside a repository are returned unchanged.
func RepoRoot(projectPath string) string {
	return rootOf(NewRealExecutor(projectPath), projectPath)
}

func rootOf(executor GitExecutor, projectPath string) string {
	if !executor.IsGitRepo() {
		return projectPath
	}
	root, err := executor.GetRepoRoot()
	if err != nil || root == "" {
		log.Debug(log.CatGit, "Could not determine repository root", "path", projectPath, "error", err)
		return projectPath
	}
	root = filepath.Clean(filepath.FromSlash(root))

	// git reports the root with symlinks resolved. Walk up the caller's own
	// spelling instead so /tmp/repo and /tmp/repo/sub agree when /tmp is a link.
	resolved, err := filepath.EvalSymlinks(projectPath)
	if err != nil {
		return root
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return root
	}
	out := filepath.Clean(projectPath)
	if rel == "." {
		return out
	}
	for range strings.Split(rel, string(filepath.Separator)) {
		out = filepath.Dir(out)
	}
	return out
}

// RealBranchResolver resolves branches by running git.
var RealBranchResolver BranchResolver = BranchResolverFunc(CurrentBranch)

// RealRootResolver resolves repository roots by running git.
var RealRootResolver RootResolver = RootResolverFunc(RepoRoot)
