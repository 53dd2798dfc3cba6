// Package git is the read-only git collaborator. It answers which branch a
// project checkout is on and where its root is; it never commits, checks out
// or otherwise mutates the repository.
package git

// DefaultBranch is the sentinel branch name used when the project is not a
// git repository (or HEAD is detached).
const DefaultBranch = "default"

// GitExecutor defines the git queries phaseguide needs.
type GitExecutor interface {
	IsGitRepo() bool
	IsDetachedHead() (bool, error)
	GetCurrentBranch() (string, error)
	GetRepoRoot() (string, error)
}

// BranchResolver resolves the branch of a project path.
type BranchResolver interface {
	CurrentBranch(projectPath string) string
}

// BranchResolverFunc adapts a function to BranchResolver.
type BranchResolverFunc func(projectPath string) string

// CurrentBranch implements BranchResolver.
func (f BranchResolverFunc) CurrentBranch(projectPath string) string {
	return f(projectPath)
}

// StaticBranch returns a resolver that always reports branch.
func StaticBranch(branch string) BranchResolver {
	return BranchResolverFunc(func(string) string { return branch })
}

// RootResolver maps a project path to the directory conversations are keyed by.
type RootResolver interface {
	RepoRoot(projectPath string) string
}

// RootResolverFunc adapts a function to RootResolver.
type RootResolverFunc func(projectPath string) string

// RepoRoot implements RootResolver.
func (f RootResolverFunc) RepoRoot(projectPath string) string {
	return f(projectPath)
}

// SameRoot treats every project path as its own root.
var SameRoot RootResolver = RootResolverFunc(func(projectPath string) string { return projectPath })
