package workspace

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5"
)

// Fetcher materialises and refreshes source trees.
type Fetcher interface {
	// Clone fetches url into dir, including submodules, and returns the head revision.
	Clone(ctx context.Context, url, dir string) (string, error)
	// Pull discards local changes in dir and fast-forwards it to its origin.
	Pull(ctx context.Context, dir string) (string, error)
}

// GitFetcher fetches git repositories in-process.
type GitFetcher struct{}

var _ Fetcher = GitFetcher{}

func (GitFetcher) Clone(ctx context.Context, url, dir string) (string, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:               url,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
	if err != nil {
		return "", err
	}
	return headRevision(repo)
}

func (GitFetcher) Pull(ctx context.Context, dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	// overrides from the previous deployment are dropped before pulling
	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return "", err
	}
	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:        git.DefaultRemoteName,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", err
	}
	return headRevision(repo)
}

func headRevision(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}
