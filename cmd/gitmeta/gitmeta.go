// Package gitmeta resolves local git metadata for release records.
package gitmeta

import (
	"fmt"

	git "github.com/go-git/go-git/v5"
)

// Info describes the local checkout at deploy time.
type Info struct {
	SHA    string
	Branch string
	Dirty  bool
}

// Resolve reads HEAD and the worktree status of the repository
// containing path. Callers treat failure as "no metadata", not as a
// pipeline error.
func Resolve(path string) (*Info, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %v", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %v", err)
	}

	info := &Info{
		SHA:    head.Hash().String(),
		Branch: head.Name().Short(),
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %v", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %v", err)
	}
	info.Dirty = !status.IsClean()

	return info, nil
}
