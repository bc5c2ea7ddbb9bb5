package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

const (
	recentCommitCount   = 5
	uncommittedFileList = 10
	unknownBranch       = "unknown"
	shortHashLen        = 7
)

// ReadGitState inspects the repository containing projectRoot. Outside a
// repository it returns an "unknown" branch and no commits or changes;
// a repository without commits still reports its branch and worktree.
func ReadGitState(projectRoot string) models.GitState {
	state := models.GitState{Branch: unknownBranch, RecentCommits: []string{}, UncommittedFiles: []string{}}

	repo, err := git.PlainOpenWithOptions(projectRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return state
	}
	state.Branch = headBranch(repo)

	if commits, err := recentCommits(repo, recentCommitCount); err == nil {
		state.RecentCommits = commits
	}
	if head, err := repo.Head(); err == nil {
		if c, err := repo.CommitObject(head.Hash()); err == nil {
			state.LastCommit = commitLine(c)
		}
	}

	if files, err := uncommittedFiles(repo); err == nil {
		state.UncommittedCount = len(files)
		if len(files) > uncommittedFileList {
			files = append(files[:uncommittedFileList], fmt.Sprintf("... and %d more", len(files)-uncommittedFileList))
		}
		state.UncommittedFiles = files
	}
	return state
}

// headBranch names the branch HEAD points at, even before the first commit.
// A detached HEAD is reported as "HEAD".
func headBranch(repo *git.Repository) string {
	ref, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return unknownBranch
	}
	if ref.Type() == plumbing.SymbolicReference && ref.Target().IsBranch() {
		return ref.Target().Short()
	}
	return "HEAD"
}

func recentCommits(repo *git.Repository, limit int) ([]string, error) {
	iter, err := repo.Log(&git.LogOptions{Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	lines := []string{}
	err = iter.ForEach(func(c *object.Commit) error {
		if c.NumParents() > 1 {
			return nil
		}
		lines = append(lines, commitLine(c))
		if len(lines) == limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	return lines, nil
}

func commitLine(c *object.Commit) string {
	hash := c.Hash.String()
	if len(hash) > shortHashLen {
		hash = hash[:shortHashLen]
	}
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return hash + " " + strings.TrimSpace(subject)
}

// uncommittedFiles lists changed and untracked paths in porcelain style,
// sorted by path.
func uncommittedFiles(repo *git.Repository) ([]string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(status))
	for path, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	files := make([]string, len(paths))
	for i, path := range paths {
		fs := status[path]
		code := strings.TrimSpace(string([]byte{byte(fs.Staging), byte(fs.Worktree)}))
		files[i] = code + " " + path
	}
	return files, nil
}
