// Package monitor detects new commits for subscriptions and drives the
// recurring check cycle.
package monitor

import "github.com/user/commitbot/internal/github"

// FindNewCommits returns the commits newer than lastCommitSHA, newest first.
// commits must be ordered newest first.
//
//   - no lastCommitSHA (first check): only the newest commit, so a new
//     subscription is not flooded with history;
//   - lastCommitSHA found at index i: commits[:i];
//   - lastCommitSHA not in the list: the whole list. A force-push, a branch
//     switch or more than a window's worth of new commits all look the same
//     here, so everything visible is resent.
//
// The input slice is never modified; duplicate SHAs match on first occurrence.
func FindNewCommits(lastCommitSHA string, commits []github.Commit) []github.Commit {
	if len(commits) == 0 {
		return nil
	}

	if lastCommitSHA == "" {
		return clone(commits[:1])
	}

	for i, c := range commits {
		if c.SHA == lastCommitSHA {
			return clone(commits[:i])
		}
	}

	return clone(commits)
}

// HighWaterMark returns the SHA to persist after dispatching newCommits, or ""
// when there is nothing new.
func HighWaterMark(newCommits []github.Commit) string {
	if len(newCommits) == 0 {
		return ""
	}
	return newCommits[0].SHA
}

func clone(commits []github.Commit) []github.Commit {
	if len(commits) == 0 {
		return nil
	}
	out := make([]github.Commit, len(commits))
	copy(out, commits)
	return out
}
