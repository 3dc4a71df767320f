package github

import (
	"time"

	gh "github.com/google/go-github/v57/github"
)

// Commit is one entry of a recent-commit list.
type Commit struct {
	SHA        string
	Message    string
	AuthorName string
	AuthorDate time.Time
	URL        string
	Owner      string
	Repo       string
	Stats      *CommitStats // nil unless fetched with GetCommit
}

// ShortSHA returns the first seven characters of the SHA.
func (c Commit) ShortSHA() string {
	if len(c.SHA) <= 7 {
		return c.SHA
	}
	return c.SHA[:7]
}

// CommitStats holds file-change statistics of a commit.
type CommitStats struct {
	Additions int
	Deletions int
	Total     int
	Files     []FileChange
}

// FileChange describes how a commit touched one file.
type FileChange struct {
	Filename  string
	Status    string // added, removed, modified, renamed, ...
	Additions int
	Deletions int
	Changes   int
}

func convertCommit(owner, repo string, rc *gh.RepositoryCommit) Commit {
	author := rc.GetCommit().GetAuthor()
	c := Commit{
		SHA:        rc.GetSHA(),
		Message:    rc.GetCommit().GetMessage(),
		AuthorName: author.GetName(),
		AuthorDate: author.GetDate().Time,
		URL:        rc.GetHTMLURL(),
		Owner:      owner,
		Repo:       repo,
	}

	if rc.Stats != nil || len(rc.Files) > 0 {
		stats := &CommitStats{
			Additions: rc.GetStats().GetAdditions(),
			Deletions: rc.GetStats().GetDeletions(),
			Total:     rc.GetStats().GetTotal(),
		}
		for _, f := range rc.Files {
			stats.Files = append(stats.Files, FileChange{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Changes:   f.GetChanges(),
			})
		}
		c.Stats = stats
	}

	return c
}
