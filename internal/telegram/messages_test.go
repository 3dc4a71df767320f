package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/user/commitbot/internal/analysis"
	"github.com/user/commitbot/internal/github"
	"github.com/user/commitbot/internal/storage"
)

func TestBuildCommitMessage(t *testing.T) {
	m := NewMessageBuilder()
	sub := storage.Subscription{Username: "octocat"}
	c := github.Commit{
		SHA:        "abcdef1234567890",
		Message:    "Fix <script> escaping\n\nLonger body",
		AuthorName: "Mona & Co",
		AuthorDate: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		URL:        "https://github.com/octocat/hello/commit/abcdef1234567890",
		Owner:      "octocat",
		Repo:       "hello",
		Stats: &github.CommitStats{
			Additions: 3,
			Deletions: 1,
			Files:     []github.FileChange{{Filename: "main.go", Additions: 3, Deletions: 1}},
		},
	}

	msg := m.BuildCommitMessage(sub, c, &analysis.Result{
		Summary:    "Escapes HTML.",
		Impact:     analysis.ImpactLow,
		Categories: []string{"fix"},
	})

	assert.Contains(t, msg, "New commit from octocat</b> in <code>hello</code>")
	assert.Contains(t, msg, "Fix &lt;script&gt; escaping")
	assert.NotContains(t, msg, "Longer body")
	assert.Contains(t, msg, "Mona &amp; Co")
	assert.Contains(t, msg, "2024-03-01 12:30 UTC")
	assert.Contains(t, msg, "1 file, +3/-1")
	assert.Contains(t, msg, "<code>main.go</code>")
	assert.Contains(t, msg, "(low impact)")
	assert.Contains(t, msg, "<code>abcdef1</code>")
}

func TestBuildCommitMessageMinimal(t *testing.T) {
	msg := NewMessageBuilder().BuildCommitMessage(
		storage.Subscription{Username: "octocat", Repo: "hello"},
		github.Commit{SHA: "abc", Message: "init"},
		nil,
	)

	assert.Contains(t, msg, "unknown author")
	assert.NotContains(t, msg, "Analysis")
	assert.NotContains(t, msg, "Changes:")
	assert.NotContains(t, msg, "Open on GitHub")
}

func TestBuildCommitMessageManyFiles(t *testing.T) {
	files := make([]github.FileChange, 8)
	for i := range files {
		files[i] = github.FileChange{Filename: "f.go"}
	}
	msg := NewMessageBuilder().BuildCommitMessage(
		storage.Subscription{Username: "octocat"},
		github.Commit{SHA: "abc", Message: "bulk", Stats: &github.CommitStats{Files: files}},
		nil,
	)

	assert.Equal(t, maxShownFiles, strings.Count(msg, "<code>f.go</code>"))
	assert.Contains(t, msg, "...and 3 more")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "héllo w...", truncateString("héllo world!", 10))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", formatDuration(-time.Minute))
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "3h 10m", formatDuration(3*time.Hour+10*time.Minute))
	assert.Equal(t, "1d 2h 0m", formatDuration(26*time.Hour))
}
