// Package github provides the GitHub API client used as the commit source.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/user/commitbot/pkg/logger"
)

const (
	defaultPerPage      = 10
	defaultMaxRepos     = 5
	defaultActiveWithin = 365 * 24 * time.Hour
	defaultTimeout      = 30 * time.Second
)

// Client wraps the GitHub API client.
type Client struct {
	client       *github.Client
	perPage      int
	maxRepos     int
	activeWithin time.Duration
	timeout      time.Duration
	now          func() time.Time
}

// Options tunes the client. Zero values fall back to defaults.
type Options struct {
	PerPage      int
	MaxRepos     int
	ActiveWithin time.Duration
	Timeout      time.Duration
	BaseURL      string // API root, for GitHub Enterprise or tests
}

// NewClient creates a new GitHub API client.
// If token is empty, an unauthenticated client is created (with lower rate limits).
func NewClient(token string, opts Options) (*Client, error) {
	c := &Client{
		perPage:      opts.PerPage,
		maxRepos:     opts.MaxRepos,
		activeWithin: opts.ActiveWithin,
		timeout:      opts.Timeout,
		now:          time.Now,
	}
	if c.perPage <= 0 {
		c.perPage = defaultPerPage
	}
	if c.maxRepos <= 0 {
		c.maxRepos = defaultMaxRepos
	}
	if c.activeWithin <= 0 {
		c.activeWithin = defaultActiveWithin
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}

	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = c.timeout

	c.client = github.NewClient(httpClient)

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		c.client.BaseURL = u
	}

	return c, nil
}

// FetchRecent returns recent commits, newest first. With a repo it lists the
// repository's latest commits; without one it takes the newest commit of each
// of the account's active repositories.
func (c *Client) FetchRecent(ctx context.Context, username, repo string) ([]Commit, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if repo != "" {
		return c.listCommits(ctx, username, repo, c.perPage)
	}
	return c.fetchAccountCommits(ctx, username)
}

func (c *Client) listCommits(ctx context.Context, owner, repo string, perPage int) ([]Commit, error) {
	rcs, _, err := c.client.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	})
	if err != nil {
		return nil, classify(fmt.Sprintf("list commits %s/%s", owner, repo), err)
	}

	commits := make([]Commit, 0, len(rcs))
	for _, rc := range rcs {
		if rc.GetSHA() == "" {
			continue
		}
		commits = append(commits, convertCommit(owner, repo, rc))
	}
	return commits, nil
}

func (c *Client) fetchAccountCommits(ctx context.Context, username string) ([]Commit, error) {
	repos, err := c.ActiveRepos(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		logger.Debug().Str("username", username).Msg("No active repositories")
		return nil, nil
	}

	// A partial list could hide the repository holding the high-water mark,
	// so any failure other than an empty repository fails the whole fetch.
	var commits []Commit
	for _, name := range repos {
		latest, err := c.listCommits(ctx, username, name, 1)
		if err != nil {
			if isEmptyRepository(err) {
				logger.Debug().Str("repo", username+"/"+name).Msg("Repository is empty, skipping")
				continue
			}
			return nil, err
		}
		commits = append(commits, latest...)
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].AuthorDate.After(commits[j].AuthorDate)
	})
	return commits, nil
}

// ActiveRepos returns the names of the account's recently updated, non-fork,
// non-empty repositories.
func (c *Client) ActiveRepos(ctx context.Context, username string) ([]string, error) {
	repos, _, err := c.client.Repositories.ListByUser(ctx, username, &github.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: c.maxRepos},
	})
	if err != nil {
		return nil, classify("list repositories of "+username, err)
	}

	cutoff := c.now().Add(-c.activeWithin)
	var names []string
	for _, r := range repos {
		if r.GetFork() || r.GetSize() == 0 {
			continue
		}
		if r.GetUpdatedAt().Time.Before(cutoff) {
			continue
		}
		names = append(names, r.GetName())
	}
	return names, nil
}

// GetCommit returns a commit with its file statistics.
func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rc, _, err := c.client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return nil, classify(fmt.Sprintf("get commit %s/%s@%s", owner, repo, sha), err)
	}

	commit := convertCommit(owner, repo, rc)
	return &commit, nil
}

// AccountExists checks whether a GitHub user or organization exists.
func (c *Client) AccountExists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, _, err := c.client.Users.Get(ctx, username)
	if err != nil {
		return false, notFoundAsFalse(classify("get user "+username, err))
	}
	return true, nil
}

// RepositoryExists checks if a repository exists and is accessible.
func (c *Client) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return false, notFoundAsFalse(classify(fmt.Sprintf("get repository %s/%s", owner, repo), err))
	}
	return true, nil
}

// GetRateLimit returns the current rate limit status.
func (c *Client) GetRateLimit(ctx context.Context) (*github.RateLimits, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, err
	}
	return limits, nil
}
