package telegram

import (
	"errors"
	"regexp"
	"strings"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,37}[a-zA-Z0-9])?$`)
	repoPattern     = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
)

var (
	errMissingUsername = errors.New("missing username")
	errInvalidUsername = errors.New("invalid GitHub username")
	errInvalidRepo     = errors.New("invalid repository name")
)

// validUsername applies GitHub's login rules: alphanumerics and single
// hyphens, no leading or trailing hyphen, at most 39 characters.
func validUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// validRepoName applies GitHub's repository name rules.
func validRepoName(s string) bool {
	return repoPattern.MatchString(s) && !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".")
}

// parseTargetArgs parses "<username> [repo]" or "<username>/<repo>".
func parseTargetArgs(args string) (username, repo string, err error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", "", errMissingUsername
	}

	username = fields[0]
	if len(fields) > 1 {
		repo = fields[1]
	} else if owner, name, ok := strings.Cut(username, "/"); ok {
		username, repo = owner, name
	}

	if !validUsername(username) {
		return "", "", errInvalidUsername
	}
	if repo != "" && !validRepoName(repo) {
		return "", "", errInvalidRepo
	}
	return username, repo, nil
}
