package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"
)

// Error kinds returned by the client. Callers match them with errors.Is.
var (
	ErrNotFound     = errors.New("github: not found")
	ErrAccessDenied = errors.New("github: access denied")
	ErrTransient    = errors.New("github: transient error")
)

// classify maps a go-github error onto one of the error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusUnavailableForLegalReasons:
			return fmt.Errorf("%s: %w: %w", op, ErrAccessDenied, err)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// isEmptyRepository reports the 409 GitHub returns when listing commits of an empty repository.
func isEmptyRepository(err error) bool {
	var respErr *gh.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil &&
		respErr.Response.StatusCode == http.StatusConflict
}

// notFoundAsFalse turns ErrNotFound into a nil error for existence checks.
func notFoundAsFalse(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
