package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySubscribed is returned when the (user, username, repo) triple is already active.
	ErrAlreadySubscribed = errors.New("subscription already active")

	// ErrSubscriptionNotFound is returned when an operation references an unknown subscription id.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// StorageError reports a failure of the durable medium.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
