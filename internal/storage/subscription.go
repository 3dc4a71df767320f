package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SubscriptionStore owns the subscription collection. Every method runs its
// read-modify-write inside one transaction, committed before it returns.
type SubscriptionStore struct {
	db  *Database
	mu  sync.Mutex
	now func() time.Time
}

// Option configures a SubscriptionStore.
type Option func(*SubscriptionStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SubscriptionStore) {
		s.now = now
	}
}

// NewSubscriptionStore creates a new subscription store.
func NewSubscriptionStore(db *Database, opts ...Option) *SubscriptionStore {
	s := &SubscriptionStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open initializes the database at path and returns a store on top of it.
func Open(path string, opts ...Option) (*SubscriptionStore, error) {
	db, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewSubscriptionStore(db, opts...), nil
}

// Close closes the underlying database.
func (s *SubscriptionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SubscriptionStore) timestamp() time.Time {
	return s.now().UTC()
}

// withTx runs fn in a transaction. Domain errors pass through unchanged,
// everything else is reported as a *StorageError.
func (s *SubscriptionStore) withTx(op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return wrapErr(op, fmt.Errorf("begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		if errors.Is(err, ErrAlreadySubscribed) {
			return err
		}
		return wrapErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

const selectSubscription = `SELECT id, user_id, username, repo, last_commit_sha, last_check_time, is_active, created_at FROM subscriptions`

// Subscribe activates a subscription for the triple. An inactive subscription
// is reactivated with its LastCommitSHA preserved; an active one yields
// ErrAlreadySubscribed.
func (s *SubscriptionStore) Subscribe(userID int64, username, repo string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result Subscription
	err := s.withTx("subscribe", func(tx *sqlx.Tx) error {
		now := s.timestamp()

		var existing Subscription
		query := selectSubscription + ` WHERE user_id = ? AND username = ? AND repo = ?`
		err := tx.Get(&existing, query, userID, username, repo)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result = Subscription{
				ID:            uuid.NewString(),
				UserID:        userID,
				Username:      username,
				Repo:          repo,
				LastCheckTime: now,
				IsActive:      true,
				CreatedAt:     now,
			}
			insert := `
				INSERT INTO subscriptions (id, user_id, username, repo, last_commit_sha, last_check_time, is_active, created_at)
				VALUES (:id, :user_id, :username, :repo, :last_commit_sha, :last_check_time, :is_active, :created_at)
			`
			if _, err := tx.NamedExec(insert, &result); err != nil {
				return fmt.Errorf("insert subscription: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("lookup subscription: %w", err)
		case existing.IsActive:
			return ErrAlreadySubscribed
		}

		existing.IsActive = true
		existing.LastCheckTime = now
		update := `UPDATE subscriptions SET is_active = 1, last_check_time = ? WHERE id = ?`
		if _, err := tx.Exec(update, now, existing.ID); err != nil {
			return fmt.Errorf("reactivate subscription: %w", err)
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.normalize()
	return &result, nil
}

// Unsubscribe deactivates the matching active subscription and reports whether one existed.
func (s *SubscriptionStore) Unsubscribe(userID int64, username, repo string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found bool
	err := s.withTx("unsubscribe", func(tx *sqlx.Tx) error {
		query := `UPDATE subscriptions SET is_active = 0 WHERE user_id = ? AND username = ? AND repo = ? AND is_active = 1`
		res, err := tx.Exec(query, userID, username, repo)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		found = n > 0
		return nil
	})
	return found, err
}

// ListForUser returns the user's active subscriptions.
func (s *SubscriptionStore) ListForUser(userID int64) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []Subscription
	query := selectSubscription + ` WHERE user_id = ? AND is_active = 1 ORDER BY rowid`
	if err := s.db.Select(&subs, query, userID); err != nil {
		return nil, wrapErr("list for user", err)
	}
	for i := range subs {
		subs[i].normalize()
	}
	return subs, nil
}

// ListActive returns every active subscription.
func (s *SubscriptionStore) ListActive() ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []Subscription
	query := selectSubscription + ` WHERE is_active = 1 ORDER BY rowid`
	if err := s.db.Select(&subs, query); err != nil {
		return nil, wrapErr("list active", err)
	}
	for i := range subs {
		subs[i].normalize()
	}
	return subs, nil
}

// Get returns a subscription by id, active or not.
func (s *SubscriptionStore) Get(id string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sub Subscription
	err := s.db.Get(&sub, selectSubscription+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, wrapErr("get", err)
	}
	sub.normalize()
	return &sub, nil
}

// RecordCheckResult stamps LastCheckTime and, when newLastCommitSHA is not
// empty, moves the high-water mark. An empty value keeps the previous mark.
func (s *SubscriptionStore) RecordCheckResult(id, newLastCommitSHA string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx("record check result", func(tx *sqlx.Tx) error {
		now := s.timestamp()

		var (
			res sql.Result
			err error
		)
		if newLastCommitSHA == "" {
			res, err = tx.Exec(`UPDATE subscriptions SET last_check_time = ? WHERE id = ?`, now, id)
		} else {
			res, err = tx.Exec(`UPDATE subscriptions SET last_check_time = ?, last_commit_sha = ? WHERE id = ?`, now, newLastCommitSHA, id)
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
		}
		return nil
	})
}

// TouchGlobalCheck records the completion time of a full check cycle.
func (s *SubscriptionStore) TouchGlobalCheck() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx("touch global check", func(tx *sqlx.Tx) error {
		query := `INSERT INTO monitor_state (id, last_global_check) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET last_global_check = excluded.last_global_check`
		_, err := tx.Exec(query, s.timestamp())
		return err
	})
}

// LastGlobalCheck returns the time of the last completed check cycle.
func (s *SubscriptionStore) LastGlobalCheck() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastGlobalCheckLocked()
}

func (s *SubscriptionStore) lastGlobalCheckLocked() (time.Time, error) {
	var t time.Time
	if err := s.db.Get(&t, `SELECT last_global_check FROM monitor_state WHERE id = 1`); err != nil {
		return time.Time{}, wrapErr("last global check", err)
	}
	return t.UTC(), nil
}

// Stats returns subscription counters and the last global check time.
func (s *SubscriptionStore) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0) AS active,
			COUNT(*) AS total,
			COUNT(DISTINCT CASE WHEN is_active = 1 THEN username END) AS accounts
		FROM subscriptions
	`
	if err := s.db.Get(&st, query); err != nil {
		return Stats{}, wrapErr("stats", err)
	}

	last, err := s.lastGlobalCheckLocked()
	if err != nil {
		return Stats{}, err
	}
	st.LastGlobalCheck = last
	return st, nil
}
