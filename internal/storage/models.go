// Package storage provides the durable subscription store.
package storage

import "time"

// Subscription is one user's interest in one (account, optional repository) pair.
//
// Optional string fields use "" for absent: Repo == "" watches the account's
// active repositories and LastCommitSHA == "" means the subscription has never
// been checked successfully.
type Subscription struct {
	ID            string    `db:"id"`
	UserID        int64     `db:"user_id"`
	Username      string    `db:"username"`
	Repo          string    `db:"repo"`
	LastCommitSHA string    `db:"last_commit_sha"`
	LastCheckTime time.Time `db:"last_check_time"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
}

// HasRepo reports whether the subscription targets a single repository.
func (s Subscription) HasRepo() bool {
	return s.Repo != ""
}

// Target returns "username" or "username/repo".
func (s Subscription) Target() string {
	if s.Repo == "" {
		return s.Username
	}
	return s.Username + "/" + s.Repo
}

// Stats summarizes the store contents.
type Stats struct {
	ActiveSubscriptions int       `db:"active" json:"active_subscriptions"`
	TotalSubscriptions  int       `db:"total" json:"total_subscriptions"`
	WatchedAccounts     int       `db:"accounts" json:"watched_accounts"`
	LastGlobalCheck     time.Time `db:"-" json:"last_global_check"`
}

func (s *Subscription) normalize() {
	s.LastCheckTime = s.LastCheckTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
}
