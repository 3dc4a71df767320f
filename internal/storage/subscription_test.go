package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T) (*SubscriptionStore, *fakeClock, string) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "data", "subscriptions.db")
	store, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, clock, path
}

func TestOpenCreatesEmptyState(t *testing.T) {
	store, _, path := newTestStore(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	subs, err := store.ListActive()
	require.NoError(t, err)
	assert.Empty(t, subs)

	last, err := store.LastGlobalCheck()
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestOpenMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.db")
	garbage := strings.Repeat("this is not a sqlite database\n", 200)
	require.NoError(t, os.WriteFile(path, []byte(garbage), 0o600))

	_, err := Open(path)
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "initialize", se.Op)
}

func TestSubscribeCreatesFreshSubscription(t *testing.T) {
	store, clock, _ := newTestStore(t)

	sub, err := store.Subscribe(42, "octocat", "Hello-World")
	require.NoError(t, err)

	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, int64(42), sub.UserID)
	assert.Equal(t, "octocat", sub.Username)
	assert.Equal(t, "Hello-World", sub.Repo)
	assert.Empty(t, sub.LastCommitSHA)
	assert.True(t, sub.IsActive)
	assert.True(t, sub.LastCheckTime.Equal(clock.Now()))
	assert.Equal(t, "octocat/Hello-World", sub.Target())
}

func TestSubscribeActiveTripleFails(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Subscribe(42, "octocat", "")
	require.NoError(t, err)

	_, err = store.Subscribe(42, "octocat", "")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	// Different repo or user is a different triple.
	_, err = store.Subscribe(42, "octocat", "Hello-World")
	assert.NoError(t, err)
	_, err = store.Subscribe(7, "octocat", "")
	assert.NoError(t, err)

	subs, err := store.ListActive()
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}

func TestUnsubscribe(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Subscribe(42, "octocat", "")
	require.NoError(t, err)

	found, err := store.Unsubscribe(42, "octocat", "")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Unsubscribe(42, "octocat", "")
	require.NoError(t, err)
	assert.False(t, found, "already inactive")

	found, err = store.Unsubscribe(42, "nobody", "")
	require.NoError(t, err)
	assert.False(t, found)

	subs, err := store.ListForUser(42)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestReactivationPreservesHighWaterMark(t *testing.T) {
	store, clock, _ := newTestStore(t)

	sub, err := store.Subscribe(42, "octocat", "Hello-World")
	require.NoError(t, err)
	require.NoError(t, store.RecordCheckResult(sub.ID, "c3"))

	found, err := store.Unsubscribe(42, "octocat", "Hello-World")
	require.NoError(t, err)
	require.True(t, found)

	clock.Advance(time.Hour)
	again, err := store.Subscribe(42, "octocat", "Hello-World")
	require.NoError(t, err)

	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "c3", again.LastCommitSHA)
	assert.True(t, again.IsActive)
	assert.True(t, again.LastCheckTime.Equal(clock.Now()))
}

func TestRecordCheckResult(t *testing.T) {
	store, clock, _ := newTestStore(t)

	sub, err := store.Subscribe(42, "octocat", "")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, store.RecordCheckResult(sub.ID, "abc"))

	got, err := store.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.LastCommitSHA)
	assert.True(t, got.LastCheckTime.Equal(clock.Now()))

	// An empty result only advances the check time.
	clock.Advance(time.Minute)
	require.NoError(t, store.RecordCheckResult(sub.ID, ""))

	got, err = store.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.LastCommitSHA)
	assert.True(t, got.LastCheckTime.Equal(clock.Now()))
}

func TestRecordCheckResultUnknownID(t *testing.T) {
	store, _, _ := newTestStore(t)

	err := store.RecordCheckResult("missing", "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	var se *StorageError
	assert.True(t, errors.As(err, &se))

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestListForUser(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Subscribe(1, "alice", "")
	require.NoError(t, err)
	_, err = store.Subscribe(1, "bob", "tools")
	require.NoError(t, err)
	_, err = store.Subscribe(2, "alice", "")
	require.NoError(t, err)
	_, err = store.Unsubscribe(1, "alice", "")
	require.NoError(t, err)

	subs, err := store.ListForUser(1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "bob", subs[0].Username)

	active, err := store.ListActive()
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestTouchGlobalCheck(t *testing.T) {
	store, clock, _ := newTestStore(t)

	clock.Advance(10 * time.Minute)
	require.NoError(t, store.TouchGlobalCheck())

	last, err := store.LastGlobalCheck()
	require.NoError(t, err)
	assert.True(t, last.Equal(clock.Now()))
}

func TestStats(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Subscribe(1, "alice", "")
	require.NoError(t, err)
	_, err = store.Subscribe(2, "alice", "repo")
	require.NoError(t, err)
	_, err = store.Subscribe(3, "bob", "")
	require.NoError(t, err)
	_, err = store.Unsubscribe(3, "bob", "")
	require.NoError(t, err)

	st, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.ActiveSubscriptions)
	assert.Equal(t, 3, st.TotalSubscriptions)
	assert.Equal(t, 1, st.WatchedAccounts)
	assert.False(t, st.LastGlobalCheck.IsZero())
}

func TestStateSurvivesReopen(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "subscriptions.db")

	store, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)

	a, err := store.Subscribe(1, "alice", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	require.NoError(t, store.RecordCheckResult(a.ID, "sha-a"))

	b, err := store.Subscribe(2, "bob", "tools")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	require.NoError(t, store.RecordCheckResult(b.ID, "sha-b"))
	_, err = store.Unsubscribe(2, "bob", "tools")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, store.TouchGlobalCheck())

	wantA, err := store.Get(a.ID)
	require.NoError(t, err)
	wantB, err := store.Get(b.ID)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	gotA, err := reopened.Get(a.ID)
	require.NoError(t, err)
	gotB, err := reopened.Get(b.ID)
	require.NoError(t, err)

	assert.Equal(t, *wantA, *gotA)
	assert.Equal(t, *wantB, *gotB)
	assert.False(t, gotB.IsActive)
	assert.Equal(t, "sha-b", gotB.LastCommitSHA)

	last, err := reopened.LastGlobalCheck()
	require.NoError(t, err)
	assert.True(t, last.Equal(clock.Now()))
}
