package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/commitbot/internal/github"
	"github.com/user/commitbot/internal/storage"
	"github.com/user/commitbot/pkg/logger"
)

// DefaultIntervalMinutes is used when Start is given a non-positive interval.
const DefaultIntervalMinutes = 5

// CommitSource returns recent commits for an account or repository, newest first.
type CommitSource interface {
	FetchRecent(ctx context.Context, username, repo string) ([]github.Commit, error)
}

// Store is the part of the subscription store the monitor mutates.
type Store interface {
	ListActive() ([]storage.Subscription, error)
	RecordCheckResult(id, newLastCommitSHA string) error
	TouchGlobalCheck() error
}

// Notifier delivers one notification per new commit.
type Notifier interface {
	Notify(ctx context.Context, sub storage.Subscription, commit github.Commit) error
}

// CycleReport summarizes one check cycle.
type CycleReport struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Subscriptions int           `json:"subscriptions"`
	FetchFailures int           `json:"fetch_failures"`
	NewCommits    int           `json:"new_commits"`
	Sent          int           `json:"sent"`
	Failed        int           `json:"failed"`
	Suppressed    int           `json:"suppressed"`
}

// Monitor periodically checks every active subscription for new commits.
// It is either stopped or running; at most one check cycle runs at a time.
type Monitor struct {
	store    Store
	source   CommitSource
	notifier Notifier

	maxNotifications int
	now              func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cycling atomic.Bool

	reportMu sync.Mutex
	last     CycleReport
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMaxNotificationsPerSubscription caps how many commits are dispatched per
// subscription and cycle. Zero means no cap.
func WithMaxNotificationsPerSubscription(n int) Option {
	return func(m *Monitor) {
		m.maxNotifications = n
	}
}

// WithClock overrides the time source used for cycle reports.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a stopped monitor.
func New(store Store, source CommitSource, notifier Notifier, opts ...Option) *Monitor {
	m := &Monitor{
		store:    store,
		source:   source,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs one check cycle immediately and then one every intervalMinutes.
// Calling Start on a running monitor only logs a warning.
func (m *Monitor) Start(intervalMinutes int) {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	m.start(time.Duration(intervalMinutes) * time.Minute)
}

func (m *Monitor) start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		logger.Warn().Msg("Monitor is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel

	m.wg.Add(1)
	go m.loop(ctx, interval)

	logger.Info().Dur("interval", interval).Msg("Monitor started")
}

// Stop prevents further cycles and waits for an in-flight cycle to finish.
// It is safe to call on a stopped monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	logger.Info().Msg("Stopping monitor")
	cancel()
	m.wg.Wait()
	logger.Info().Msg("Monitor stopped")
}

// IsRunning reports whether the monitor is started.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastCycle returns the report of the most recent completed cycle.
func (m *Monitor) LastCycle() CycleReport {
	m.reportMu.Lock()
	defer m.reportMu.Unlock()
	return m.last
}

// loop is the main monitoring loop.
func (m *Monitor) loop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	// Stop must not interrupt a cycle that already started.
	cycleCtx := context.WithoutCancel(ctx)

	m.RunCycle(cycleCtx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.RunCycle(cycleCtx)
		}
	}
}

// RunCycle checks every active subscription once. It returns false without
// doing anything when another cycle is still in progress.
func (m *Monitor) RunCycle(ctx context.Context) bool {
	if !m.cycling.CompareAndSwap(false, true) {
		logger.Warn().Msg("Previous check cycle still in progress, skipping tick")
		return false
	}
	defer m.cycling.Store(false)

	report := CycleReport{StartedAt: m.now()}
	defer func() {
		report.Duration = m.now().Sub(report.StartedAt)
		m.reportMu.Lock()
		m.last = report
		m.reportMu.Unlock()
	}()

	logger.Debug().Msg("Checking for new commits")

	subs, err := m.store.ListActive()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list active subscriptions")
	}
	report.Subscriptions = len(subs)

	for _, sub := range subs {
		m.checkSubscription(ctx, sub, &report)
	}

	if err := m.store.TouchGlobalCheck(); err != nil {
		logger.Error().Err(err).Msg("Failed to record global check time")
	}

	logger.Info().
		Int("subscriptions", report.Subscriptions).
		Int("fetch_failures", report.FetchFailures).
		Int("new_commits", report.NewCommits).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("Completed commit check cycle")

	return true
}

// checkSubscription fetches, detects, persists and dispatches for one
// subscription. Failures are logged and never propagate.
func (m *Monitor) checkSubscription(ctx context.Context, sub storage.Subscription, report *CycleReport) {
	log := logger.WithField("subscription_id", sub.ID).With().
		Int64("user_id", sub.UserID).
		Str("target", sub.Target()).
		Logger()

	commits, err := m.source.FetchRecent(ctx, sub.Username, sub.Repo)
	if err != nil {
		report.FetchFailures++
		log.Warn().Err(err).Msg("Failed to fetch commits")
		if err := m.store.RecordCheckResult(sub.ID, ""); err != nil {
			log.Error().Err(err).Msg("Failed to record check time")
		}
		return
	}

	newCommits := FindNewCommits(sub.LastCommitSHA, commits)

	log.Debug().
		Int("fetched", len(commits)).
		Int("new", len(newCommits)).
		Str("last_commit", sub.LastCommitSHA).
		Msg("Checked subscription")

	// Persist the high-water mark before dispatching. If that fails the batch
	// is held back; the next cycle detects the same commits again.
	if err := m.store.RecordCheckResult(sub.ID, HighWaterMark(newCommits)); err != nil {
		log.Error().Err(err).Int("new", len(newCommits)).Msg("Failed to record check result, notifications deferred")
		return
	}

	if len(newCommits) == 0 {
		return
	}
	report.NewCommits += len(newCommits)

	dispatch := newCommits
	if m.maxNotifications > 0 && len(dispatch) > m.maxNotifications {
		suppressed := len(dispatch) - m.maxNotifications
		report.Suppressed += suppressed
		log.Warn().
			Int("new", len(newCommits)).
			Int("suppressed", suppressed).
			Msg("Too many new commits, notifying only the newest")
		dispatch = dispatch[:m.maxNotifications]
	}

	for _, commit := range dispatch {
		if err := m.notifier.Notify(ctx, sub, commit); err != nil {
			report.Failed++
			log.Error().Err(err).Str("sha", commit.SHA).Msg("Failed to send notification")
			continue
		}
		report.Sent++
	}
}
