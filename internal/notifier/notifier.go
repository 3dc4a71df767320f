// Package notifier turns detected commits into chat notifications.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/user/commitbot/internal/analysis"
	"github.com/user/commitbot/internal/github"
	"github.com/user/commitbot/internal/storage"
	"github.com/user/commitbot/internal/telegram"
	"github.com/user/commitbot/pkg/logger"
)

const (
	defaultDetailTimeout   = 10 * time.Second
	defaultAnalysisTimeout = 15 * time.Second
)

// Sink delivers rendered messages to a user's chat.
type Sink interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// Enricher produces an optional analysis of a commit.
type Enricher interface {
	Summarize(ctx context.Context, commit github.Commit) (*analysis.Result, error)
}

// CommitDetailer loads file statistics for a single commit.
type CommitDetailer interface {
	GetCommit(ctx context.Context, owner, repo, sha string) (*github.Commit, error)
}

// Notification is everything needed to render one commit message.
type Notification struct {
	UserID       int64
	Subscription storage.Subscription
	Commit       github.Commit
	Analysis     *analysis.Result
}

// Notifier sends one message per new commit.
type Notifier struct {
	sink            Sink
	enricher        Enricher
	detailer        CommitDetailer
	detailTimeout   time.Duration
	analysisTimeout time.Duration
	msgBuilder      *telegram.MessageBuilder
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithEnricher attaches an analysis provider. Without one, messages carry no
// analysis section.
func WithEnricher(e Enricher) Option {
	return func(n *Notifier) {
		n.enricher = e
	}
}

// WithCommitDetailer attaches a source of per-commit file statistics.
func WithCommitDetailer(d CommitDetailer) Option {
	return func(n *Notifier) {
		n.detailer = d
	}
}

// WithDetailTimeout bounds the commit detail lookup.
func WithDetailTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.detailTimeout = d
		}
	}
}

// WithAnalysisTimeout bounds the analysis call. When it expires the commit is
// sent without an analysis section.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.analysisTimeout = d
		}
	}
}

// NewNotifier creates a new notifier instance.
func NewNotifier(sink Sink, opts ...Option) *Notifier {
	n := &Notifier{
		sink:            sink,
		detailTimeout:   defaultDetailTimeout,
		analysisTimeout: defaultAnalysisTimeout,
		msgBuilder:      telegram.NewMessageBuilder(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Build assembles the notification for a commit. Detail and analysis
// failures are logged and leave the corresponding parts empty.
func (n *Notifier) Build(ctx context.Context, sub storage.Subscription, commit github.Commit) Notification {
	log := logger.WithField("subscription_id", sub.ID).With().Str("sha", commit.SHA).Logger()

	if commit.Stats == nil && n.detailer != nil {
		owner, repo := commit.Owner, commit.Repo
		if owner == "" {
			owner = sub.Username
		}
		if repo == "" {
			repo = sub.Repo
		}
		if repo != "" {
			detailCtx, cancel := context.WithTimeout(ctx, n.detailTimeout)
			detailed, err := n.detailer.GetCommit(detailCtx, owner, repo, commit.SHA)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to load commit details")
			} else if detailed != nil && detailed.Stats != nil {
				commit.Stats = detailed.Stats
			}
		}
	}

	var result *analysis.Result
	if n.enricher != nil {
		analysisCtx, cancel := context.WithTimeout(ctx, n.analysisTimeout)
		res, err := n.enricher.Summarize(analysisCtx, commit)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Commit analysis failed")
		} else {
			result = res
		}
	}

	return Notification{
		UserID:       sub.UserID,
		Subscription: sub,
		Commit:       commit,
		Analysis:     result,
	}
}

// Enrich returns the commit with file statistics loaded, plus its analysis
// when an enricher is configured.
func (n *Notifier) Enrich(ctx context.Context, sub storage.Subscription, commit github.Commit) (github.Commit, *analysis.Result) {
	note := n.Build(ctx, sub, commit)
	return note.Commit, note.Analysis
}

// Notify renders and delivers one commit to the subscription's owner. Only
// delivery failures are returned.
func (n *Notifier) Notify(ctx context.Context, sub storage.Subscription, commit github.Commit) error {
	note := n.Build(ctx, sub, commit)
	text := n.msgBuilder.BuildCommitMessage(note.Subscription, note.Commit, note.Analysis)

	if err := n.sink.Deliver(ctx, note.UserID, text); err != nil {
		return fmt.Errorf("deliver %s to %d: %w", commit.ShortSHA(), note.UserID, err)
	}

	logger.Debug().
		Str("subscription_id", sub.ID).
		Int64("user_id", note.UserID).
		Str("sha", commit.SHA).
		Bool("analysis", note.Analysis != nil).
		Msg("Notification sent")
	return nil
}
