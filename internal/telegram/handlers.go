package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gh "github.com/google/go-github/v57/github"

	"github.com/user/commitbot/internal/analysis"
	"github.com/user/commitbot/internal/github"
	"github.com/user/commitbot/internal/monitor"
	"github.com/user/commitbot/internal/storage"
	"github.com/user/commitbot/pkg/logger"
)

const (
	lookupTimeout     = 10 * time.Second
	maxPreviewCommits = 10

	unsubscribeAction = "unsub"
)

// SubscriptionStore is the part of the store the command surface uses.
type SubscriptionStore interface {
	Subscribe(userID int64, username, repo string) (*storage.Subscription, error)
	Unsubscribe(userID int64, username, repo string) (bool, error)
	ListForUser(userID int64) ([]storage.Subscription, error)
	Get(id string) (*storage.Subscription, error)
	Stats() (storage.Stats, error)
}

// AccountChecker verifies subscription targets against GitHub.
type AccountChecker interface {
	AccountExists(ctx context.Context, username string) (bool, error)
	RepositoryExists(ctx context.Context, owner, repo string) (bool, error)
	GetRateLimit(ctx context.Context) (*gh.RateLimits, error)
}

// CommitFetcher returns the latest commits of an account or repository, newest first.
type CommitFetcher interface {
	FetchRecent(ctx context.Context, username, repo string) ([]github.Commit, error)
}

// CommitEnricher adds file statistics and an optional analysis to a commit.
type CommitEnricher interface {
	Enrich(ctx context.Context, sub storage.Subscription, commit github.Commit) (github.Commit, *analysis.Result)
}

// Reply is one outgoing HTML message, optionally with an inline keyboard.
type Reply struct {
	Text     string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

func textReply(text string) []Reply {
	return []Reply{{Text: text}}
}

// MonitorStatus reports the state of the commit monitor.
type MonitorStatus interface {
	IsRunning() bool
	LastCycle() monitor.CycleReport
}

// Handlers manages command handling for the bot.
type Handlers struct {
	store     SubscriptionStore
	checker   AccountChecker
	status    MonitorStatus
	fetcher   CommitFetcher
	enricher  CommitEnricher
	messages  *MessageBuilder
	startTime time.Time
}

// NewHandlers creates a new handlers instance. checker and status may be nil.
func NewHandlers(store SubscriptionStore, checker AccountChecker, status MonitorStatus) *Handlers {
	return &Handlers{
		store:     store,
		checker:   checker,
		status:    status,
		messages:  NewMessageBuilder(),
		startTime: time.Now(),
	}
}

// SetMonitorStatus sets the monitor reported by /status.
func (h *Handlers) SetMonitorStatus(status MonitorStatus) {
	h.status = status
}

// SetCommitPreview enables /monit. enricher may be nil.
func (h *Handlers) SetCommitPreview(fetcher CommitFetcher, enricher CommitEnricher) {
	h.fetcher = fetcher
	h.enricher = enricher
}

// SetStartTime sets the bot start time for uptime calculation.
func (h *Handlers) SetStartTime(t time.Time) {
	h.startTime = t
}

// commandMenu lists the commands published to Telegram clients.
func commandMenu() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "subscribe", Description: "Watch a GitHub account or repository"},
		{Command: "unsubscribe", Description: "Stop watching an account or repository"},
		{Command: "subscriptions", Description: "List your active subscriptions"},
		{Command: "monit", Description: "Show the latest commits of an account or repository"},
		{Command: "status", Description: "Show bot status"},
		{Command: "help", Description: "Show help"},
	}
}

// HandleCommand routes a command and returns the replies to send, in order.
func (h *Handlers) HandleCommand(ctx context.Context, chatID int64, command, args string) []Reply {
	logger.Debug().
		Str("command", command).
		Str("args", args).
		Int64("chat_id", chatID).
		Msg("Received command")

	switch command {
	case "start":
		return textReply(startText)
	case "help":
		return textReply(helpText)
	case "subscribe", "sub":
		return textReply(h.handleSubscribe(ctx, chatID, args))
	case "unsubscribe", "unsub":
		return textReply(h.handleUnsubscribe(chatID, args))
	case "subscriptions", "list":
		return []Reply{h.handleList(chatID)}
	case "monit":
		return h.handleMonit(ctx, chatID, args)
	case "status":
		return textReply(h.handleStatus(ctx, chatID))
	default:
		return textReply("Unknown command. Use /help to see available commands.")
	}
}

// HandleCallback handles inline keyboard presses and returns the reply text.
// An empty reply means nothing should be sent.
func (h *Handlers) HandleCallback(chatID int64, data string) string {
	action, id, ok := strings.Cut(data, ":")
	if !ok || action != unsubscribeAction {
		logger.Debug().Str("data", data).Msg("Ignoring unknown callback")
		return ""
	}

	sub, err := h.store.Get(id)
	if errors.Is(err, storage.ErrSubscriptionNotFound) || (err == nil && sub.UserID != chatID) {
		return "❌ Subscription not found."
	}
	if err != nil {
		logger.Error().Err(err).Str("subscription_id", id).Msg("Failed to load subscription")
		return "❌ Unsubscribe failed, please try again later."
	}

	return h.unsubscribe(chatID, sub.Username, sub.Repo)
}

const startText = `👋 <b>Welcome to the GitHub commit watcher!</b>

I send you a message whenever a GitHub account or repository you follow gets new commits.

<b>Quick start:</b>
<code>/subscribe torvalds</code> watches an account's active repositories
<code>/subscribe golang go</code> watches a single repository

Use /help to see all commands.`

const helpText = `📚 <b>Commands</b>

• <code>/subscribe &lt;username&gt; [repo]</code> - watch an account or repository
• <code>/unsubscribe &lt;username&gt; [repo]</code> - stop watching
• <code>/subscriptions</code> - list your subscriptions (alias <code>/list</code>)
• <code>/monit &lt;username&gt; [repo]</code> - show the latest commits now
• <code>/status</code> - bot status

<b>Examples:</b>
<code>/subscribe octocat</code>
<code>/subscribe octocat Hello-World</code>
<code>/subscribe octocat/Hello-World</code>
<code>/unsubscribe octocat</code>

💡 Without a repository I follow the account's recently updated repositories.`

func usageFor(command string, err error) string {
	switch {
	case errors.Is(err, errMissingUsername):
		return fmt.Sprintf("❌ Please specify a username: <code>/%s &lt;username&gt; [repo]</code>", command)
	case errors.Is(err, errInvalidUsername):
		return "❌ Invalid GitHub username. Usernames contain letters, digits and single hyphens."
	case errors.Is(err, errInvalidRepo):
		return "❌ Invalid repository name."
	default:
		return "❌ Invalid arguments."
	}
}

func (h *Handlers) handleSubscribe(ctx context.Context, chatID int64, args string) string {
	username, repo, err := parseTargetArgs(args)
	if err != nil {
		return usageFor("subscribe", err)
	}
	target := storage.Subscription{Username: username, Repo: repo}.Target()

	if h.checker != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()

		var exists bool
		if repo == "" {
			exists, err = h.checker.AccountExists(lookupCtx, username)
		} else {
			exists, err = h.checker.RepositoryExists(lookupCtx, username, repo)
		}
		if err != nil {
			logger.Error().Err(err).Str("target", target).Msg("Failed to validate subscription target")
			return "⚠️ Could not reach GitHub to verify the target, please try again later."
		}
		if !exists {
			return fmt.Sprintf("❌ <code>%s</code> does not exist or is not accessible.", escape(target))
		}
	}

	sub, err := h.store.Subscribe(chatID, username, repo)
	if errors.Is(err, storage.ErrAlreadySubscribed) {
		return fmt.Sprintf("ℹ️ You are already subscribed to <code>%s</code>.", escape(target))
	}
	if err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Str("target", target).Msg("Failed to subscribe")
		return "❌ Subscription failed, please try again later."
	}

	logger.Info().
		Str("subscription_id", sub.ID).
		Int64("user_id", chatID).
		Str("target", target).
		Msg("Subscription created")

	link := FormatRepoLink(username, repo)
	if repo == "" {
		return fmt.Sprintf("✅ <b>Subscribed to %s</b>\n\nYou will be notified about new commits in the account's active repositories.", link)
	}
	return fmt.Sprintf("✅ <b>Subscribed to %s</b>\n\nYou will be notified about new commits.", link)
}

func (h *Handlers) handleUnsubscribe(chatID int64, args string) string {
	username, repo, err := parseTargetArgs(args)
	if err != nil {
		return usageFor("unsubscribe", err)
	}
	return h.unsubscribe(chatID, username, repo)
}

func (h *Handlers) unsubscribe(chatID int64, username, repo string) string {
	target := storage.Subscription{Username: username, Repo: repo}.Target()

	removed, err := h.store.Unsubscribe(chatID, username, repo)
	if err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Str("target", target).Msg("Failed to unsubscribe")
		return "❌ Unsubscribe failed, please try again later."
	}
	if !removed {
		return fmt.Sprintf("❌ No active subscription for <code>%s</code>.", escape(target))
	}
	return fmt.Sprintf("✅ Unsubscribed from <code>%s</code>.", escape(target))
}

func (h *Handlers) handleList(chatID int64) Reply {
	subs, err := h.store.ListForUser(chatID)
	if err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to list subscriptions")
		return Reply{Text: "❌ Could not load your subscriptions."}
	}

	reply := Reply{Text: h.messages.BuildSubscriptionList(subs)}
	if len(subs) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(subs))
		for _, sub := range subs {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ "+sub.Target(), unsubscribeAction+":"+sub.ID),
			))
		}
		keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
		reply.Keyboard = &keyboard
	}
	return reply
}

// handleMonit replies with the latest commits of the target, one message each.
func (h *Handlers) handleMonit(ctx context.Context, chatID int64, args string) []Reply {
	username, repo, err := parseTargetArgs(args)
	if err != nil {
		return textReply(usageFor("monit", err))
	}
	if h.fetcher == nil {
		return textReply("⚠️ Commit lookup is not available right now.")
	}
	target := storage.Subscription{Username: username, Repo: repo}.Target()

	commits, err := h.fetcher.FetchRecent(ctx, username, repo)
	if errors.Is(err, github.ErrNotFound) {
		return textReply(fmt.Sprintf("❌ <code>%s</code> does not exist or is not accessible.", escape(target)))
	}
	if err != nil {
		logger.Error().Err(err).Str("target", target).Msg("Failed to fetch latest commits")
		return textReply("⚠️ Could not fetch commits from GitHub, please try again later.")
	}
	if len(commits) == 0 {
		return textReply("📭 No commits found.")
	}
	if len(commits) > maxPreviewCommits {
		commits = commits[:maxPreviewCommits]
	}

	logger.Info().Str("target", target).Int("commits", len(commits)).Msg("Showing latest commits")

	sub := storage.Subscription{UserID: chatID, Username: username, Repo: repo}
	replies := make([]Reply, 0, len(commits))
	for _, commit := range commits {
		var result *analysis.Result
		if h.enricher != nil {
			commit, result = h.enricher.Enrich(ctx, sub, commit)
		}
		replies = append(replies, Reply{Text: h.messages.BuildCommitMessage(sub, commit, result)})
	}
	return replies
}

func (h *Handlers) handleStatus(ctx context.Context, chatID int64) string {
	var b strings.Builder

	b.WriteString("📊 <b>Bot status</b>\n\n")
	fmt.Fprintf(&b, "⏱️ <b>Uptime:</b> %s\n", formatDuration(time.Since(h.startTime)))

	if h.status != nil {
		state := "stopped"
		if h.status.IsRunning() {
			state = "running"
		}
		fmt.Fprintf(&b, "🔄 <b>Monitor:</b> %s\n", state)
		if last := h.status.LastCycle(); !last.StartedAt.IsZero() {
			fmt.Fprintf(&b, "• Last cycle: %s ago, %d checked, %d sent, %d failed\n",
				formatDuration(time.Since(last.StartedAt)), last.Subscriptions, last.Sent, last.Failed)
		}
	}

	if stats, err := h.store.Stats(); err != nil {
		logger.Warn().Err(err).Msg("Failed to load store stats")
	} else {
		b.WriteString("\n📦 <b>Global:</b>\n")
		fmt.Fprintf(&b, "• Active subscriptions: %d\n", stats.ActiveSubscriptions)
		fmt.Fprintf(&b, "• Watched accounts: %d\n", stats.WatchedAccounts)
	}

	if subs, err := h.store.ListForUser(chatID); err == nil {
		fmt.Fprintf(&b, "\n👤 <b>Your subscriptions:</b> %d\n", len(subs))
	}

	if h.checker != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()

		rateInfo := "unknown"
		if limits, err := h.checker.GetRateLimit(lookupCtx); err == nil && limits != nil && limits.Core != nil {
			rateInfo = fmt.Sprintf("%d/%d (resets in %s)",
				limits.Core.Remaining, limits.Core.Limit, formatDuration(time.Until(limits.Core.Reset.Time)))
		}
		fmt.Fprintf(&b, "\n🔗 <b>GitHub API quota:</b> %s\n", rateInfo)
	}

	return b.String()
}
