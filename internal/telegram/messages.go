package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/user/commitbot/internal/analysis"
	"github.com/user/commitbot/internal/github"
	"github.com/user/commitbot/internal/storage"
)

const (
	maxTitleLen   = 100
	maxShownFiles = 5
)

// MessageBuilder helps construct formatted notification messages.
type MessageBuilder struct{}

// NewMessageBuilder creates a new message builder.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{}
}

// BuildCommitMessage renders one commit notification as Telegram HTML.
// a may be nil, in which case the analysis section is left out.
func (m *MessageBuilder) BuildCommitMessage(sub storage.Subscription, c github.Commit, a *analysis.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🚀 <b>New commit from %s</b>", escape(sub.Username))
	repo := sub.Repo
	if repo == "" {
		repo = c.Repo
	}
	if repo != "" {
		fmt.Fprintf(&b, " in <code>%s</code>", escape(repo))
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "🔍 <b>%s</b>\n\n", escape(truncateString(firstLine(c.Message), maxTitleLen)))

	author := c.AuthorName
	if author == "" {
		author = "unknown author"
	}
	fmt.Fprintf(&b, "👤 <b>Author:</b> %s\n", escape(author))
	if !c.AuthorDate.IsZero() {
		fmt.Fprintf(&b, "📅 <b>Date:</b> %s\n", c.AuthorDate.UTC().Format("2006-01-02 15:04 UTC"))
	}

	if c.Stats != nil {
		files := len(c.Stats.Files)
		fmt.Fprintf(&b, "📊 <b>Changes:</b> %d %s, +%d/-%d\n", files, plural(files, "file", "files"), c.Stats.Additions, c.Stats.Deletions)
		for i, f := range c.Stats.Files {
			if i == maxShownFiles {
				fmt.Fprintf(&b, "<i>...and %d more</i>\n", files-maxShownFiles)
				break
			}
			fmt.Fprintf(&b, "• <code>%s</code> (+%d/-%d)\n", escape(f.Filename), f.Additions, f.Deletions)
		}
	}

	if a != nil {
		fmt.Fprintf(&b, "\n🤖 <b>Analysis</b> (%s impact)\n%s\n", escape(string(a.Impact)), escape(a.Summary))
		if len(a.Categories) > 0 {
			fmt.Fprintf(&b, "🏷️ %s\n", escape(strings.Join(a.Categories, ", ")))
		}
	}

	b.WriteString("\n")
	if c.URL != "" {
		fmt.Fprintf(&b, "🔗 <a href=\"%s\">Open on GitHub</a> · ", escape(c.URL))
	}
	fmt.Fprintf(&b, "<code>%s</code>", escape(c.ShortSHA()))

	return b.String()
}

// BuildSubscriptionList renders the user's active subscriptions.
func (m *MessageBuilder) BuildSubscriptionList(subs []storage.Subscription) string {
	if len(subs) == 0 {
		return "📭 <b>You have no active subscriptions</b>\n\n" +
			"Use <code>/subscribe &lt;username&gt; [repo]</code> to get notified about new commits."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Your active subscriptions (%d):</b>\n\n", len(subs))
	for i, sub := range subs {
		fmt.Fprintf(&b, "%d. 👤 <b>%s</b>\n", i+1, escape(sub.Target()))
		fmt.Fprintf(&b, "   📅 Last check: %s\n", sub.LastCheckTime.UTC().Format("2006-01-02 15:04 UTC"))
		if sub.LastCommitSHA != "" {
			fmt.Fprintf(&b, "   🔗 Last commit: <code>%s</code>\n", escape(github.Commit{SHA: sub.LastCommitSHA}.ShortSHA()))
		}
		b.WriteString("\n")
	}
	b.WriteString("💡 Use <code>/unsubscribe &lt;username&gt; [repo]</code> to cancel a subscription.")
	return b.String()
}

// FormatRepoLink creates an HTML link to a repository or account.
func FormatRepoLink(owner, name string) string {
	if name == "" {
		return fmt.Sprintf(`<a href="https://github.com/%s">%s</a>`, escape(owner), escape(owner))
	}
	return fmt.Sprintf(`<a href="https://github.com/%s/%s">%s/%s</a>`, escape(owner), escape(name), escape(owner), escape(name))
}

func escape(s string) string {
	return html.EscapeString(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// formatDuration formats a duration to a human-readable string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
