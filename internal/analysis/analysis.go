// Package analysis produces optional AI summaries of commits.
package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/user/commitbot/internal/github"
)

// Impact grades how significant a commit looks.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Result is the enrichment attached to a notification.
type Result struct {
	Summary    string   `json:"summary"`
	Impact     Impact   `json:"impact"`
	Categories []string `json:"categories"`
}

const systemPrompt = "You are an expert at reviewing source code changes. " +
	"Analyze the commit and answer only with the requested JSON object."

const maxPromptFiles = 10

func buildPrompt(c github.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following commit.\n\n")
	fmt.Fprintf(&b, "Message: %s\n", c.Message)
	if c.AuthorName != "" {
		fmt.Fprintf(&b, "Author: %s\n", c.AuthorName)
	}
	if c.Repo != "" {
		fmt.Fprintf(&b, "Repository: %s/%s\n", c.Owner, c.Repo)
	}

	if c.Stats != nil && len(c.Stats.Files) > 0 {
		fmt.Fprintf(&b, "Files changed: %d (+%d/-%d)\n\n", len(c.Stats.Files), c.Stats.Additions, c.Stats.Deletions)
		for i, f := range c.Stats.Files {
			if i == maxPromptFiles {
				fmt.Fprintf(&b, "... and %d more files\n", len(c.Stats.Files)-maxPromptFiles)
				break
			}
			fmt.Fprintf(&b, "%d. %s (%s, +%d/-%d)\n", i+1, f.Filename, f.Status, f.Additions, f.Deletions)
		}
	}

	b.WriteString("\nReply with JSON in this format:\n")
	b.WriteString(`{"summary": "one or two sentences", "impact": "low|medium|high", "categories": ["feature", "fix", "..."]}`)
	return b.String()
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

const maxFallbackSummary = 200

// parseResponse extracts a Result from the model reply. Replies without a
// usable JSON object degrade to a truncated plain-text summary.
func parseResponse(reply string) (*Result, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, fmt.Errorf("empty analysis response")
	}

	if m := jsonObject.FindString(reply); m != "" {
		var r Result
		if err := json.Unmarshal([]byte(m), &r); err == nil && r.Summary != "" {
			r.Impact = normalizeImpact(r.Impact)
			return &r, nil
		}
	}

	summary := reply
	if runes := []rune(summary); len(runes) > maxFallbackSummary {
		summary = string(runes[:maxFallbackSummary]) + "..."
	}
	return &Result{Summary: summary, Impact: ImpactMedium}, nil
}

func normalizeImpact(i Impact) Impact {
	switch Impact(strings.ToLower(string(i))) {
	case ImpactLow:
		return ImpactLow
	case ImpactHigh:
		return ImpactHigh
	default:
		return ImpactMedium
	}
}
