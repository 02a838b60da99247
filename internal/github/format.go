package github

import (
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/google/go-github/v80/github"
)

func FormatPushEvent(event *github.PushEvent) (string, *gotgbot.InlineKeyboardMarkup) {
	repo := event.GetRepo().GetFullName()
	branch := strings.TrimPrefix(event.GetRef(), "refs/heads/")
	pusher := event.GetPusher().GetName()
	commits := event.Commits

	if len(commits) == 0 {
		msg := fmt.Sprintf(
			"*🔨 Push to %s* `%s`\n*By:* %s\n",
			FormatRepo(repo),
			EscapeMarkdownV2(branch),
			EscapeMarkdownV2(pusher),
		)
		return FormatMessageWithButton(msg, "View Repository", event.GetRepo().GetHTMLURL())
	}

	plural := "commits"
	if len(commits) == 1 {
		plural = "commit"
	}

	msg := fmt.Sprintf(
		"*🔨 %d new %s to %s* `%s`\n*By:* %s\n\n",
		len(commits), plural,
		FormatRepo(repo),
		EscapeMarkdownV2(branch),
		EscapeMarkdownV2(pusher),
	)

	shown := commits
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, commit := range shown {
		sha := commit.GetID()
		if len(sha) > 7 {
			sha = sha[:7]
		}
		title := commit.GetMessage()
		if i := strings.IndexByte(title, '\n'); i >= 0 {
			title = title[:i]
		}
		msg += fmt.Sprintf(
			"[`%s`](%s) %s\n",
			EscapeMarkdownV2(sha),
			EscapeMarkdownV2URL(commit.GetURL()),
			EscapeMarkdownV2(title),
		)
	}
	if rest := len(commits) - len(shown); rest > 0 {
		msg += fmt.Sprintf("\n_\\+%d more_\n", rest)
	}

	if len(commits) == 1 {
		return FormatMessageWithButton(msg, "View Commit", commits[0].GetURL())
	}
	return FormatMessageWithButton(msg, "View Changes", event.GetCompare())
}

func FormatPullRequestEvent(event *github.PullRequestEvent) (string, *gotgbot.InlineKeyboardMarkup) {
	repo := event.GetRepo().GetFullName()
	action := event.GetAction()
	sender := event.GetSender().GetLogin()
	pr := event.GetPullRequest()

	msg := fmt.Sprintf(
		"*🚀 PR %s \\#%d: %s*\n\n"+
			"*Repository:* %s\n"+
			"*By:* %s\n"+
			"*Branch:* `%s` → `%s`\n",
		EscapeMarkdownV2(titleCase(action)),
		pr.GetNumber(),
		EscapeMarkdownV2(pr.GetTitle()),
		FormatRepo(repo),
		FormatUser(sender),
		EscapeMarkdownV2(pr.GetHead().GetRef()),
		EscapeMarkdownV2(pr.GetBase().GetRef()),
	)

	switch action {
	case "opened", "edited":
		if body := pr.GetBody(); body != "" {
			msg += fmt.Sprintf("*Description:*\n%s\n", FormatTextWithMarkdown(body))
		}
	case "closed":
		if pr.GetMerged() {
			msg += "✅ Merged\n"
		} else {
			msg += "❌ Closed without merging\n"
		}
	case "reopened":
		msg += "🔄 Reopened\n"
	case "review_requested":
		var reviewers []string
		for _, r := range pr.RequestedReviewers {
			reviewers = append(reviewers, EscapeMarkdownV2(r.GetLogin()))
		}
		if len(reviewers) > 0 {
			msg += fmt.Sprintf("*Review requested from:* %s\n", strings.Join(reviewers, ", "))
		}
	}

	return FormatMessageWithButton(msg, "View PR", pr.GetHTMLURL())
}

func FormatIssuesEvent(event *github.IssuesEvent) (string, *gotgbot.InlineKeyboardMarkup) {
	repo := event.GetRepo().GetFullName()
	action := event.GetAction()
	sender := event.GetSender().GetLogin()
	issue := event.GetIssue()

	msg := fmt.Sprintf(
		"*📌 %s issue \\#%d*\n"+
			"*Title:* %s\n\n"+
			"*Repository:* %s\n"+
			"*By:* %s\n",
		EscapeMarkdownV2(titleCase(action)),
		issue.GetNumber(),
		EscapeMarkdownV2(issue.GetTitle()),
		FormatRepo(repo),
		FormatUser(sender),
	)

	switch action {
	case "opened", "edited":
		if body := issue.GetBody(); body != "" {
			msg += fmt.Sprintf("*Description:*\n%s\n", FormatTextWithMarkdown(body))
		}
	case "closed":
		if closer := issue.GetClosedBy(); closer != nil {
			msg += fmt.Sprintf("*Closed by:* %s\n", EscapeMarkdownV2(closer.GetLogin()))
		}
	case "reopened":
		msg += "_Issue reopened_\n"
	case "assigned":
		var assignees []string
		for _, a := range issue.Assignees {
			assignees = append(assignees, EscapeMarkdownV2(a.GetLogin()))
		}
		if len(assignees) > 0 {
			msg += fmt.Sprintf("*Assigned to:* %s\n", strings.Join(assignees, ", "))
		}
	case "labeled":
		var labels []string
		for _, l := range issue.Labels {
			labels = append(labels, EscapeMarkdownV2(l.GetName()))
		}
		if len(labels) > 0 {
			msg += fmt.Sprintf("*Labels:* %s\n", strings.Join(labels, ", "))
		}
	}

	return FormatMessageWithButton(msg, "View Issue", issue.GetHTMLURL())
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
