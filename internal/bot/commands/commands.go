package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/cache"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/config"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/db"
	gh "github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/github"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/registry"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/utils"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// DeliveryHistory reads back logged notification attempts. *db.DB satisfies it.
type DeliveryHistory interface {
	GetChatDeliveries(ctx context.Context, chatID int64, limit int64) ([]models.DeliveryLogEntry, error)
}

type CommandHandler struct {
	Config        *config.Config
	Registry      *registry.Registry
	AuthSvc       *gh.AuthService
	ClientFactory *gh.ClientFactory
	DeliveryLog   DeliveryHistory
	AdminCache    *cache.Cache[int64, []int64]
}

func NewCommandHandler(cfg *config.Config, reg *registry.Registry, auth *gh.AuthService, factory *gh.ClientFactory, deliveries DeliveryHistory, adminCache *cache.Cache[int64, []int64]) *CommandHandler {
	return &CommandHandler{
		Config:        cfg,
		Registry:      reg,
		AuthSvc:       auth,
		ClientFactory: factory,
		DeliveryLog:   deliveries,
		AdminCache:    adminCache,
	}
}

func (h *CommandHandler) Start(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := `<b>Welcome to the GitHub Bot!</b> 🤖

I relay GitHub repository events to this chat and can act on GitHub as you.

<b>Get Started:</b>
1. Use /auth in a private chat to connect your GitHub account.
2. Use /subscribe owner/repo to start receiving notifications.
3. Point your repository webhook at this bot (see /help).

Type /help for the full list of commands.`
	_, err := ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"})
	return err
}

func (h *CommandHandler) Help(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := fmt.Sprintf(`<b>Commands</b>

/auth — connect your GitHub account (private chat only)
/logout — disconnect your GitHub account
/status — check whether you are connected
/profile — show your GitHub profile

/subscribe owner/repo [events] — subscribe this chat to a repository
/unsubscribe owner/repo — stop notifications for a repository
/subscriptions — list this chat's subscriptions
/deliveries — show recent notification deliveries for this chat

<b>Events:</b> push, pull_request, issues (all three by default)

<b>Webhook setup:</b>
1. Open your repository → Settings → Webhooks → Add webhook
2. Payload URL: <code>%s/webhook/github</code>
3. Content type: <code>application/json</code>
4. Secret: your configured webhook secret
5. Select the events you subscribed to`, h.Config.BaseURL)
	_, err := ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"})
	return err
}

func (h *CommandHandler) Auth(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat.Type != gotgbot.ChatTypePrivate {
		_, err := ctx.EffectiveMessage.Reply(b, "⚠️ The /auth command can only be used in a private chat with the bot.", nil)
		return err
	}

	url, err := h.AuthSvc.BeginAuthorization(context.Background(), ctx.EffectiveUser.Id)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			_, _ = ctx.EffectiveMessage.Reply(b, "Storage is temporarily unavailable. Please try again in a moment.", nil)
			return nil
		}
		return err
	}

	msg := fmt.Sprintf("Please [connect your GitHub account](%s)\\. The link is valid for 10 minutes\\.", url)
	_, err = ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "MarkdownV2"})
	return err
}

func (h *CommandHandler) Logout(b *gotgbot.Bot, ctx *ext.Context) error {
	userID := ctx.EffectiveUser.Id
	if !h.AuthSvc.IsAuthorized(context.Background(), userID) {
		_, err := ctx.EffectiveMessage.Reply(b, "You are not connected to GitHub.", nil)
		return err
	}

	if err := h.AuthSvc.Logout(context.Background(), userID); err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			_, _ = ctx.EffectiveMessage.Reply(b, "Storage is temporarily unavailable. Please try again in a moment.", nil)
			return nil
		}
		return err
	}

	_, err := ctx.EffectiveMessage.Reply(b, "👋 Disconnected. Use /auth to connect again.", nil)
	return err
}

func (h *CommandHandler) Status(b *gotgbot.Bot, ctx *ext.Context) error {
	var msg string
	if h.AuthSvc.IsAuthorized(context.Background(), ctx.EffectiveUser.Id) {
		msg = "✅ Your GitHub account is connected."
	} else {
		msg = "❌ Not connected. Use /auth in a private chat to connect."
	}
	_, err := ctx.EffectiveMessage.Reply(b, msg, nil)
	return err
}

func (h *CommandHandler) Profile(b *gotgbot.Bot, ctx *ext.Context) error {
	token, err := h.AuthSvc.AccessToken(context.Background(), ctx.EffectiveUser.Id)
	if err != nil {
		if db.IsNotFound(err) {
			_, _ = ctx.EffectiveMessage.Reply(b, "Please /auth first to connect your GitHub account.", nil)
			return nil
		}
		if errors.Is(err, db.ErrUnavailable) {
			_, _ = ctx.EffectiveMessage.Reply(b, "Storage is temporarily unavailable. Please try again in a moment.", nil)
			return nil
		}
		return err
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := h.ClientFactory.GetCurrentUser(reqCtx, token)
	if err != nil {
		log.Printf("Failed to fetch profile for user %d: %v", ctx.EffectiveUser.Id, err)
		_, _ = ctx.EffectiveMessage.Reply(b, "Failed to fetch your GitHub profile. Try /auth to reconnect.", nil)
		return nil
	}

	msg := fmt.Sprintf(
		"<b>👤 %s</b>\n<a href=\"%s\">@%s</a>\n\nRepos: %d · Followers: %d · Following: %d",
		html.EscapeString(u.GetName()),
		u.GetHTMLURL(),
		html.EscapeString(u.GetLogin()),
		u.GetPublicRepos(),
		u.GetFollowers(),
		u.GetFollowing(),
	)
	_, err = ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"})
	return err
}

func (h *CommandHandler) Subscribe(b *gotgbot.Bot, ctx *ext.Context) error {
	if !h.canManage(b, ctx) {
		_, err := ctx.EffectiveMessage.Reply(b, "Only admins can manage subscriptions.", nil)
		return err
	}

	args := ctx.Args()
	if len(args) < 2 {
		_, err := ctx.EffectiveMessage.Reply(b,
			"Usage: <code>/subscribe owner/repo [events]</code>\nExample: <code>/subscribe golang/go push,issues</code>",
			&gotgbot.SendMessageOpts{ParseMode: "HTML"})
		return err
	}

	repoFullName := args[1]
	if strings.Count(repoFullName, "/") != 1 {
		_, err := ctx.EffectiveMessage.Reply(b, "Invalid repository format. Use owner/repo", nil)
		return err
	}

	var events []string
	if len(args) > 2 {
		for _, e := range strings.Split(args[2], ",") {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !gh.IsSupportedEvent(e) {
				_, err := ctx.EffectiveMessage.Reply(b,
					fmt.Sprintf("Unknown event %q. Available: push, pull_request, issues", e), nil)
				return err
			}
			events = append(events, e)
		}
	}

	repoURL := "https://github.com/" + repoFullName
	sub, err := h.Registry.Subscribe(context.Background(), ctx.EffectiveChat.Id, repoURL, events)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			_, _ = ctx.EffectiveMessage.Reply(b, "Storage is temporarily unavailable. Please try again in a moment.", nil)
			return nil
		}
		return err
	}

	msg := fmt.Sprintf(
		"✅ Subscribed to <b>%s</b>\n<b>Events:</b> %s",
		html.EscapeString(repoFullName),
		strings.Join(sub.Events, ", "),
	)
	_, err = ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"})
	return err
}

func (h *CommandHandler) Unsubscribe(b *gotgbot.Bot, ctx *ext.Context) error {
	if !h.canManage(b, ctx) {
		_, err := ctx.EffectiveMessage.Reply(b, "Only admins can manage subscriptions.", nil)
		return err
	}

	args := ctx.Args()
	if len(args) < 2 {
		_, err := ctx.EffectiveMessage.Reply(b, "Usage: /unsubscribe owner/repo", nil)
		return err
	}

	repoFullName := args[1]
	repoURL := "https://github.com/" + repoFullName
	err := h.Registry.Unsubscribe(context.Background(), ctx.EffectiveChat.Id, repoURL)
	switch {
	case errors.Is(err, registry.ErrNotSubscribed):
		_, err = ctx.EffectiveMessage.Reply(b, "This chat is not subscribed to that repository.", nil)
		return err
	case errors.Is(err, db.ErrUnavailable):
		_, _ = ctx.EffectiveMessage.Reply(b, "Storage is temporarily unavailable. Please try again in a moment.", nil)
		return nil
	case err != nil:
		return err
	}

	msg := fmt.Sprintf("🔕 Unsubscribed from <b>%s</b>.", html.EscapeString(repoFullName))
	_, err = ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"})
	return err
}

func (h *CommandHandler) Subscriptions(b *gotgbot.Bot, ctx *ext.Context) error {
	subs, err := h.Registry.List(context.Background(), ctx.EffectiveChat.Id)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			_, _ = ctx.EffectiveMessage.Reply(b, "Storage is temporarily unavailable. Please try again in a moment.", nil)
			return nil
		}
		return err
	}

	var active []string
	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		name := strings.TrimPrefix(sub.RepositoryURL, "https://github.com/")
		active = append(active, fmt.Sprintf("• <b>%s</b> — %s", html.EscapeString(name), strings.Join(sub.Events, ", ")))
	}

	if len(active) == 0 {
		_, err = ctx.EffectiveMessage.Reply(b, "No active subscriptions. Use /subscribe owner/repo to add one.", nil)
		return err
	}

	msg := "<b>Subscriptions</b>\n\n" + strings.Join(active, "\n")
	_, err = ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"})
	return err
}

func (h *CommandHandler) Deliveries(b *gotgbot.Bot, ctx *ext.Context) error {
	entries, err := h.DeliveryLog.GetChatDeliveries(context.Background(), ctx.EffectiveChat.Id, 10)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			_, _ = ctx.EffectiveMessage.Reply(b, "Storage is temporarily unavailable. Please try again in a moment.", nil)
			return nil
		}
		return err
	}

	if len(entries) == 0 {
		_, err = ctx.EffectiveMessage.Reply(b, "No deliveries yet for this chat.", nil)
		return err
	}

	var lines []string
	for _, e := range entries {
		mark := "✅"
		if !e.Success {
			mark = "❌"
		}
		name := strings.TrimPrefix(e.RepositoryURL, "https://github.com/")
		lines = append(lines, fmt.Sprintf("%s <b>%s</b> %s — %s",
			mark, html.EscapeString(name), html.EscapeString(e.EventType),
			e.Timestamp.Format("Jan 2 15:04")))
	}

	msg := "<b>Recent deliveries</b>\n\n" + strings.Join(lines, "\n")
	_, err = ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"})
	return err
}

func (h *CommandHandler) Ping(b *gotgbot.Bot, ctx *ext.Context) error {
	start := time.Now()
	msg, err := ctx.EffectiveMessage.Reply(b, "Pong…", nil)
	if err != nil {
		return err
	}
	_, _, err = msg.EditText(b, fmt.Sprintf("🏓 Pong! %dms", time.Since(start).Milliseconds()), nil)
	return err
}

func (h *CommandHandler) canManage(b *gotgbot.Bot, ctx *ext.Context) bool {
	if ctx.EffectiveChat.Type == gotgbot.ChatTypePrivate {
		return true
	}
	return utils.IsAdmin(b, ctx.EffectiveChat.Id, ctx.EffectiveUser.Id, h.AdminCache)
}
