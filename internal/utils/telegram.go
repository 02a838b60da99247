package utils

import (
	"context"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/cache"

	"github.com/PaulSonOfLars/gotgbot/v2"
)

// TelegramSink delivers rendered notifications to chats via the bot API.
// It satisfies the dispatcher's Sink interface.
type TelegramSink struct {
	Bot *gotgbot.Bot
}

func NewTelegramSink(bot *gotgbot.Bot) *TelegramSink {
	return &TelegramSink{Bot: bot}
}

func (s *TelegramSink) Send(ctx context.Context, chatID int64, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	opts := &gotgbot.SendMessageOpts{
		ParseMode: "MarkdownV2",
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	}
	if markup != nil {
		opts.ReplyMarkup = *markup
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.RequestOpts = &gotgbot.RequestOpts{Timeout: time.Until(deadline)}
	}

	_, err := s.Bot.SendMessage(chatID, text, opts)
	return err
}

// IsAdmin reports whether userID is an administrator of chatID, caching the
// admin list for an hour.
func IsAdmin(b *gotgbot.Bot, chatID int64, userID int64, adminCache *cache.Cache[int64, []int64]) bool {
	if admins, ok := adminCache.Get(chatID); ok {
		for _, adminID := range admins {
			if adminID == userID {
				return true
			}
		}
		return false
	}

	admins, err := b.GetChatAdministrators(chatID, nil)
	if err != nil {
		member, err := b.GetChatMember(chatID, userID, nil)
		if err != nil {
			return false
		}

		status := member.GetStatus()
		return status == "administrator" || status == "creator"
	}

	var adminIDs []int64
	isAdmin := false
	for _, admin := range admins {
		id := admin.GetUser().Id
		adminIDs = append(adminIDs, id)
		if id == userID {
			isAdmin = true
		}
	}

	adminCache.Set(chatID, adminIDs, 1*time.Hour)
	return isAdmin
}
