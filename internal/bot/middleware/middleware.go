package middleware

import (
	"context"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/db"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// TrackChat upserts a record for every chat the bot hears from.
func TrackChat(database *db.DB) func(b *gotgbot.Bot, ctx *ext.Context) error {
	return func(b *gotgbot.Bot, ctx *ext.Context) error {
		if ctx.EffectiveChat != nil {
			chat := &models.Chat{
				ID:       ctx.EffectiveChat.Id,
				ChatType: ctx.EffectiveChat.Type,
				Title:    ctx.EffectiveChat.Title,
			}
			if chat.Title == "" {
				chat.Title = ctx.EffectiveChat.Username
			}

			go func() {
				_ = database.UpsertChat(context.Background(), chat)
			}()
		}
		return nil
	}
}
