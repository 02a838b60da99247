package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/bot/commands"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/bot/middleware"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/cache"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/config"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/db"
	gh "github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/github"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/registry"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/utils"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}

	oauth := gh.NewOAuth(cfg)
	clientFactory := gh.NewClientFactory()
	auth := gh.NewAuthService(database, database, oauth, cfg.EncryptionKey)
	reg := registry.New(database)
	adminCache := cache.New[int64, []int64]()

	b, err := gotgbot.NewBot(cfg.TelegramToken, nil)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *gotgbot.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			log.Printf("Error processing update: %v", err)
			return ext.DispatcherActionNoop
		},
	})
	updater := ext.NewUpdater(dispatcher, nil)
	dispatcher.AddHandlerToGroup(handlers.NewMessage(nil, middleware.TrackChat(database)), -1)

	cmdHandler := commands.NewCommandHandler(cfg, reg, auth, clientFactory, database, adminCache)
	dispatcher.AddHandler(handlers.NewCommand("start", cmdHandler.Start))
	dispatcher.AddHandler(handlers.NewCommand("help", cmdHandler.Help))
	dispatcher.AddHandler(handlers.NewCommand("auth", cmdHandler.Auth))
	dispatcher.AddHandler(handlers.NewCommand("connect", cmdHandler.Auth))
	dispatcher.AddHandler(handlers.NewCommand("logout", cmdHandler.Logout))
	dispatcher.AddHandler(handlers.NewCommand("status", cmdHandler.Status))
	dispatcher.AddHandler(handlers.NewCommand("profile", cmdHandler.Profile))
	dispatcher.AddHandler(handlers.NewCommand("subscribe", cmdHandler.Subscribe))
	dispatcher.AddHandler(handlers.NewCommand("unsubscribe", cmdHandler.Unsubscribe))
	dispatcher.AddHandler(handlers.NewCommand("subscriptions", cmdHandler.Subscriptions))
	dispatcher.AddHandler(handlers.NewCommand("deliveries", cmdHandler.Deliveries))
	dispatcher.AddHandler(handlers.NewCommand("ping", cmdHandler.Ping))

	go func() {
		err = updater.StartPolling(b, &ext.PollingOpts{
			DropPendingUpdates: true,
			GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
				Timeout: 9,
				RequestOpts: &gotgbot.RequestOpts{
					Timeout: time.Second * 10,
				},
			},
		})
		if err != nil {
			log.Fatalf("Failed to start polling: %v", err)
		}
	}()

	go auth.RunSweeper(context.Background())

	log.Printf("Bot started: @%s", b.User.Username)

	sink := utils.NewTelegramSink(b)
	webhookServer := gh.NewWebhookServer(cfg.GitHubWebhookSecret, reg, database, sink)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		page := fmt.Sprintf(`
		<html>
		<head><title>GitHub Webhook Bot</title></head>
		<body style="font-family: sans-serif; text-align: center; padding: 50px;">
			<h1>GitHub Webhook Bot</h1>
			<p>The bot is running.</p>
			<p><a href="https://t.me/%s" style="text-decoration: none; background-color: #0088cc; color: white; padding: 10px 20px; border-radius: 5px;">Open in Telegram</a></p>
		</body>
		</html>`, b.User.Username)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	})

	http.HandleFunc("/webhook/github", webhookServer.Handler)
	http.HandleFunc("/auth/github/callback", oauthCallbackHandler(b, auth, clientFactory))

	log.Printf("Server listening on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func oauthCallbackHandler(b *gotgbot.Bot, auth *gh.AuthService, factory *gh.ClientFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if query.Get("error") != "" {
			log.Printf("OAuth authorization denied: %s", query.Get("error"))
			writeCallbackPage(w, http.StatusBadRequest, "❌ Authorization Cancelled",
				"Authorization was denied or cancelled. Return to Telegram and run /auth to try again.")
			return
		}

		code := query.Get("code")
		state := query.Get("state")
		if code == "" || state == "" {
			writeCallbackPage(w, http.StatusBadRequest, "❌ Invalid Request",
				"Required parameters are missing. Return to Telegram and run /auth to try again.")
			return
		}

		token, accessToken, err := auth.ExchangeCode(r.Context(), code, state)
		if err != nil {
			status, title, detail := classifyExchangeError(err)
			log.Printf("OAuth exchange failed: %v", err)
			writeCallbackPage(w, status, title, detail)
			return
		}

		login := ""
		if u, err := factory.GetCurrentUser(r.Context(), accessToken); err == nil {
			login = u.GetLogin()
		} else {
			log.Printf("Failed to fetch profile for user %d: %v", token.UserID, err)
		}

		go func() {
			msg := "✅ GitHub account connected successfully!"
			if login != "" {
				msg = fmt.Sprintf("✅ GitHub account <b>%s</b> connected successfully!", login)
			}
			if _, err := b.SendMessage(token.UserID, msg, &gotgbot.SendMessageOpts{ParseMode: "HTML"}); err != nil {
				log.Printf("Failed to send confirmation to user %d: %v", token.UserID, err)
			}
		}()

		writeCallbackPage(w, http.StatusOK, "✅ Authorization Successful",
			"Your GitHub account has been connected. You can close this window and return to Telegram.")
	}
}

func classifyExchangeError(err error) (int, string, string) {
	switch {
	case errors.Is(err, gh.ErrStateNotFound):
		return http.StatusBadRequest, "❌ Authorization Failed",
			"This authorization link is not recognized. Return to Telegram and run /auth again."
	case errors.Is(err, gh.ErrStateExpired):
		return http.StatusBadRequest, "❌ Link Expired",
			"This authorization link has expired. Return to Telegram and run /auth again."
	case errors.Is(err, gh.ErrStateAlreadyUsed):
		return http.StatusBadRequest, "❌ Link Already Used",
			"This authorization link was already used. Return to Telegram and run /auth again."
	case errors.Is(err, db.ErrUnavailable):
		return http.StatusServiceUnavailable, "⏳ Temporarily Unavailable",
			"Storage is temporarily unavailable. Please try again in a moment."
	default:
		return http.StatusInternalServerError, "❌ Authorization Failed",
			"Failed to complete authorization. Return to Telegram and run /auth again."
	}
}

func writeCallbackPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page := fmt.Sprintf(`
	<html>
	<head><title>GitHub Authorization</title></head>
	<body style="font-family: sans-serif; text-align: center; padding: 50px;">
		<h1>%s</h1>
		<p>%s</p>
	</body>
	</html>`, title, detail)
	_, _ = w.Write([]byte(page))
}
