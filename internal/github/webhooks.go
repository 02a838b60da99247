package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/google/go-github/v80/github"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	eventTypeHeader = "X-GitHub-Event"

	// GitHub caps webhook payloads at 25 MB.
	maxPayloadBytes = 25 << 20

	// SendTimeout bounds one delivery to one chat.
	SendTimeout = 10 * time.Second
)

// SubscriptionSource yields the active subscriptions for a repository.
// *registry.Registry satisfies it.
type SubscriptionSource interface {
	ActiveForRepository(ctx context.Context, repositoryURL string) ([]models.Subscription, error)
}

// DeliveryLogger records delivery outcomes. *db.DB satisfies it.
type DeliveryLogger interface {
	LogDelivery(ctx context.Context, entry *models.DeliveryLogEntry) error
}

// Sink delivers one rendered message to one chat. The Telegram
// implementation lives in internal/utils.
type Sink interface {
	Send(ctx context.Context, chatID int64, text string, markup *gotgbot.InlineKeyboardMarkup) error
}

// WebhookServer verifies inbound GitHub webhooks and fans matching events
// out to subscribed chats.
type WebhookServer struct {
	Secret []byte
	Subs   SubscriptionSource
	Logs   DeliveryLogger
	Sink   Sink
}

func NewWebhookServer(secret string, subs SubscriptionSource, logs DeliveryLogger, sink Sink) *WebhookServer {
	return &WebhookServer{
		Secret: []byte(secret),
		Subs:   subs,
		Logs:   logs,
		Sink:   sink,
	}
}

// VerifySignature checks the sha256=<hex> HMAC of the exact raw body against
// the shared secret, in constant time.
func VerifySignature(body []byte, signature string, secret []byte) error {
	if signature == "" {
		return errors.New("missing signature header")
	}
	return github.ValidateSignature(signature, body, secret)
}

// Handler terminates the webhook endpoint. The signature is verified over
// the raw bytes before anything is parsed; unverified payloads are never
// inspected. Accepted requests get 200 even when nothing matches, so GitHub
// does not hammer us with redeliveries.
func (s *WebhookServer) Handler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		log.Printf("Failed to read webhook body: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := VerifySignature(body, r.Header.Get(signatureHeader), s.Secret); err != nil {
		log.Printf("Webhook signature validation failed: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get(eventTypeHeader)
	if eventType == "" {
		log.Printf("Webhook missing %s header", eventTypeHeader)
		http.Error(w, "Missing event type", http.StatusBadRequest)
		return
	}

	go func() {
		if err := s.ProcessEvent(context.Background(), eventType, body); err != nil {
			log.Printf("Error processing %s event: %v", eventType, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// repositoryPeek is the minimal shape needed to route an event. Extracting
// the repository identity must not depend on full event schemas, since
// unsupported event types still need an identity to log against.
type repositoryPeek struct {
	Repository struct {
		HTMLURL string `json:"html_url"`
	} `json:"repository"`
}

func peekRepositoryURL(body []byte) string {
	var peek repositoryPeek
	if err := json.Unmarshal(body, &peek); err != nil {
		return ""
	}
	return peek.Repository.HTMLURL
}

// ProcessEvent routes one verified event: resolve the repository, find
// active subscriptions, parse and render supported kinds, and deliver to
// each matching chat independently. A failed delivery to one chat never
// blocks or fails the others; every attempt is logged.
func (s *WebhookServer) ProcessEvent(ctx context.Context, eventType string, body []byte) error {
	repoURL := peekRepositoryURL(body)
	if repoURL == "" {
		log.Printf("Could not extract repository URL from %s event", eventType)
		return nil
	}

	subs, err := s.Subs.ActiveForRepository(ctx, repoURL)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		log.Printf("No subscriptions for %s", repoURL)
		return nil
	}

	if !IsSupportedEvent(eventType) {
		log.Printf("Unsupported event type %q for %s", eventType, repoURL)
		return nil
	}

	event, err := github.ParseWebHook(eventType, body)
	if err != nil {
		// Acknowledged upstream already; a malformed payload is logged,
		// not retried.
		log.Printf("Failed to parse %s payload for %s: %v", eventType, repoURL, err)
		return nil
	}

	msg, markup := s.formatMessage(event)
	if msg == "" {
		return nil
	}
	msg = normalizeMessage(msg)

	var wg sync.WaitGroup
	for _, sub := range subs {
		if !sub.HasEvent(eventType) {
			continue
		}

		wg.Add(1)
		go func(sub models.Subscription) {
			defer wg.Done()
			s.deliver(ctx, sub, repoURL, eventType, msg, markup)
		}(sub)
	}
	wg.Wait()

	return nil
}

func (s *WebhookServer) deliver(ctx context.Context, sub models.Subscription, repoURL, eventType, msg string, markup *gotgbot.InlineKeyboardMarkup) {
	sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	sendErr := s.Sink.Send(sendCtx, sub.ChatID, msg, markup)
	if sendErr != nil {
		log.Printf("Error delivering %s event to chat %d: %v", eventType, sub.ChatID, sendErr)
	}

	entry := &models.DeliveryLogEntry{
		ChatID:        sub.ChatID,
		RepositoryURL: repoURL,
		EventType:     eventType,
		Message:       msg,
		Success:       sendErr == nil,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.Logs.LogDelivery(ctx, entry); err != nil {
		log.Printf("Failed to log delivery for chat %d: %v", sub.ChatID, err)
	}
}

func (s *WebhookServer) formatMessage(event interface{}) (string, *gotgbot.InlineKeyboardMarkup) {
	switch e := event.(type) {
	case *github.PushEvent:
		return FormatPushEvent(e)
	case *github.PullRequestEvent:
		return FormatPullRequestEvent(e)
	case *github.IssuesEvent:
		return FormatIssuesEvent(e)
	default:
		return "", nil
	}
}

// normalizeMessage trims trailing spaces on each line and collapses 3+
// consecutive newlines into 2.
func normalizeMessage(s string) string {
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	out := strings.Join(lines, "\n")

	re := regexp.MustCompile(`\n{3,}`)
	out = re.ReplaceAllString(out, "\n\n")

	return strings.TrimSpace(out)
}
