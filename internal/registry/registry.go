// Package registry manages chat subscriptions to repository events.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/db"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"
)

// DefaultEvents is the event set a new subscription gets when the user does
// not name any.
var DefaultEvents = []string{"push", "pull_request", "issues"}

// ErrNotSubscribed is returned by Unsubscribe when the chat has no record for
// the repository.
var ErrNotSubscribed = errors.New("not subscribed to this repository")

// Store is the persistence the registry needs. *db.DB satisfies it.
type Store interface {
	GetSubscription(ctx context.Context, chatID int64, repositoryURL string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	GetChatSubscriptions(ctx context.Context, chatID int64) ([]models.Subscription, error)
	GetActiveSubscriptionsForRepo(ctx context.Context, repositoryURL string) ([]models.Subscription, error)
}

type Registry struct {
	store Store
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// Subscribe upserts a subscription. An existing record, active or not, gets
// the new event set and is reactivated; there is never more than one record
// per (chat, repository). An empty events slice means DefaultEvents.
func (r *Registry) Subscribe(ctx context.Context, chatID int64, repositoryURL string, events []string) (*models.Subscription, error) {
	if len(events) == 0 {
		events = append([]string(nil), DefaultEvents...)
	}

	now := time.Now().UTC()

	existing, err := r.store.GetSubscription(ctx, chatID, repositoryURL)
	switch {
	case err == nil:
		existing.Events = events
		existing.Active = true
		existing.UpdatedAt = now
		if err := r.store.UpdateSubscription(ctx, existing); err != nil {
			return nil, fmt.Errorf("update subscription: %w", err)
		}
		return existing, nil
	case db.IsNotFound(err):
		sub := &models.Subscription{
			ChatID:        chatID,
			RepositoryURL: repositoryURL,
			Events:        events,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := r.store.CreateSubscription(ctx, sub); err != nil {
			return nil, fmt.Errorf("create subscription: %w", err)
		}
		return sub, nil
	default:
		return nil, err
	}
}

// Unsubscribe deactivates the subscription. The record stays around so a
// later Subscribe reactivates it instead of creating a duplicate.
func (r *Registry) Unsubscribe(ctx context.Context, chatID int64, repositoryURL string) error {
	sub, err := r.store.GetSubscription(ctx, chatID, repositoryURL)
	if err != nil {
		if db.IsNotFound(err) {
			return ErrNotSubscribed
		}
		return err
	}

	sub.Active = false
	sub.UpdatedAt = time.Now().UTC()
	return r.store.UpdateSubscription(ctx, sub)
}

// List returns all of a chat's subscriptions, including inactive ones.
func (r *Registry) List(ctx context.Context, chatID int64) ([]models.Subscription, error) {
	return r.store.GetChatSubscriptions(ctx, chatID)
}

// ActiveForRepository returns every active subscription for a repository.
func (r *Registry) ActiveForRepository(ctx context.Context, repositoryURL string) ([]models.Subscription, error) {
	return r.store.GetActiveSubscriptionsForRepo(ctx, repositoryURL)
}
