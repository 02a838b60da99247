package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/db"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"
)

type memStore struct {
	mu   sync.Mutex
	subs []*models.Subscription
}

func (m *memStore) find(chatID int64, repoURL string) *models.Subscription {
	for _, s := range m.subs {
		if s.ChatID == chatID && s.RepositoryURL == repoURL {
			return s
		}
	}
	return nil
}

func (m *memStore) GetSubscription(_ context.Context, chatID int64, repoURL string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.find(chatID, repoURL); s != nil {
		cp := *s
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *memStore) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(sub.ChatID, sub.RepositoryURL)
	if s == nil {
		return db.ErrNotFound
	}
	s.Events = sub.Events
	s.Active = sub.Active
	s.UpdatedAt = sub.UpdatedAt
	return nil
}

func (m *memStore) GetChatSubscriptions(_ context.Context, chatID int64) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, s := range m.subs {
		if s.ChatID == chatID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) GetActiveSubscriptionsForRepo(_ context.Context, repoURL string) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, s := range m.subs {
		if s.RepositoryURL == repoURL && s.Active {
			out = append(out, *s)
		}
	}
	return out, nil
}

const repoURL = "https://github.com/acme/widgets"

func TestSubscribeDefaults(t *testing.T) {
	reg := New(&memStore{})

	sub, err := reg.Subscribe(context.Background(), 100, repoURL, nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if !sub.Active {
		t.Error("new subscription should be active")
	}
	if len(sub.Events) != len(DefaultEvents) {
		t.Errorf("Events = %v, want defaults %v", sub.Events, DefaultEvents)
	}
}

func TestSubscribeTwiceUpdatesInPlace(t *testing.T) {
	store := &memStore{}
	reg := New(store)
	ctx := context.Background()

	if _, err := reg.Subscribe(ctx, 100, repoURL, []string{"push", "issues"}); err != nil {
		t.Fatalf("first Subscribe() error = %v", err)
	}
	if _, err := reg.Subscribe(ctx, 100, repoURL, []string{"pull_request"}); err != nil {
		t.Fatalf("second Subscribe() error = %v", err)
	}

	subs, _ := reg.List(ctx, 100)
	if len(subs) != 1 {
		t.Fatalf("got %d records, want exactly 1", len(subs))
	}
	if len(subs[0].Events) != 1 || subs[0].Events[0] != "pull_request" {
		t.Errorf("Events = %v, want [pull_request]", subs[0].Events)
	}
	if !subs[0].Active {
		t.Error("record should be active after re-subscribe")
	}
}

func TestUnsubscribeSoftDeletes(t *testing.T) {
	reg := New(&memStore{})
	ctx := context.Background()

	if _, err := reg.Subscribe(ctx, 100, repoURL, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := reg.Unsubscribe(ctx, 100, repoURL); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	subs, _ := reg.List(ctx, 100)
	if len(subs) != 1 {
		t.Fatalf("got %d records, want 1 (soft delete keeps history)", len(subs))
	}
	if subs[0].Active {
		t.Error("record should be inactive after unsubscribe")
	}

	active, _ := reg.ActiveForRepository(ctx, repoURL)
	if len(active) != 0 {
		t.Errorf("got %d active subscriptions, want 0", len(active))
	}
}

func TestUnsubscribeThenSubscribeReactivates(t *testing.T) {
	reg := New(&memStore{})
	ctx := context.Background()

	if _, err := reg.Subscribe(ctx, 100, repoURL, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := reg.Unsubscribe(ctx, 100, repoURL); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if _, err := reg.Subscribe(ctx, 100, repoURL, []string{"issues"}); err != nil {
		t.Fatalf("re-Subscribe() error = %v", err)
	}

	subs, _ := reg.List(ctx, 100)
	if len(subs) != 1 {
		t.Fatalf("got %d records, want exactly 1 (reactivate, never duplicate)", len(subs))
	}
	if !subs[0].Active {
		t.Error("record should be active again")
	}
	if len(subs[0].Events) != 1 || subs[0].Events[0] != "issues" {
		t.Errorf("Events = %v, want [issues]", subs[0].Events)
	}
}

func TestUnsubscribeUnknownRepo(t *testing.T) {
	reg := New(&memStore{})

	err := reg.Unsubscribe(context.Background(), 100, repoURL)
	if !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotSubscribed", err)
	}
}
