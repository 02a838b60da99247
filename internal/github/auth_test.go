package github

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/db"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/utils"

	"golang.org/x/oauth2"
)

const testEncryptionKey = "12345678901234567890123456789012"

// memAuthStore is an in-memory StateStore/TokenStore with the same atomic
// consume contract as the Mongo implementation.
type memAuthStore struct {
	mu     sync.Mutex
	states map[string]*models.AuthState
	tokens map[int64]*models.OAuthToken
}

func newMemAuthStore() *memAuthStore {
	return &memAuthStore{
		states: make(map[string]*models.AuthState),
		tokens: make(map[int64]*models.OAuthToken),
	}
}

func (m *memAuthStore) CreateAuthState(_ context.Context, state *models.AuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.State] = &cp
	return nil
}

func (m *memAuthStore) GetAuthState(_ context.Context, state string) (*models.AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memAuthStore) ConsumeAuthState(_ context.Context, state string, now time.Time) (*models.AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok || s.Used || !s.ExpiresAt.After(now) {
		return nil, db.ErrNotFound
	}
	s.Used = true
	cp := *s
	return &cp, nil
}

func (m *memAuthStore) DeleteExpiredAuthStates(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.states {
		if !s.ExpiresAt.After(now) {
			delete(m.states, k)
			n++
		}
	}
	return n, nil
}

func (m *memAuthStore) GetToken(_ context.Context, userID int64) (*models.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memAuthStore) UpsertToken(_ context.Context, token *models.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.UserID] = &cp
	return nil
}

func (m *memAuthStore) DeactivateToken(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[userID]; ok {
		t.Active = false
	}
	return nil
}

type fakeFlow struct {
	exchangeErr error
}

func (f *fakeFlow) LoginURL(state string) string {
	return "https://github.com/login/oauth/authorize?client_id=test-client&scope=repo&state=" + state
}

func (f *fakeFlow) ExchangeCode(_ context.Context, _ string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	tok := &oauth2.Token{AccessToken: "gho_testtoken", TokenType: "bearer"}
	return tok.WithExtra(map[string]interface{}{"scope": "repo,read:user"}), nil
}

func newTestAuth(store *memAuthStore, flow Flow) *AuthService {
	return NewAuthService(store, store, flow, testEncryptionKey)
}

// beginAndExtractState starts an authorization and returns the state token
// carried by the returned URL.
func beginAndExtractState(t *testing.T, svc *AuthService, userID int64) string {
	t.Helper()
	authURL, err := svc.BeginAuthorization(context.Background(), userID)
	if err != nil {
		t.Fatalf("BeginAuthorization() error = %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("BeginAuthorization() returned invalid URL %q: %v", authURL, err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatalf("authorize URL %q carries no state", authURL)
	}
	return state
}

func TestBeginAuthorizationIssuesBoundState(t *testing.T) {
	store := newMemAuthStore()
	svc := newTestAuth(store, &fakeFlow{})

	authURL, err := svc.BeginAuthorization(context.Background(), 42)
	if err != nil {
		t.Fatalf("BeginAuthorization() error = %v", err)
	}
	if !strings.Contains(authURL, "github.com/login/oauth/authorize") {
		t.Errorf("URL = %q, want GitHub authorize endpoint", authURL)
	}

	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")
	record, err := store.GetAuthState(context.Background(), state)
	if err != nil {
		t.Fatalf("state %q was not persisted: %v", state, err)
	}
	if record.UserID != 42 {
		t.Errorf("UserID = %d, want 42", record.UserID)
	}
	if record.Used {
		t.Error("a fresh state must not be marked used")
	}
	if got := record.ExpiresAt.Sub(record.CreatedAt); got != StateTTL {
		t.Errorf("validity window = %v, want %v", got, StateTTL)
	}
	if len(state) != 32 {
		t.Errorf("state length = %d hex chars, want 32 (128 bits)", len(state))
	}
}

func TestExchangeCodeSuccess(t *testing.T) {
	store := newMemAuthStore()
	svc := newTestAuth(store, &fakeFlow{})
	state := beginAndExtractState(t, svc, 42)

	token, plaintext, err := svc.ExchangeCode(context.Background(), "authcode", state)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if token.UserID != 42 {
		t.Errorf("UserID = %d, want 42", token.UserID)
	}
	if !token.Active {
		t.Error("exchanged token must be active")
	}
	if plaintext != "gho_testtoken" {
		t.Errorf("plaintext = %q, want gho_testtoken", plaintext)
	}

	// The stored token is encrypted at rest and decrypts to the plaintext.
	stored, err := store.GetToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if stored.EncryptedToken == plaintext {
		t.Error("token must not be stored in plaintext")
	}
	decrypted, err := utils.Decrypt(stored.EncryptedToken, testEncryptionKey)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}

	if !svc.IsAuthorized(context.Background(), 42) {
		t.Error("user should be authorized after exchange")
	}
}

func TestExchangeCodeStateNotFound(t *testing.T) {
	svc := newTestAuth(newMemAuthStore(), &fakeFlow{})

	_, _, err := svc.ExchangeCode(context.Background(), "authcode", "deadbeefdeadbeefdeadbeefdeadbeef")
	if !errors.Is(err, ErrStateNotFound) {
		t.Errorf("ExchangeCode() error = %v, want ErrStateNotFound", err)
	}
}

func TestExchangeCodeStateAlreadyUsed(t *testing.T) {
	store := newMemAuthStore()
	svc := newTestAuth(store, &fakeFlow{})
	state := beginAndExtractState(t, svc, 42)

	if _, _, err := svc.ExchangeCode(context.Background(), "authcode", state); err != nil {
		t.Fatalf("first ExchangeCode() error = %v", err)
	}
	_, _, err := svc.ExchangeCode(context.Background(), "authcode", state)
	if !errors.Is(err, ErrStateAlreadyUsed) {
		t.Errorf("second ExchangeCode() error = %v, want ErrStateAlreadyUsed", err)
	}
}

func TestExpiredStateAlwaysReportsExpired(t *testing.T) {
	tests := []struct {
		name string
		used bool
	}{
		{name: "expired and unused", used: false},
		{name: "expired and used", used: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemAuthStore()
			svc := newTestAuth(store, &fakeFlow{})

			past := time.Now().UTC().Add(-time.Hour)
			_ = store.CreateAuthState(context.Background(), &models.AuthState{
				State:     "expiredstate",
				UserID:    42,
				CreatedAt: past,
				ExpiresAt: past.Add(StateTTL),
				Used:      tt.used,
			})

			_, _, err := svc.ExchangeCode(context.Background(), "authcode", "expiredstate")
			if !errors.Is(err, ErrStateExpired) {
				t.Errorf("ExchangeCode() error = %v, want ErrStateExpired", err)
			}
		})
	}
}

func TestConcurrentExchangeConsumesExactlyOnce(t *testing.T) {
	store := newMemAuthStore()
	svc := newTestAuth(store, &fakeFlow{})
	state := beginAndExtractState(t, svc, 42)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = svc.ExchangeCode(context.Background(), "authcode", state)
		}(i)
	}
	wg.Wait()

	var successes, alreadyUsed int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrStateAlreadyUsed):
			alreadyUsed++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || alreadyUsed != 1 {
		t.Errorf("successes = %d, already-used = %d, want exactly 1 and 1", successes, alreadyUsed)
	}
}

func TestExchangeFailureAfterConsumeIsTerminal(t *testing.T) {
	store := newMemAuthStore()
	flow := &fakeFlow{exchangeErr: errors.New("upstream 502")}
	svc := newTestAuth(store, flow)
	state := beginAndExtractState(t, svc, 42)

	if _, _, err := svc.ExchangeCode(context.Background(), "authcode", state); err == nil {
		t.Fatal("ExchangeCode() should surface the upstream failure")
	}

	// The state was consumed before the network call; a retry cannot
	// replay it even though the exchange never completed.
	flow.exchangeErr = nil
	_, _, err := svc.ExchangeCode(context.Background(), "authcode", state)
	if !errors.Is(err, ErrStateAlreadyUsed) {
		t.Errorf("retry error = %v, want ErrStateAlreadyUsed", err)
	}
	if svc.IsAuthorized(context.Background(), 42) {
		t.Error("user must not be authorized after a failed exchange")
	}
}

func TestNewExchangeSupersedesOldToken(t *testing.T) {
	store := newMemAuthStore()
	svc := newTestAuth(store, &fakeFlow{})

	state1 := beginAndExtractState(t, svc, 42)
	if _, _, err := svc.ExchangeCode(context.Background(), "code1", state1); err != nil {
		t.Fatalf("first ExchangeCode() error = %v", err)
	}

	state2 := beginAndExtractState(t, svc, 42)
	second, _, err := svc.ExchangeCode(context.Background(), "code2", state2)
	if err != nil {
		t.Fatalf("second ExchangeCode() error = %v", err)
	}

	stored, err := store.GetToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if stored.EncryptedToken != second.EncryptedToken {
		t.Error("latest exchange should supersede the stored token")
	}
	if len(store.tokens) != 1 {
		t.Errorf("got %d token records, want 1 per owner", len(store.tokens))
	}
}

func TestLogoutDeactivatesWithoutDeleting(t *testing.T) {
	store := newMemAuthStore()
	svc := newTestAuth(store, &fakeFlow{})
	state := beginAndExtractState(t, svc, 42)

	if _, _, err := svc.ExchangeCode(context.Background(), "authcode", state); err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if err := svc.Logout(context.Background(), 42); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if svc.IsAuthorized(context.Background(), 42) {
		t.Error("user should not be authorized after logout")
	}
	stored, err := store.GetToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("token record should survive logout: %v", err)
	}
	if stored.Active {
		t.Error("token should be inactive after logout")
	}
	if _, err := svc.AccessToken(context.Background(), 42); !db.IsNotFound(err) {
		t.Errorf("AccessToken() after logout error = %v, want not-found", err)
	}
}

func TestIsAuthorizedWithoutToken(t *testing.T) {
	svc := newTestAuth(newMemAuthStore(), &fakeFlow{})
	if svc.IsAuthorized(context.Background(), 7) {
		t.Error("unknown user must not be authorized")
	}
}
