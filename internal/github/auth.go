package github

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/db"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/utils"

	"golang.org/x/oauth2"
)

const (
	// StateTTL is how long an issued authorization state stays valid.
	StateTTL = 10 * time.Minute

	// ExchangeTimeout bounds the code-for-token network call so a hung
	// upstream cannot occupy request capacity indefinitely.
	ExchangeTimeout = 10 * time.Second

	// SweepInterval is how often expired states are purged.
	SweepInterval = 5 * time.Minute
)

// StateStore persists authorization states. Consume must be atomic: under
// concurrent duplicate callbacks for the same state, at most one call may
// succeed. *db.DB satisfies it.
type StateStore interface {
	CreateAuthState(ctx context.Context, state *models.AuthState) error
	GetAuthState(ctx context.Context, state string) (*models.AuthState, error)
	ConsumeAuthState(ctx context.Context, state string, now time.Time) (*models.AuthState, error)
	DeleteExpiredAuthStates(ctx context.Context, now time.Time) (int64, error)
}

// TokenStore persists access tokens, one per user. *db.DB satisfies it.
type TokenStore interface {
	GetToken(ctx context.Context, userID int64) (*models.OAuthToken, error)
	UpsertToken(ctx context.Context, token *models.OAuthToken) error
	DeactivateToken(ctx context.Context, userID int64) error
}

// Flow is the OAuth front: authorize-URL construction and the code-for-token
// exchange. *OAuth satisfies it.
type Flow interface {
	LoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
}

// AuthService drives the delegated-authorization handshake: it issues
// identity-bound states, consumes each exactly once, and exchanges the
// callback code for an access token.
type AuthService struct {
	States        StateStore
	Tokens        TokenStore
	Flow          Flow
	EncryptionKey string
}

func NewAuthService(states StateStore, tokens TokenStore, flow Flow, encryptionKey string) *AuthService {
	return &AuthService{
		States:        states,
		Tokens:        tokens,
		Flow:          flow,
		EncryptionKey: encryptionKey,
	}
}

// BeginAuthorization issues a fresh state bound to the user and returns the
// GitHub authorize URL to send them to. The only side effect is one persisted
// state record; no network call happens here.
func (s *AuthService) BeginAuthorization(ctx context.Context, userID int64) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	now := time.Now().UTC()
	record := &models.AuthState{
		State:     state,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(StateTTL),
	}
	if err := s.States.CreateAuthState(ctx, record); err != nil {
		return "", fmt.Errorf("persist auth state: %w", err)
	}

	return s.Flow.LoginURL(state), nil
}

// ExchangeCode validates and consumes the state, then trades the code for an
// access token and persists it, superseding any previous token for the user.
// The state is marked used before the network call, so a duplicate callback
// can never replay it; if the exchange then fails, the failure is terminal
// and the user must start over.
//
// Returns the stored token record and the plaintext access token.
func (s *AuthService) ExchangeCode(ctx context.Context, code, state string) (*models.OAuthToken, string, error) {
	now := time.Now().UTC()

	record, err := s.States.ConsumeAuthState(ctx, state, now)
	if err != nil {
		if !db.IsNotFound(err) {
			return nil, "", err
		}
		return nil, "", s.classifyStateMiss(ctx, state, now)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, ExchangeTimeout)
	defer cancel()

	tok, err := s.Flow.ExchangeCode(exchangeCtx, code)
	if err != nil {
		return nil, "", fmt.Errorf("exchange code for user %d: %w", record.UserID, err)
	}

	encrypted, err := utils.Encrypt(tok.AccessToken, s.EncryptionKey)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt token for user %d: %w", record.UserID, err)
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	scope, _ := tok.Extra("scope").(string)

	stored := &models.OAuthToken{
		UserID:         record.UserID,
		EncryptedToken: encrypted,
		TokenType:      tokenType,
		Scope:          scope,
		CreatedAt:      now,
		Active:         true,
	}
	if err := s.Tokens.UpsertToken(ctx, stored); err != nil {
		return nil, "", fmt.Errorf("persist token for user %d: %w", record.UserID, err)
	}

	return stored, tok.AccessToken, nil
}

// classifyStateMiss distinguishes why the conditional consume matched
// nothing. Expiry wins over used: a state past its window is reported
// expired no matter what its used flag says.
func (s *AuthService) classifyStateMiss(ctx context.Context, state string, now time.Time) error {
	record, err := s.States.GetAuthState(ctx, state)
	if err != nil {
		if db.IsNotFound(err) {
			return ErrStateNotFound
		}
		return err
	}
	if now.After(record.ExpiresAt) {
		return ErrStateExpired
	}
	return ErrStateAlreadyUsed
}

// IsAuthorized reports whether the user has an active token.
func (s *AuthService) IsAuthorized(ctx context.Context, userID int64) bool {
	token, err := s.Tokens.GetToken(ctx, userID)
	return err == nil && token.Active
}

// AccessToken returns the user's decrypted access token.
func (s *AuthService) AccessToken(ctx context.Context, userID int64) (string, error) {
	token, err := s.Tokens.GetToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if !token.Active {
		return "", db.ErrNotFound
	}
	return utils.Decrypt(token.EncryptedToken, s.EncryptionKey)
}

// Logout deactivates the user's token. The record is kept for history.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	return s.Tokens.DeactivateToken(ctx, userID)
}

// RunSweeper purges expired authorization states until ctx is cancelled.
// Purely hygienic; the consume path never trusts an expired state anyway.
func (s *AuthService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.States.DeleteExpiredAuthStates(ctx, time.Now().UTC())
			if err != nil {
				log.Printf("Auth state sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Swept %d expired auth states", n)
			}
		}
	}
}
