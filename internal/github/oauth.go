package github

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Scopes requested on every authorization: repository access, notification
// reads, user email and profile.
var OAuthScopes = []string{"repo", "read:notifications", "user:email", "read:user"}

type OAuth struct {
	OAuthConfig *oauth2.Config
}

func NewOAuth(cfg *config.Config) *OAuth {
	return &OAuth{
		OAuthConfig: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       OAuthScopes,
			RedirectURL:  cfg.BaseURL + "/auth/github/callback",
		},
	}
}

// LoginURL builds the GitHub authorize URL carrying the anti-forgery state.
func (o *OAuth) LoginURL(state string) string {
	return o.OAuthConfig.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access token.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return o.OAuthConfig.Exchange(ctx, code)
}

// GenerateState returns a 128-bit random token, hex encoded.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
