package github

import (
	"context"

	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

type ClientFactory struct {
}

func NewClientFactory() *ClientFactory {
	return &ClientFactory{}
}

// GetUserClient returns a GitHub client authenticated as a specific user
// (via OAuth access token).
func (f *ClientFactory) GetUserClient(ctx context.Context, accessToken string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	tc := oauth2.NewClient(ctx, ts)
	return github.NewClient(tc)
}

// GetCurrentUser fetches the profile of the token's owner.
func (f *ClientFactory) GetCurrentUser(ctx context.Context, accessToken string) (*github.User, error) {
	client := f.GetUserClient(ctx, accessToken)
	u, _, err := client.Users.Get(ctx, "")
	return u, err
}
