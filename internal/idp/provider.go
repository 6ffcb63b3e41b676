package idp

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrMissingEmail is returned when the provider profile carries no email.
var ErrMissingEmail = errors.New("user info has no email")

// UserInfo is the profile returned by an identity provider.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Provider abstracts the identity provider used for admin sign-in.
type Provider interface {
	// Type returns the provider identifier, e.g. "google".
	Type() string

	// AuthURL builds the authorization URL carrying state.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the signed-in user's profile.
	UserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error)
}
