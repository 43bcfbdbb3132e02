package github

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// OAuthConfig holds GitHub OAuth application settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint overrides the github.com endpoints, for GitHub Enterprise
	// and tests.
	Endpoint *oauth2.Endpoint
	// HTTPClient is used for the token exchange when set.
	HTTPClient *http.Client
}

// WebFlow performs the OAuth web application flow against GitHub.
type WebFlow struct {
	oauth2Config *oauth2.Config
	httpClient   *http.Client
}

// NewWebFlow creates a web flow for the given application.
func NewWebFlow(cfg OAuthConfig) (*WebFlow, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("github client id and secret are required")
	}
	endpoint := githuboauth.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &WebFlow{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		httpClient: cfg.HTTPClient,
	}, nil
}

// AuthCodeURL returns the GitHub authorize link for state.
func (f *WebFlow) AuthCodeURL(state string) string {
	return f.oauth2Config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a user access token.
func (f *WebFlow) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("missing authorization code")
	}
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	token, err := f.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}
	return token.AccessToken, nil
}
