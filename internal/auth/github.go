// Package auth exchanges GitHub OAuth authorization codes for verified
// user identities.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"factorlab/internal/domain"
)

const (
	defaultOAuthURL = "https://github.com"
	defaultAPIURL   = "https://api.github.com"
)

// GitHubClient performs the OAuth code exchange against GitHub and loads
// the authenticated user's profile.
type GitHubClient struct {
	clientID     string
	clientSecret string
	oauthURL     string
	apiURL       string
	http         *http.Client
	log          *slog.Logger
}

// NewGitHubClient creates a client with the app's OAuth credentials.
func NewGitHubClient(clientID, clientSecret string, log *slog.Logger) *GitHubClient {
	return &GitHubClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		oauthURL:     defaultOAuthURL,
		apiURL:       defaultAPIURL,
		http:         &http.Client{Timeout: 15 * time.Second},
		log:          log.With("component", "github_auth"),
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Exchange trades an authorization code for an access token and returns the
// verified identity behind it. The token is used once and discarded; the
// service keeps no GitHub credentials.
func (c *GitHubClient) Exchange(ctx context.Context, code, redirectURI string) (*domain.User, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	token, err := c.exchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	gu, err := c.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}

	name := gu.Name
	if name == "" {
		name = gu.Login
	}
	user := &domain.User{
		ID:       "github:" + strconv.FormatInt(gu.ID, 10),
		Name:     name,
		Email:    gu.Email,
		Avatar:   gu.AvatarURL,
		Provider: "github",
	}
	c.log.Info("user authenticated", "user", user.ID)
	return user, nil
}

func (c *GitHubClient) exchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
	}
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.oauthURL+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.ExternalServiceError{Service: "github", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &domain.ExternalServiceError{Service: "github", Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &domain.ExternalServiceError{
			Service: "github",
			Message: fmt.Sprintf("token exchange status %d", resp.StatusCode),
		}
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", &domain.ExternalServiceError{Service: "github", Message: "invalid token response: " + err.Error()}
	}
	if tok.Error != "" {
		msg := tok.Error
		if tok.ErrorDescription != "" {
			msg += ": " + tok.ErrorDescription
		}
		return "", &domain.ExternalServiceError{Service: "github", Message: msg}
	}
	if tok.AccessToken == "" {
		return "", &domain.ExternalServiceError{Service: "github", Message: "no access token in response"}
	}
	return tok.AccessToken, nil
}

func (c *GitHubClient) fetchUser(ctx context.Context, token string) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "github", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ExternalServiceError{
			Service: "github",
			Message: fmt.Sprintf("user lookup status %d", resp.StatusCode),
		}
	}

	var gu githubUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&gu); err != nil {
		return nil, &domain.ExternalServiceError{Service: "github", Message: "invalid user response: " + err.Error()}
	}
	return &gu, nil
}
