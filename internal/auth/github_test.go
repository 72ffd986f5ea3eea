package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"factorlab/internal/domain"
	"factorlab/internal/util"
)

func newTestClient(t *testing.T, oauth, api http.Handler) *GitHubClient {
	t.Helper()
	oauthSrv := httptest.NewServer(oauth)
	apiSrv := httptest.NewServer(api)
	t.Cleanup(oauthSrv.Close)
	t.Cleanup(apiSrv.Close)

	c := NewGitHubClient("client-id", "client-secret", util.NewLogger("error"))
	c.oauthURL = oauthSrv.URL
	c.apiURL = apiSrv.URL
	return c
}

func TestExchange(t *testing.T) {
	oauth := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if r.Form.Get("code") != "abc123" || r.Form.Get("client_id") != "client-id" {
			t.Errorf("form = %v", r.Form)
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(githubUser{
			ID:        42,
			Login:     "quantdev",
			Email:     "quant@example.com",
			AvatarURL: "https://example.com/a.png",
		})
	})

	c := newTestClient(t, oauth, api)
	user, err := c.Exchange(context.Background(), "abc123", "http://localhost/callback")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if user.ID != "github:42" {
		t.Errorf("ID = %q", user.ID)
	}
	if user.Name != "quantdev" {
		t.Errorf("Name = %q, want login fallback when display name is empty", user.Name)
	}
	if user.Provider != "github" {
		t.Errorf("Provider = %q", user.Provider)
	}
}

func TestExchangeBadCode(t *testing.T) {
	oauth := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
	})
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("user endpoint should not be reached")
	})

	c := newTestClient(t, oauth, api)
	_, err := c.Exchange(context.Background(), "expired", "")

	var extErr *domain.ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
	if extErr.Service != "github" {
		t.Errorf("service = %q", extErr.Service)
	}
}

func TestExchangeEmptyCode(t *testing.T) {
	c := NewGitHubClient("id", "secret", util.NewLogger("error"))
	if _, err := c.Exchange(context.Background(), "  ", ""); err == nil {
		t.Error("expected error for blank code")
	}
}
