package facebook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/eventgate/admission/security"
)

func testConfig() *Config {
	return &Config{
		AppID:          "123456",
		AppSecret:      "app-secret",
		RedirectURL:    "https://api.example.com/oauth/callback",
		StateSecret:    "state-secret",
		AllowedOrigins: []string{"https://app.example.com"},
	}
}

func TestNewProviderValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing app ID", mutate: func(c *Config) { c.AppID = "" }},
		{name: "missing app secret", mutate: func(c *Config) { c.AppSecret = "" }},
		{name: "missing state secret", mutate: func(c *Config) { c.StateSecret = "" }},
		{name: "no allowed origins", mutate: func(c *Config) { c.AllowedOrigins = nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			if _, err := NewProvider(cfg); err == nil {
				t.Error("NewProvider accepted an invalid config")
			}
		})
	}
}

func TestAuthURLCarriesSignedState(t *testing.T) {
	p, err := NewProvider(testConfig())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	authURL := p.AuthURL("https://app.example.com")
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("AuthURL produced an unparsable URL: %v", err)
	}
	if !strings.Contains(parsed.Host, "facebook.com") {
		t.Errorf("auth URL host = %q, want a facebook.com endpoint", parsed.Host)
	}
	if got := parsed.Query().Get("client_id"); got != "123456" {
		t.Errorf("client_id = %q, want 123456", got)
	}

	state := parsed.Query().Get("state")
	res := security.DecodeState(state, "state-secret", []string{"https://app.example.com"})
	if !res.Valid {
		t.Fatalf("auth URL state does not verify: %v", res.Err)
	}
	if res.Origin != "https://app.example.com" {
		t.Errorf("state origin = %q, want https://app.example.com", res.Origin)
	}
}

func TestVerifyCallbackState(t *testing.T) {
	p, err := NewProvider(testConfig())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	origin, err := p.VerifyCallbackState(security.EncodeState("https://app.example.com", "state-secret"))
	if err != nil {
		t.Fatalf("VerifyCallbackState rejected a valid state: %v", err)
	}
	if origin != "https://app.example.com" {
		t.Errorf("origin = %q, want https://app.example.com", origin)
	}

	if _, err := p.VerifyCallbackState("forged|deadbeef"); !errors.Is(err, ErrStateRejected) {
		t.Errorf("forged state error = %v, want ErrStateRejected", err)
	}

	foreign := security.EncodeState("https://evil.example.com", "state-secret")
	_, err = p.VerifyCallbackState(foreign)
	if !errors.Is(err, ErrStateRejected) {
		t.Fatalf("foreign origin error = %v, want ErrStateRejected", err)
	}
	if !errors.Is(err, security.ErrOriginNotAllowed) {
		t.Errorf("foreign origin error = %v, want wrapped ErrOriginNotAllowed", err)
	}
}

func TestExchangeLongLived(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"long-lived-token","token_type":"bearer","expires_in":5184000}`))
	}))
	defer server.Close()

	p, err := NewProvider(testConfig())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	p.graphBaseURL = server.URL

	token, err := p.ExchangeLongLived(context.Background(), "short-lived-token")
	if err != nil {
		t.Fatalf("ExchangeLongLived failed: %v", err)
	}
	if token.AccessToken != "long-lived-token" {
		t.Errorf("AccessToken = %q, want long-lived-token", token.AccessToken)
	}
	if token.Expiry.IsZero() {
		t.Error("token has no expiry despite expires_in in the response")
	}

	if got := gotQuery.Get("grant_type"); got != "fb_exchange_token" {
		t.Errorf("grant_type = %q, want fb_exchange_token", got)
	}
	if got := gotQuery.Get("fb_exchange_token"); got != "short-lived-token" {
		t.Errorf("fb_exchange_token = %q, want short-lived-token", got)
	}
	if got := gotQuery.Get("client_secret"); got != "app-secret" {
		t.Errorf("client_secret = %q, want app-secret", got)
	}
}

func TestExchangeLongLivedErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	p, err := NewProvider(testConfig())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	p.graphBaseURL = server.URL

	if _, err := p.ExchangeLongLived(context.Background(), "bad-token"); err == nil {
		t.Error("ExchangeLongLived succeeded on an error response")
	}
}

func TestAppSecretProof(t *testing.T) {
	p, err := NewProvider(testConfig())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	proof := p.AppSecretProof("user-token")
	if proof != security.AppSecretProof("user-token", "app-secret") {
		t.Error("AppSecretProof does not match the HMAC engine's computation")
	}
}
