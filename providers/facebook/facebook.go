// Package facebook implements the OAuth client the signed-state codec
// protects: authorization URLs carry a tamper-evident state naming the
// frontend origin to return to, and the callback verifies it before any
// redirect or code exchange happens.
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	oauthfacebook "golang.org/x/oauth2/facebook"

	"github.com/eventgate/admission/security"
)

// providerName is the name returned by Provider.Name().
const providerName = "facebook"

// defaultGraphVersion is the Graph API version used when none is configured.
const defaultGraphVersion = "v19.0"

// ErrStateRejected is returned when a callback state fails verification.
// The underlying cause is wrapped for logging.
var ErrStateRejected = errors.New("callback state rejected")

// Config holds Facebook OAuth configuration.
type Config struct {
	// AppID is the Facebook app ID.
	AppID string

	// AppSecret is the Facebook app secret. Also keys the appsecret_proof
	// on server-side Graph calls.
	AppSecret string

	// RedirectURL is the OAuth callback URL registered with the app.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to ["public_profile"]).
	Scopes []string

	// StateSecret signs the state parameter. Required, and independent
	// from AppSecret so the two can rotate separately.
	StateSecret string

	// AllowedOrigins is the allow-list of frontend origins a callback may
	// redirect back to.
	AllowedOrigins []string

	// GraphVersion is the Graph API version (defaults to v19.0).
	GraphVersion string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for Graph API calls (default: 30s).
	RequestTimeout time.Duration
}

// Provider implements the Facebook OAuth flow.
type Provider struct {
	*oauth2.Config

	appSecret      string
	stateSecret    string
	allowedOrigins []string
	httpClient     *http.Client
	requestTimeout time.Duration

	// graphBaseURL is overridable in tests.
	graphBaseURL string
}

// NewProvider creates a Facebook OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if cfg.AppSecret == "" {
		return nil, fmt.Errorf("app secret is required")
	}
	if cfg.StateSecret == "" {
		return nil, fmt.Errorf("state secret is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("at least one allowed origin is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"public_profile"}
	}
	scopesCopy := make([]string, len(scopes))
	copy(scopesCopy, scopes)

	originsCopy := make([]string, len(cfg.AllowedOrigins))
	copy(originsCopy, cfg.AllowedOrigins)

	version := cfg.GraphVersion
	if version == "" {
		version = defaultGraphVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Provider{
		Config: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopesCopy,
			Endpoint:     oauthfacebook.Endpoint,
		},
		appSecret:      cfg.AppSecret,
		stateSecret:    cfg.StateSecret,
		allowedOrigins: originsCopy,
		httpClient:     httpClient,
		requestTimeout: timeout,
		graphBaseURL:   "https://graph.facebook.com/" + version,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthURL builds the authorization URL for a login that should land back on
// origin. The origin travels inside the signed state; the callback refuses
// to honor it unless the signature verifies and the origin is allowed.
func (p *Provider) AuthURL(origin string) string {
	state := security.EncodeState(origin, p.stateSecret)
	return p.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// VerifyCallbackState verifies the state returned by the provider callback
// and returns the origin to redirect to. The error wraps the specific
// rejection cause for logging; callers must not redirect on any error.
func (p *Provider) VerifyCallbackState(state string) (string, error) {
	res := security.DecodeState(state, p.stateSecret, p.allowedOrigins)
	if !res.Valid {
		return "", fmt.Errorf("%w: %w", ErrStateRejected, res.Err)
	}
	return res.Origin, nil
}

// Exchange swaps an authorization code for a short-lived user access token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return token, nil
}

// ExchangeLongLived trades a short-lived user token for a long-lived one via
// the fb_exchange_token grant.
func (p *Provider) ExchangeLongLived(ctx context.Context, shortLived string) (*oauth2.Token, error) {
	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", p.ClientID)
	q.Set("client_secret", p.appSecret)
	q.Set("fb_exchange_token", shortLived)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.graphBaseURL+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("long-lived token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("long-lived token exchange failed: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding exchange response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("exchange response carries no access token")
	}

	token := &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
	}
	if body.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return token, nil
}

// AppSecretProof returns the appsecret_proof parameter Graph API calls made
// with accessToken should carry.
func (p *Provider) AppSecretProof(accessToken string) string {
	return security.AppSecretProof(accessToken, p.appSecret)
}

func (p *Provider) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.requestTimeout)
}
