// Package auth obtains bearer credentials from the external identity
// provider. The provider's protocol stays behind two questions: "get a
// currently valid token" and "am I authenticated".
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/constants"
	internalhttp "github.com/proptour/proptour-cli/internal/http"
)

// ErrNotConfigured indicates the identity provider settings are absent.
var ErrNotConfigured = errors.New("identity provider is not configured")

// TokenSource yields bearer credentials on demand.
type TokenSource interface {
	// Token returns a currently valid bearer token, refreshing if needed.
	Token(ctx context.Context) (string, error)

	// IsAuthenticated reports whether credentials are configured and the
	// last exchange (if any) has not been invalidated.
	IsAuthenticated() bool
}

// ClientCredentials exchanges a client id/secret for short-lived bearer
// tokens and caches each token until shortly before expiry.
type ClientCredentials struct {
	httpClient *nethttp.Client
	domain     string
	clientID   string
	secret     string
	audience   string

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClientCredentials builds a token source from the auth configuration.
func NewClientCredentials(cfg *config.Config) *ClientCredentials {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = internalhttp.NewClient()
	retryClient.RetryMax = constants.APIRetryMax
	retryClient.RetryWaitMin = constants.APIRetryWaitMin
	retryClient.RetryWaitMax = constants.APIRetryWaitMax
	retryClient.Logger = nil

	return &ClientCredentials{
		httpClient: retryClient.StandardClient(),
		domain:     cfg.Auth.Domain,
		clientID:   cfg.Auth.ClientID,
		secret:     cfg.Auth.ClientSecret,
		audience:   cfg.Auth.Audience,
	}
}

// IsAuthenticated reports whether the provider settings are present.
func (c *ClientCredentials) IsAuthenticated() bool {
	return strings.TrimSpace(c.domain) != "" && strings.TrimSpace(c.clientID) != ""
}

// Token returns the cached token while it is fresh, otherwise performs one
// client-credentials exchange.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	if !c.IsAuthenticated() {
		return "", ErrNotConfigured
	}

	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.expiry.Add(-constants.TokenExpiryMargin)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, expiry, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = token
	c.expiry = expiry
	c.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached token, forcing the next Token call to
// exchange again.
func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

func (c *ClientCredentials) exchange(ctx context.Context) (string, time.Time, error) {
	reqBody := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.clientID,
		"client_secret": c.secret,
		"audience":      c.audience,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, "POST", c.tokenURL(), bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", time.Time{}, errors.New("token response carried no access_token")
	}

	expiresIn := result.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return result.AccessToken, time.Now().Add(time.Duration(expiresIn) * time.Second), nil
}

// tokenURL accepts either a bare domain or a full URL in the config.
func (c *ClientCredentials) tokenURL() string {
	domain := strings.TrimSuffix(c.domain, "/")
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain + "/oauth/token"
}
