package midtier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenExpiryMargin refreshes slightly early so a token never expires
// mid-handshake.
const tokenExpiryMargin = time.Minute

// TokenFunc fetches a fresh bearer token and its expiry.
type TokenFunc func(ctx context.Context) (token string, expiry time.Time, err error)

// TokenCache caches a bearer token across sessions and refreshes it when
// it nears expiry. Safe for concurrent use.
type TokenCache struct {
	mu     sync.Mutex
	fetch  TokenFunc
	token  string
	expiry time.Time
}

func NewTokenCache(fetch TokenFunc) *TokenCache {
	return &TokenCache{fetch: fetch}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry.Add(-tokenExpiryMargin)) {
		return c.token, nil
	}

	token, expiry, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expiry = expiry
	return token, nil
}

// ClientCredentialsToken returns a TokenFunc that performs an OAuth2
// client-credentials grant against the given token endpoint.
func ClientCredentialsToken(tokenURL, clientID, clientSecret, scope string) TokenFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		form := url.Values{}
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
		form.Set("grant_type", "client_credentials")
		form.Set("scope", scope)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", time.Time{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", time.Time{}, fmt.Errorf("token request failed: %s", resp.Status)
		}

		var result struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", time.Time{}, err
		}
		if result.AccessToken == "" {
			return "", time.Time{}, fmt.Errorf("token response missing access_token")
		}

		return result.AccessToken, time.Now().Add(time.Duration(result.ExpiresIn) * time.Second), nil
	}
}
