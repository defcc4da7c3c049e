// Package uss asks the UAS Service Supplier whether a flight is approved.
//
// The client authenticates with a Keycloak client-credentials grant and
// calls GET {endpoint}/approve?UasID=... on the supplier. Tokens are cached
// by the oauth2 token source until they expire.
package uss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/flyvercity/c2ng/internal/config"
)

// requestTimeout bounds each outbound call, token fetches included, so a
// stalled supplier cannot hold a session open indefinitely.
const requestTimeout = 5 * time.Second

// Client is the approval client for one configured USS.
type Client struct {
	endpoint string
	tokens   oauth2.TokenSource
	http     *http.Client
}

// NewClient builds a Client from the uss configuration section.
// clientSecret is the OAuth client secret (C2NG_USS_CLIENT_SECRET).
func NewClient(cfg config.USSConfig, clientSecret string) *Client {
	httpClient := &http.Client{Timeout: requestTimeout}

	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.OAuth.Keycloak.AuthClientID,
		ClientSecret: clientSecret,
		TokenURL:     cfg.OAuth.Keycloak.TokenURL(),
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &Client{
		endpoint: cfg.Endpoint,
		tokens:   oauthCfg.TokenSource(tokenCtx),
		http:     httpClient,
	}
}

// Request asks the USS whether uasid is approved to fly. Transport failures,
// non-200 responses, and malformed bodies are all reported as errors; the
// caller decides how they surface.
func (c *Client) Request(ctx context.Context, uasid string) (bool, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return false, fmt.Errorf("uss: token: %w", err)
	}

	u := fmt.Sprintf("%s/approve?UasID=%s", c.endpoint, url.QueryEscape(uasid))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("uss: build request: %w", err)
	}
	// The USS expects the token in "Authentication", not "Authorization".
	req.Header.Set("Authentication", "Bearer "+tok.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("uss: approval request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("uss: approval request: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Approved *bool `json:"Approved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("uss: decode approval response: %w", err)
	}
	if body.Approved == nil {
		return false, errors.New("uss: approval response missing Approved")
	}
	return *body.Approved, nil
}
