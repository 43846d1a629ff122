// Package legion is a thin bearer-authenticated JSON client for the
// Legion platform API: entities, locations, feed definitions, feed
// messages, and the OAuth token endpoint.
package legion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/picogrid/legion-integration-samples/internal/httpx"
)

var (
	// ErrNotFound maps a remote 404.
	ErrNotFound = errors.New("legion: not found")
	// ErrUnauthorized maps a remote 401 or 403.
	ErrUnauthorized = errors.New("legion: unauthorized")
)

// Client calls the Legion platform API.
type Client struct {
	baseURL string
	httpCfg httpx.ClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

func NewClient(baseURL string, client *http.Client, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: httpx.ClientConfig{
			Client:  client,
			Backoff: httpx.DefaultBackoff(),
		},
		circuit: httpx.NewBreaker("legion"),
		logger:  logger,
	}
}

// BaseURL returns the configured platform base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OAuthDetails fetches the platform's OAuth discovery document. The
// broker uses it to derive a token endpoint when the primary exchange
// fails.
func (c *Client) OAuthDetails(ctx context.Context) (OAuthDetails, error) {
	var details OAuthDetails
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v3/oauth2/details", "", nil, &details); err != nil {
		return OAuthDetails{}, err
	}
	return details, nil
}

// ExchangeCode posts the authorization-code grant as JSON to the
// platform's primary token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, req TokenExchangeRequest) (TokenResponse, error) {
	var token TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/oauth2/token", "", req, &token); err != nil {
		return TokenResponse{}, err
	}
	return token, nil
}

// ExchangeCodeForm posts the grant form-encoded to an explicit token
// endpoint. Used for the derived-endpoint fallback, where the endpoint
// convention is not ours to assume.
func (c *Client) ExchangeCodeForm(ctx context.Context, tokenURL string, req TokenExchangeRequest) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", req.GrantType)
	form.Set("code", req.Code)
	form.Set("client_id", req.ClientID)
	if req.ClientSecret != "" {
		form.Set("client_secret", req.ClientSecret)
	}
	form.Set("redirect_uri", req.RedirectURI)
	encoded := form.Encode()

	build := func() (*http.Request, error) {
		httpReq, err := http.NewRequest(http.MethodPost, tokenURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return httpReq, nil
	}

	resp, err := httpx.Do(ctx, c.httpCfg, c.circuit, build)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return TokenResponse{}, err
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	return token, nil
}

// SearchEntities returns entities matching the filter. The platform has
// returned both a {"results": [...]} envelope and a bare array from this
// endpoint, so both shapes are accepted.
func (c *Client) SearchEntities(ctx context.Context, accessToken string, filter EntityFilter) ([]json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v3/entities/search", accessToken, filter, &raw); err != nil {
		return nil, err
	}
	return normalizeList(raw)
}

func (c *Client) GetEntity(ctx context.Context, accessToken, entityID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v3/entities/"+url.PathEscape(entityID), accessToken, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) CreateEntity(ctx context.Context, accessToken string, req CreateEntityRequest) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v3/entities", accessToken, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) DeleteEntity(ctx context.Context, accessToken, entityID string) error {
	return c.doJSON(ctx, http.MethodDelete, c.baseURL+"/v3/entities/"+url.PathEscape(entityID), accessToken, nil, nil)
}

func (c *Client) AttachLocation(ctx context.Context, accessToken, entityID string, req AttachLocationRequest) error {
	u := c.baseURL + "/v3/entities/" + url.PathEscape(entityID) + "/locations"
	return c.doJSON(ctx, http.MethodPost, u, accessToken, req, nil)
}

func (c *Client) SearchFeedDefinitions(ctx context.Context, accessToken, feedType string) ([]json.RawMessage, error) {
	body := map[string]string{"feed_type": feedType}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v3/feed-definitions/search", accessToken, body, &raw); err != nil {
		return nil, err
	}
	return normalizeList(raw)
}

func (c *Client) CreateFeedDefinition(ctx context.Context, accessToken string, req CreateFeedDefinitionRequest) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v3/feed-definitions", accessToken, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) PushMessage(ctx context.Context, accessToken string, req PushMessageRequest) error {
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/v3/messages", accessToken, req, nil)
}

// doJSON performs one authenticated JSON round trip through the
// resilience helper. A nil out discards the response body.
func (c *Client) doJSON(ctx context.Context, method, u, accessToken string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	build := func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, u, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
		return req, nil
	}

	resp, err := httpx.Do(ctx, c.httpCfg, c.circuit, build)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("legion: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}

// normalizeList flattens either a {"results": [...]} envelope or a bare
// array into a flat list.
func normalizeList(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode entity list: %w", err)
		}
		return list, nil
	}

	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode entity envelope: %w", err)
	}
	return envelope.Results, nil
}
