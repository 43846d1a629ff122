// Package oauth implements the authorization-code flow against the
// Legion platform: redirect initiation, callback handling with token
// exchange, organization-ID resolution, and disconnect.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/picogrid/legion-integration-samples/internal/legion"
	"github.com/picogrid/legion-integration-samples/internal/store"
)

var (
	// ErrNotConfigured means no OAuth client ID is set.
	ErrNotConfigured = errors.New("oauth: client id not configured")
	// ErrOrgUnresolved means no organization identifier could be
	// recovered from state or token claims.
	ErrOrgUnresolved = errors.New("oauth: could not resolve organization id")
)

// UpstreamError carries an error the authorization server passed to the
// callback instead of a code.
type UpstreamError struct {
	Code        string
	Description string
}

func (e *UpstreamError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization server error: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization server error: %s", e.Code)
}

// Credentials are the integration's OAuth client settings.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// CallbackParams are the query parameters delivered to the callback.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Broker drives the authorization-code flow and owns the per-org session
// lifecycle.
type Broker struct {
	creds    Credentials
	legion   *legion.Client
	sessions store.SessionStore
	states   store.StateStore
	stations store.StationCache
	feeds    store.FeedCache
	logger   zerolog.Logger
}

func NewBroker(
	creds Credentials,
	legionClient *legion.Client,
	sessions store.SessionStore,
	states store.StateStore,
	stations store.StationCache,
	feeds store.FeedCache,
	logger zerolog.Logger,
) *Broker {
	return &Broker{
		creds:    creds,
		legion:   legionClient,
		sessions: sessions,
		states:   states,
		stations: stations,
		feeds:    feeds,
		logger:   logger,
	}
}

// Initiate records a pending state for the organization and returns the
// authorization URL to redirect the user to.
func (b *Broker) Initiate(ctx context.Context, orgID string) (string, error) {
	if orgID == "" {
		return "", fmt.Errorf("organization id is required")
	}
	if b.creds.ClientID == "" {
		return "", ErrNotConfigured
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	if err := b.states.Put(ctx, state, store.State{OrgID: orgID, CreatedAt: time.Now().UTC()}); err != nil {
		return "", fmt.Errorf("record state: %w", err)
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", b.creds.ClientID)
	values.Set("organization_id", orgID)
	values.Set("redirect_uri", b.creds.RedirectURI)
	values.Set("state", state)

	return fmt.Sprintf("%s/oauth2/authorize?%s", b.legion.BaseURL(), values.Encode()), nil
}

// CompleteCallback exchanges the authorization code for tokens and stores
// the organization session. The organization is resolved from the pending
// state when this service issued the redirect, or from the access token's
// claims when the flow was initiated externally.
func (b *Broker) CompleteCallback(ctx context.Context, params CallbackParams) (store.Session, error) {
	if params.Error != "" {
		return store.Session{}, &UpstreamError{Code: params.Error, Description: params.ErrorDescription}
	}

	// Each state is redeemable exactly once; a replayed state falls
	// through to claim-based resolution below.
	var orgID string
	if params.State != "" {
		st, err := b.states.Consume(ctx, params.State)
		if err == nil {
			orgID = st.OrgID
		} else if !errors.Is(err, store.ErrNotFound) {
			return store.Session{}, fmt.Errorf("consume state: %w", err)
		}
	}

	token, err := b.exchange(ctx, params.Code)
	if err != nil {
		return store.Session{}, err
	}

	if orgID == "" {
		decoded, err := DecodeOrganizationID(token.AccessToken)
		if err != nil {
			b.logger.Warn().Err(err).Msg("could not decode organization id from access token")
		}
		orgID = decoded
	}
	if orgID == "" {
		return store.Session{}, ErrOrgUnresolved
	}

	session := store.Session{
		OrgID: orgID,
		Token: store.Token{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			TokenType:    token.TokenType,
			Scope:        token.Scope,
		},
		ConnectedAt: time.Now().UTC(),
	}
	if token.ExpiresIn > 0 {
		session.Token.ExpiresAt = time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	if err := b.sessions.Put(ctx, session); err != nil {
		return store.Session{}, fmt.Errorf("store session: %w", err)
	}

	b.logger.Info().Str("org_id", orgID).Msg("organization connected")
	return session, nil
}

// exchange tries the primary token endpoint, then falls back once to an
// endpoint derived from the platform's advertised authorization URL.
func (b *Broker) exchange(ctx context.Context, code string) (legion.TokenResponse, error) {
	req := legion.TokenExchangeRequest{
		GrantType:    "authorization_code",
		Code:         code,
		ClientID:     b.creds.ClientID,
		ClientSecret: b.creds.ClientSecret,
		RedirectURI:  b.creds.RedirectURI,
	}

	token, primaryErr := b.legion.ExchangeCode(ctx, req)
	if primaryErr == nil {
		return token, nil
	}
	b.logger.Warn().Err(primaryErr).Msg("primary token exchange failed, trying derived endpoint")

	details, err := b.legion.OAuthDetails(ctx)
	if err != nil || details.AuthorizationURL == "" {
		return legion.TokenResponse{}, fmt.Errorf("token exchange failed: %w", primaryErr)
	}

	tokenURL := DeriveTokenEndpoint(details.AuthorizationURL)
	token, err = b.legion.ExchangeCodeForm(ctx, tokenURL, req)
	if err != nil {
		return legion.TokenResponse{}, fmt.Errorf("token exchange failed (derived endpoint %s): %w", tokenURL, err)
	}
	return token, nil
}

// DeriveTokenEndpoint rewrites an authorization URL into a token URL.
// This is a documented heuristic, not protocol-guaranteed: the real token
// endpoint convention should be confirmed with the authorization server.
func DeriveTokenEndpoint(authURL string) string {
	base := authURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "/")

	switch {
	case strings.HasSuffix(base, "/authorize"):
		return strings.TrimSuffix(base, "/authorize") + "/token"
	case strings.HasSuffix(base, "/auth"):
		return strings.TrimSuffix(base, "/auth") + "/token"
	case strings.Contains(base, "/oauth2/"):
		i := strings.Index(base, "/oauth2/")
		return base[:i] + "/oauth2/token"
	case strings.HasSuffix(base, "/oauth2"):
		return base + "/token"
	default:
		return base + "/token"
	}
}

// Disconnect removes the organization's session and every cache entry
// derived from it.
func (b *Broker) Disconnect(ctx context.Context, orgID string) error {
	if err := b.sessions.Delete(ctx, orgID); err != nil {
		return err
	}

	b.stations.Clear(orgID)
	b.feeds.ClearOrg(orgID)

	b.logger.Info().Str("org_id", orgID).Msg("organization disconnected")
	return nil
}
