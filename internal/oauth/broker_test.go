package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-integration-samples/internal/legion"
	"github.com/picogrid/legion-integration-samples/internal/store"
)

type brokerFixture struct {
	broker   *Broker
	states   *store.MemoryStateStore
	sessions *store.MemorySessionStore
	stations *store.MemoryStationCache
	feeds    *store.MemoryFeedCache
}

func newBrokerFixture(t *testing.T, legionURL string) *brokerFixture {
	t.Helper()

	f := &brokerFixture{
		states:   store.NewMemoryStateStore(),
		sessions: store.NewMemorySessionStore(),
		stations: store.NewMemoryStationCache(),
		feeds:    store.NewMemoryFeedCache(),
	}
	f.broker = NewBroker(
		Credentials{ClientID: "client-1", ClientSecret: "secret", RedirectURI: "http://localhost:8080/oauth/callback"},
		legion.NewClient(legionURL, &http.Client{Timeout: 5 * time.Second}, zerolog.Nop()),
		f.sessions, f.states, f.stations, f.feeds,
		zerolog.Nop(),
	)
	return f
}

func TestInitiateRequiresClientID(t *testing.T) {
	f := newBrokerFixture(t, "http://legion.invalid")
	f.broker.creds.ClientID = ""

	_, err := f.broker.Initiate(context.Background(), "org-1")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestInitiateBuildsAuthorizationURL(t *testing.T) {
	f := newBrokerFixture(t, "http://legion.invalid")

	authURL, err := f.broker.Initiate(context.Background(), "org-1")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "/oauth2/authorize", parsed.Path)

	q := parsed.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "client-1", q.Get("client_id"))
	require.Equal(t, "org-1", q.Get("organization_id"))
	require.NotEmpty(t, q.Get("state"))

	// The state must be pending in the store.
	st, err := f.states.Consume(context.Background(), q.Get("state"))
	require.NoError(t, err)
	require.Equal(t, "org-1", st.OrgID)
}

func TestCompleteCallbackUpstreamError(t *testing.T) {
	f := newBrokerFixture(t, "http://legion.invalid")

	_, err := f.broker.CompleteCallback(context.Background(), CallbackParams{
		Error:            "access_denied",
		ErrorDescription: "user declined",
	})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, "access_denied", upstream.Code)
}

func TestCompleteCallbackStateConsumedOnce(t *testing.T) {
	var exchanges int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			http.NotFound(w, r)
			return
		}
		exchanges++
		token := "opaque-token"
		if exchanges > 1 {
			token = signToken(t, map[string]any{"org_id": "jwt-org"})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  token,
			"refresh_token": "refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer ts.Close()

	f := newBrokerFixture(t, ts.URL)

	authURL, err := f.broker.Initiate(context.Background(), "state-org")
	require.NoError(t, err)
	state := mustQueryParam(t, authURL, "state")

	// First redemption resolves the organization from the stored state.
	sess, err := f.broker.CompleteCallback(context.Background(), CallbackParams{Code: "code-1", State: state})
	require.NoError(t, err)
	require.Equal(t, "state-org", sess.OrgID)
	require.False(t, sess.Token.ExpiresAt.IsZero())

	// Replaying the same state must NOT reuse the original organization:
	// the entry is gone, so resolution falls through to the token claims.
	sess, err = f.broker.CompleteCallback(context.Background(), CallbackParams{Code: "code-2", State: state})
	require.NoError(t, err)
	require.Equal(t, "jwt-org", sess.OrgID)
}

func TestCompleteCallbackUnresolvableOrg(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "opaque", "expires_in": 3600})
	}))
	defer ts.Close()

	f := newBrokerFixture(t, ts.URL)

	_, err := f.broker.CompleteCallback(context.Background(), CallbackParams{Code: "code", State: "never-registered"})
	require.ErrorIs(t, err, ErrOrgUnresolved)
}

func TestCompleteCallbackDerivedEndpointFallback(t *testing.T) {
	var mux http.ServeMux
	var fallbackForm url.Values

	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media type", http.StatusBadRequest)
	})
	var ts *httptest.Server
	mux.HandleFunc("/v3/oauth2/details", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"authorization_url": ts.URL + "/realms/legion/auth",
		})
	})
	mux.HandleFunc("/realms/legion/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
		fallbackForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{"access_token": "opaque", "expires_in": 60})
	})
	ts = httptest.NewServer(&mux)
	defer ts.Close()

	f := newBrokerFixture(t, ts.URL)

	authURL, err := f.broker.Initiate(context.Background(), "org-9")
	require.NoError(t, err)
	state := mustQueryParam(t, authURL, "state")

	sess, err := f.broker.CompleteCallback(context.Background(), CallbackParams{Code: "code-9", State: state})
	require.NoError(t, err)
	require.Equal(t, "org-9", sess.OrgID)

	require.Equal(t, "authorization_code", fallbackForm.Get("grant_type"))
	require.Equal(t, "code-9", fallbackForm.Get("code"))
	require.Equal(t, "client-1", fallbackForm.Get("client_id"))
}

func TestDeriveTokenEndpoint(t *testing.T) {
	tests := []struct {
		authURL string
		want    string
	}{
		{"https://id.example.com/oauth2/authorize", "https://id.example.com/oauth2/token"},
		{"https://id.example.com/oauth2/authorize?client_id=x", "https://id.example.com/oauth2/token"},
		{"https://id.example.com/realms/legion/auth", "https://id.example.com/realms/legion/token"},
		{"https://id.example.com/oauth2/v2/login", "https://id.example.com/oauth2/token"},
		{"https://id.example.com/oauth2", "https://id.example.com/oauth2/token"},
		{"https://id.example.com/login", "https://id.example.com/login/token"},
	}

	for _, tt := range tests {
		if got := DeriveTokenEndpoint(tt.authURL); got != tt.want {
			t.Errorf("DeriveTokenEndpoint(%q) = %q, want %q", tt.authURL, got, tt.want)
		}
	}
}

func TestDisconnect(t *testing.T) {
	f := newBrokerFixture(t, "http://legion.invalid")
	ctx := context.Background()

	require.ErrorIs(t, f.broker.Disconnect(ctx, "ghost"), store.ErrNotFound)

	require.NoError(t, f.sessions.Put(ctx, store.Session{OrgID: "org-1", ConnectedAt: time.Now()}))
	f.stations.Append("org-1", json.RawMessage(`{"id":"station-1"}`))
	f.feeds.Put("org-1-weather-data", json.RawMessage(`{"id":"feed-1"}`))
	f.feeds.Put("org-2-weather-data", json.RawMessage(`{"id":"feed-2"}`))

	require.NoError(t, f.broker.Disconnect(ctx, "org-1"))

	_, err := f.sessions.Get(ctx, "org-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, ok := f.stations.Get("org-1")
	require.False(t, ok)

	_, ok = f.feeds.Get("org-1-weather-data")
	require.False(t, ok)
	_, ok = f.feeds.Get("org-2-weather-data")
	require.True(t, ok, "other organizations' feed definitions must survive")
}

func mustQueryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	v := parsed.Query().Get(key)
	require.NotEmpty(t, v)
	return v
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := &UpstreamError{Code: "access_denied", Description: "user declined"}
	require.True(t, strings.Contains(err.Error(), "access_denied"))
	require.True(t, strings.Contains(err.Error(), "user declined"))
}
