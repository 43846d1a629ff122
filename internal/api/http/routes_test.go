package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-integration-samples/internal/legion"
	"github.com/picogrid/legion-integration-samples/internal/oauth"
	"github.com/picogrid/legion-integration-samples/internal/station"
	"github.com/picogrid/legion-integration-samples/internal/store"
	"github.com/picogrid/legion-integration-samples/internal/weather"
)

func newTestApp(t *testing.T) (*fiber.App, store.SessionStore) {
	t.Helper()

	httpClient := &http.Client{Timeout: 5 * time.Second}
	sessions := store.NewMemorySessionStore()
	states := store.NewMemoryStateStore()
	stations := store.NewMemoryStationCache()
	feeds := store.NewMemoryFeedCache()

	legionClient := legion.NewClient("http://legion.invalid", httpClient, zerolog.Nop())
	weatherClient := weather.NewClientWithBaseURLs(httpClient, "", "http://weather.invalid", "http://weather.invalid", zerolog.Nop())

	broker := oauth.NewBroker(
		oauth.Credentials{ClientID: "client-1", RedirectURI: "http://localhost:8080/oauth/callback"},
		legionClient, sessions, states, stations, feeds, zerolog.Nop(),
	)
	registry := station.NewRegistry(legionClient, weatherClient, sessions, stations, feeds, zerolog.Nop())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})
	RegisterRoutes(app, Deps{
		Broker:   broker,
		Registry: registry,
		Weather:  weatherClient,
		Sessions: sessions,
		Stations: stations,
	})
	return app, sessions
}

func TestConnectRequiresOrgID(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/connect", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConnectRedirects(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/connect?org_id=org-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location := resp.Header.Get("Location")
	require.Contains(t, location, "/oauth2/authorize")
	require.Contains(t, location, "organization_id=org-1")
	require.Contains(t, location, "state=")
}

func TestCallbackUpstreamError(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied&error_description=declined", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWeatherRequiresSession(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/weather/org-1?city=London", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWeatherRequiresCity(t *testing.T) {
	app, sessions := newTestApp(t)
	require.NoError(t, sessions.Put(context.Background(), store.Session{OrgID: "org-1", ConnectedAt: time.Now()}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/weather/org-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWeatherWithoutAPIKeyIsConfigError(t *testing.T) {
	app, sessions := newTestApp(t)
	require.NoError(t, sessions.Put(context.Background(), store.Session{OrgID: "org-1", ConnectedAt: time.Now()}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/weather/org-1?city=London", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "not configured")
}

func TestStationsRequireSession(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/weather-stations/org-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateStationValidation(t *testing.T) {
	app, sessions := newTestApp(t)
	require.NoError(t, sessions.Put(context.Background(), store.Session{OrgID: "org-1", ConnectedAt: time.Now()}))

	req := httptest.NewRequest(http.MethodPost, "/api/weather-stations/org-1", strings.NewReader(`{}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisconnectUnknownOrg(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/oauth/disconnect", strings.NewReader(`{"organization_id":"ghost"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDisconnectValidation(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/oauth/disconnect", strings.NewReader(`{}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusReportsSessions(t *testing.T) {
	app, sessions := newTestApp(t)
	require.NoError(t, sessions.Put(context.Background(), store.Session{
		OrgID:       "org-1",
		Token:       store.Token{ExpiresAt: time.Now().Add(-time.Minute)},
		ConnectedAt: time.Now(),
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count int `json:"count"`
		Orgs  []struct {
			OrgID        string `json:"org_id"`
			TokenExpired bool   `json:"token_expired"`
		} `json:"connected_organizations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "org-1", body.Orgs[0].OrgID)
	require.True(t, body.Orgs[0].TokenExpired)
}
