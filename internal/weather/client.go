// Package weather fetches current conditions and geocoding results from
// the OpenWeatherMap API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/picogrid/legion-integration-samples/internal/httpx"
)

var (
	// ErrNoAPIKey means OPENWEATHER_API_KEY is not configured.
	ErrNoAPIKey = errors.New("weather: api key not configured")
	// ErrCityNotFound means the upstream does not know the city.
	ErrCityNotFound = errors.New("weather: city not found")
	// ErrInvalidAPIKey means the upstream rejected the key.
	ErrInvalidAPIKey = errors.New("weather: invalid api key")
)

// Client calls the OpenWeatherMap current-weather and geocoding APIs.
type Client struct {
	apiKey         string
	baseURL        string
	geoURL         string
	googleFallback bool
	httpCfg        httpx.ClientConfig
	circuit        *gobreaker.CircuitBreaker
	logger         zerolog.Logger
}

// NewClient builds a weather client. geocoderKey enables the Google
// geocoder fallback when non-empty.
func NewClient(client *http.Client, apiKey, geocoderKey string, logger zerolog.Logger) *Client {
	if geocoderKey != "" {
		geocoder.ApiKey = geocoderKey
	}

	c := NewClientWithBaseURLs(client, apiKey,
		"https://api.openweathermap.org/data/2.5/weather",
		"https://api.openweathermap.org/geo/1.0/direct",
		logger)
	c.googleFallback = geocoderKey != ""
	return c
}

// NewClientWithBaseURLs builds a client against explicit endpoints.
// Tests point this at local fakes.
func NewClientWithBaseURLs(client *http.Client, apiKey, baseURL, geoURL string, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:         apiKey,
		baseURL:        baseURL,
		geoURL:         geoURL,
		googleFallback: false,
		httpCfg: httpx.ClientConfig{
			Client:  client,
			Backoff: httpx.DefaultBackoff(),
		},
		circuit: httpx.NewBreaker("openweather"),
		logger:  logger,
	}
}

// Current fetches current conditions for a city.
func (c *Client) Current(ctx context.Context, city string, units Units) (CurrentWeather, error) {
	if c.apiKey == "" {
		return CurrentWeather{}, ErrNoAPIKey
	}
	units = units.Normalize()

	build := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", city)
		values.Set("appid", c.apiKey)
		values.Set("units", string(units))

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", c.baseURL, values.Encode()), nil)
	}

	resp, err := httpx.Do(ctx, c.httpCfg, c.circuit, build)
	if err != nil {
		return CurrentWeather{}, fmt.Errorf("weather fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return CurrentWeather{}, ErrCityNotFound
	case http.StatusUnauthorized:
		return CurrentWeather{}, ErrInvalidAPIKey
	default:
		return CurrentWeather{}, fmt.Errorf("weather fetch failed: status %d", resp.StatusCode)
	}

	var payload struct {
		Name string `json:"name"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			TempMin   float64 `json:"temp_min"`
			TempMax   float64 `json:"temp_max"`
			Humidity  int     `json:"humidity"`
			Pressure  int     `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
			Deg   int     `json:"deg"`
		} `json:"wind"`
		Clouds struct {
			All int `json:"all"`
		} `json:"clouds"`
		Visibility int `json:"visibility"`
		Weather    []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return CurrentWeather{}, fmt.Errorf("weather fetch failed: %w", err)
	}

	current := CurrentWeather{
		Location:    fmt.Sprintf("%s, %s", payload.Name, payload.Sys.Country),
		Temperature: int(math.Round(payload.Main.Temp)),
		FeelsLike:   int(math.Round(payload.Main.FeelsLike)),
		TempMin:     int(math.Round(payload.Main.TempMin)),
		TempMax:     int(math.Round(payload.Main.TempMax)),
		Humidity:    payload.Main.Humidity,
		WindSpeed:   payload.Wind.Speed,
		WindDeg:     payload.Wind.Deg,
		Pressure:    payload.Main.Pressure,
		VisibilityM: payload.Visibility,
		CloudsPct:   payload.Clouds.All,
		Units:       units,
		CapturedAt:  time.Now().UTC(),
	}
	if len(payload.Weather) > 0 {
		current.Condition = payload.Weather[0].Main
		current.Description = payload.Weather[0].Description
		current.Icon = payload.Weather[0].Icon
	}

	return current, nil
}

// Geocode resolves a city name to coordinates. Callers must treat a nil
// result as "not found"; failures are logged, not propagated.
func (c *Client) Geocode(ctx context.Context, city string) *GeoResult {
	if result := c.geocodeOpenWeather(ctx, city); result != nil {
		return result
	}
	if c.googleFallback {
		return c.geocodeGoogle(city)
	}
	return nil
}

func (c *Client) geocodeOpenWeather(ctx context.Context, city string) *GeoResult {
	if c.apiKey == "" {
		c.logger.Warn().Msg("geocoding skipped: no openweather api key")
		return nil
	}

	build := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", city)
		values.Set("limit", "1")
		values.Set("appid", c.apiKey)

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", c.geoURL, values.Encode()), nil)
	}

	resp, err := httpx.Do(ctx, c.httpCfg, c.circuit, build)
	if err != nil {
		c.logger.Warn().Err(err).Str("city", city).Msg("geocoding request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("city", city).Msg("geocoding returned non-OK status")
		return nil
	}

	var results []GeoResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		c.logger.Warn().Err(err).Str("city", city).Msg("geocoding decode failed")
		return nil
	}
	if len(results) == 0 {
		return nil
	}
	return &results[0]
}

func (c *Client) geocodeGoogle(city string) *GeoResult {
	location, err := geocoder.Geocoding(geocoder.Address{City: city})
	if err != nil {
		c.logger.Warn().Err(err).Str("city", city).Msg("google geocoder fallback failed")
		return nil
	}

	return &GeoResult{
		Name: city,
		Lat:  location.Latitude,
		Lon:  location.Longitude,
	}
}
