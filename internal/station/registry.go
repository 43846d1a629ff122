// Package station is a cached write-through proxy over the platform's
// entity and feed APIs for "weather station" sensor entities.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/picogrid/legion-integration-samples/internal/legion"
	"github.com/picogrid/legion-integration-samples/internal/store"
	"github.com/picogrid/legion-integration-samples/internal/weather"
)

const (
	stationCategory = "SENSOR"
	stationType     = "weather-station"

	feedName        = "weather-data"
	feedDescription = "Periodic weather readings relayed from OpenWeatherMap"
	feedCategory    = "MESSAGE"
	feedContentType = "application/json"
)

var (
	// ErrNotConnected means the organization has no active session.
	ErrNotConnected = errors.New("station: organization not connected")
	// ErrNotFound means the station is unknown locally and remotely.
	ErrNotFound = errors.New("station: not found")
	// ErrCityUnknown means the city could not be geocoded.
	ErrCityUnknown = errors.New("station: city could not be geocoded")
	// ErrNoCity means the station entity carries no city metadata.
	ErrNoCity = errors.New("station: entity metadata has no city")
)

// Registry manages weather-station entities for connected organizations.
// Entity JSON is cached per organization and written through to the
// platform; the cache is invalidated only on disconnect.
type Registry struct {
	legion   *legion.Client
	weather  *weather.Client
	sessions store.SessionStore
	stations store.StationCache
	feeds    store.FeedCache
	logger   zerolog.Logger
}

func NewRegistry(
	legionClient *legion.Client,
	weatherClient *weather.Client,
	sessions store.SessionStore,
	stations store.StationCache,
	feeds store.FeedCache,
	logger zerolog.Logger,
) *Registry {
	return &Registry{
		legion:   legionClient,
		weather:  weatherClient,
		sessions: sessions,
		stations: stations,
		feeds:    feeds,
		logger:   logger,
	}
}

// List returns the organization's stations, from cache when populated,
// otherwise from a remote search. A remote not-found is an empty list.
func (r *Registry) List(ctx context.Context, orgID string) ([]json.RawMessage, error) {
	sess, err := r.session(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if cached, ok := r.stations.Get(orgID); ok {
		return cached, nil
	}

	results, err := r.legion.SearchEntities(ctx, sess.Token.AccessToken, legion.EntityFilter{
		Category: stationCategory,
		Type:     stationType,
	})
	if err != nil {
		if errors.Is(err, legion.ErrNotFound) {
			return []json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("search stations: %w", err)
	}

	r.stations.Replace(orgID, results)
	return results, nil
}

// Create geocodes the city, creates the sensor entity, attaches its ECEF
// point location, and ensures the shared weather feed exists.
func (r *Registry) Create(ctx context.Context, orgID, city string) (json.RawMessage, error) {
	sess, err := r.session(ctx, orgID)
	if err != nil {
		return nil, err
	}

	geo := r.weather.Geocode(ctx, city)
	if geo == nil {
		return nil, ErrCityUnknown
	}

	entity, err := r.legion.CreateEntity(ctx, sess.Token.AccessToken, legion.CreateEntityRequest{
		Name:     fmt.Sprintf("Weather Station - %s", geo.Name),
		Category: stationCategory,
		Type:     stationType,
		Metadata: map[string]any{
			"city":         geo.Name,
			"country":      geo.Country,
			"latitude":     geo.Lat,
			"longitude":    geo.Lon,
			"capabilities": []string{"temperature", "humidity", "pressure", "wind"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create station entity: %w", err)
	}

	x, y, z := GeodeticToECEF(geo.Lat, geo.Lon, 0)
	probe := probeEntity(entity)
	err = r.legion.AttachLocation(ctx, sess.Token.AccessToken, probe.ID, legion.AttachLocationRequest{
		Position:   legion.Position{X: x, Y: y, Z: z},
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("attach station location: %w", err)
	}

	r.stations.Append(orgID, entity)

	if _, err := r.ensureFeed(ctx, sess.Token.AccessToken, orgID); err != nil {
		return nil, err
	}

	r.logger.Info().Str("org_id", orgID).Str("station_id", probe.ID).Str("city", geo.Name).Msg("station created")
	return entity, nil
}

// UpdateWeather fetches current conditions for the station's city and
// pushes a reading into the shared weather feed. Returns the pushed
// payload.
func (r *Registry) UpdateWeather(ctx context.Context, orgID, stationID string) (map[string]any, error) {
	sess, err := r.session(ctx, orgID)
	if err != nil {
		return nil, err
	}

	entity, err := r.find(ctx, sess.Token.AccessToken, orgID, stationID)
	if err != nil {
		return nil, err
	}

	probe := probeEntity(entity)
	if probe.Metadata.City == "" {
		return nil, ErrNoCity
	}

	current, err := r.weather.Current(ctx, probe.Metadata.City, weather.UnitsMetric)
	if err != nil {
		return nil, err
	}

	def, err := r.ensureFeed(ctx, sess.Token.AccessToken, orgID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"temperature":         current.Temperature,
		"feels_like":          current.FeelsLike,
		"humidity":            current.Humidity,
		"pressure":            current.Pressure,
		"visibility":          current.VisibilityM,
		"wind_speed":          current.WindSpeed,
		"wind_direction":      current.WindDeg,
		"weather_condition":   current.Condition,
		"weather_description": current.Description,
		"cloud_cover":         current.CloudsPct,
		"observed_at":         current.CapturedAt.Format(time.RFC3339),
	}

	err = r.legion.PushMessage(ctx, sess.Token.AccessToken, legion.PushMessageRequest{
		EntityID:         stationID,
		FeedDefinitionID: def.ID,
		MessageID:        uuid.NewString(),
		Payload:          payload,
		RecordedAt:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("push feed message: %w", err)
	}

	return payload, nil
}

// Delete removes the remote entity, then the cache entry. There is no
// rollback if the remote delete succeeds and a later step fails.
func (r *Registry) Delete(ctx context.Context, orgID, stationID string) error {
	sess, err := r.session(ctx, orgID)
	if err != nil {
		return err
	}

	if err := r.legion.DeleteEntity(ctx, sess.Token.AccessToken, stationID); err != nil {
		if errors.Is(err, legion.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete station entity: %w", err)
	}

	r.stations.Remove(orgID, stationID)
	return nil
}

func (r *Registry) session(ctx context.Context, orgID string) (store.Session, error) {
	sess, err := r.sessions.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Session{}, ErrNotConnected
		}
		return store.Session{}, err
	}
	return sess, nil
}

// find looks the station up in cache, falling back to a remote fetch
// that also populates the cache.
func (r *Registry) find(ctx context.Context, accessToken, orgID, stationID string) (json.RawMessage, error) {
	if cached, ok := r.stations.Get(orgID); ok {
		for _, raw := range cached {
			if probeEntity(raw).ID == stationID {
				return raw, nil
			}
		}
	}

	entity, err := r.legion.GetEntity(ctx, accessToken, stationID)
	if err != nil {
		if errors.Is(err, legion.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch station: %w", err)
	}

	r.stations.Append(orgID, entity)
	return entity, nil
}

type feedDefinition struct {
	ID string `json:"id"`
}

// ensureFeed finds or creates the shared weather feed definition for the
// organization, caching the result under "{org}-{feed name}".
func (r *Registry) ensureFeed(ctx context.Context, accessToken, orgID string) (feedDefinition, error) {
	key := orgID + "-" + feedName

	if raw, ok := r.feeds.Get(key); ok {
		var def feedDefinition
		if err := json.Unmarshal(raw, &def); err == nil && def.ID != "" {
			return def, nil
		}
	}

	var raw json.RawMessage
	found, err := r.legion.SearchFeedDefinitions(ctx, accessToken, feedName)
	if err != nil && !errors.Is(err, legion.ErrNotFound) {
		return feedDefinition{}, fmt.Errorf("search feed definitions: %w", err)
	}
	if len(found) > 0 {
		raw = found[0]
	} else {
		raw, err = r.legion.CreateFeedDefinition(ctx, accessToken, legion.CreateFeedDefinitionRequest{
			Name:        feedName,
			Description: feedDescription,
			Category:    feedCategory,
			FeedType:    feedName,
			ContentType: feedContentType,
		})
		if err != nil {
			return feedDefinition{}, fmt.Errorf("create feed definition: %w", err)
		}
	}

	r.feeds.Put(key, raw)

	var def feedDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return feedDefinition{}, fmt.Errorf("decode feed definition: %w", err)
	}
	return def, nil
}

type entityProbe struct {
	ID       string `json:"id"`
	Metadata struct {
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"metadata"`
}

func probeEntity(raw json.RawMessage) entityProbe {
	var probe entityProbe
	json.Unmarshal(raw, &probe)
	return probe
}
