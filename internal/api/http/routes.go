package httpapi

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/picogrid/legion-integration-samples/internal/oauth"
	"github.com/picogrid/legion-integration-samples/internal/station"
	"github.com/picogrid/legion-integration-samples/internal/store"
	"github.com/picogrid/legion-integration-samples/internal/weather"
)

var validate = validator.New()

// Deps are the services the HTTP surface dispatches to.
type Deps struct {
	Broker   *oauth.Broker
	Registry *station.Registry
	Weather  *weather.Client
	Sessions store.SessionStore
	Stations store.StationCache
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/connect", connectHandler(deps))
	app.Get("/oauth/callback", callbackHandler(deps))
	app.Post("/oauth/disconnect", disconnectHandler(deps))
	app.Get("/status", statusHandler(deps))

	api := app.Group("/api")
	api.Get("/weather/:orgId", weatherHandler(deps))
	api.Get("/weather-stations/:orgId", listStationsHandler(deps))
	api.Post("/weather-stations/:orgId", createStationHandler(deps))
	api.Post("/weather-stations/:orgId/:stationId/update", updateStationHandler(deps))
	api.Delete("/weather-stations/:orgId/:stationId", deleteStationHandler(deps))
}

func connectHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID := c.Query("org_id")
		if orgID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "org_id query parameter is required")
		}

		authURL, err := deps.Broker.Initiate(c.Context(), orgID)
		if err != nil {
			if errors.Is(err, oauth.ErrNotConfigured) {
				return fiber.NewError(fiber.StatusInternalServerError, "OAuth client is not configured")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.Redirect(authURL, fiber.StatusFound)
	}
}

const callbackSuccessPage = `<!DOCTYPE html>
<html>
<head><title>Connected</title></head>
<body>
<h1>Integration connected</h1>
<p>Organization <strong>%s</strong> is now connected. You can close this window.</p>
</body>
</html>`

func callbackHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := oauth.CallbackParams{
			Code:             c.Query("code"),
			State:            c.Query("state"),
			Error:            c.Query("error"),
			ErrorDescription: c.Query("error_description"),
		}

		session, err := deps.Broker.CompleteCallback(c.Context(), params)
		if err != nil {
			var upstream *oauth.UpstreamError
			if errors.As(err, &upstream) {
				return fiber.NewError(fiber.StatusBadRequest, upstream.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(fmt.Sprintf(callbackSuccessPage, session.OrgID))
	}
}

type disconnectRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
}

func disconnectHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req disconnectRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := deps.Broker.Disconnect(c.Context(), req.OrganizationID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "organization is not connected")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{"disconnected": req.OrganizationID})
	}
}

func statusHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessions, err := deps.Sessions.List(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		sizes := deps.Stations.Sizes()

		orgs := make([]fiber.Map, 0, len(sessions))
		for _, sess := range sessions {
			orgs = append(orgs, fiber.Map{
				"org_id":          sess.OrgID,
				"connected_at":    sess.ConnectedAt,
				"token_expired":   sess.Token.Expired(),
				"cached_stations": sizes[sess.OrgID],
			})
		}

		return c.JSON(fiber.Map{
			"connected_organizations": orgs,
			"count":                   len(orgs),
		})
	}
}

func weatherHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID := c.Params("orgId")
		if _, err := deps.Sessions.Get(c.Context(), orgID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "organization is not connected")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		city := c.Query("city")
		if city == "" {
			return fiber.NewError(fiber.StatusBadRequest, "city query parameter is required")
		}
		units := weather.Units(c.Query("units")).Normalize()

		current, err := deps.Weather.Current(c.Context(), city, units)
		if err != nil {
			switch {
			case errors.Is(err, weather.ErrCityNotFound):
				return fiber.NewError(fiber.StatusNotFound, "city not found")
			case errors.Is(err, weather.ErrNoAPIKey):
				return fiber.NewError(fiber.StatusInternalServerError, "weather API key is not configured")
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}

		return c.JSON(current)
	}
}

func listStationsHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stations, err := deps.Registry.List(c.Context(), c.Params("orgId"))
		if err != nil {
			return stationError(err)
		}
		return c.JSON(fiber.Map{"stations": stations, "count": len(stations)})
	}
}

type createStationRequest struct {
	City string `json:"city" validate:"required"`
}

func createStationHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createStationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entity, err := deps.Registry.Create(c.Context(), c.Params("orgId"), req.City)
		if err != nil {
			return stationError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"station": entity})
	}
}

func updateStationHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload, err := deps.Registry.UpdateWeather(c.Context(), c.Params("orgId"), c.Params("stationId"))
		if err != nil {
			return stationError(err)
		}
		return c.JSON(fiber.Map{"reading": payload})
	}
}

func deleteStationHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Registry.Delete(c.Context(), c.Params("orgId"), c.Params("stationId")); err != nil {
			return stationError(err)
		}
		return c.JSON(fiber.Map{"deleted": c.Params("stationId")})
	}
}

// stationError maps registry failures onto the error taxonomy.
func stationError(err error) error {
	switch {
	case errors.Is(err, station.ErrNotConnected):
		return fiber.NewError(fiber.StatusUnauthorized, "organization is not connected")
	case errors.Is(err, station.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "station not found")
	case errors.Is(err, station.ErrCityUnknown):
		return fiber.NewError(fiber.StatusNotFound, "city could not be geocoded")
	case errors.Is(err, station.ErrNoCity):
		return fiber.NewError(fiber.StatusBadRequest, "station has no city metadata")
	case errors.Is(err, weather.ErrCityNotFound):
		return fiber.NewError(fiber.StatusNotFound, "city not found")
	case errors.Is(err, weather.ErrNoAPIKey):
		return fiber.NewError(fiber.StatusInternalServerError, "weather API key is not configured")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
