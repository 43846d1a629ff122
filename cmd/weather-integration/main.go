package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpapi "github.com/picogrid/legion-integration-samples/internal/api/http"
	"github.com/picogrid/legion-integration-samples/internal/config"
	"github.com/picogrid/legion-integration-samples/internal/legion"
	"github.com/picogrid/legion-integration-samples/internal/oauth"
	"github.com/picogrid/legion-integration-samples/internal/station"
	"github.com/picogrid/legion-integration-samples/internal/store"
	"github.com/picogrid/legion-integration-samples/internal/weather"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// Stores. Sessions and pending states move to Redis when configured;
	// the entity and feed caches always live in process memory.
	var (
		sessions store.SessionStore
		states   store.StateStore
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		sessions = store.NewRedisSessionStore(rdb)
		states = store.NewRedisStateStore(rdb, cfg.StateTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis-backed session and state stores")
	} else {
		sessions = store.NewMemorySessionStore()
		states = store.NewMemoryStateStore()
	}
	stations := store.NewMemoryStationCache()
	feeds := store.NewMemoryFeedCache()

	// Outbound clients.
	legionClient := legion.NewClient(cfg.LegionAPIURL, httpClient, log)
	weatherClient := weather.NewClient(httpClient, cfg.OpenWeatherAPIKey, cfg.GeocoderAPIKey, log)

	// Core services.
	broker := oauth.NewBroker(oauth.Credentials{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURI:  cfg.OAuthRedirectURI,
	}, legionClient, sessions, states, stations, feeds, log)

	registry := station.NewRegistry(legionClient, weatherClient, sessions, stations, feeds, log)

	// Hourly sweep of unredeemed OAuth states.
	sweeper := oauth.NewSweeper(states, cfg.StateTTL, log)
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start state sweeper")
	}
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "legion-weather-integration",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "legion-weather-integration",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Broker:   broker,
		Registry: registry,
		Weather:  weatherClient,
		Sessions: sessions,
		Stations: stations,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("server started")

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
