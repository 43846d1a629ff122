package oauth

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/picogrid/legion-integration-samples/internal/store"
)

// Sweeper periodically deletes pending OAuth states that were never
// redeemed. Redis-backed stores expire states natively and make the
// sweep a no-op.
type Sweeper struct {
	scheduler *gocron.Scheduler
	states    store.StateStore
	ttl       time.Duration
	logger    zerolog.Logger
}

func NewSweeper(states store.StateStore, ttl time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		states:    states,
		ttl:       ttl,
		logger:    logger,
	}
}

// Start schedules the hourly sweep and starts the underlying scheduler.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.Every(1).Hour().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		removed, err := s.states.DeleteExpired(ctx, time.Now().UTC().Add(-s.ttl))
		if err != nil {
			s.logger.Error().Err(err).Msg("state sweep failed")
			return
		}
		if removed > 0 {
			s.logger.Info().Int("removed", removed).Msg("swept expired oauth states")
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future sweeps.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
