// Package scheduler runs the periodic health card sweep.
package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/logging"
)

const sweepTimeout = 5 * time.Minute

type CardRefresher interface {
	RefreshAll(ctx context.Context) (int, error)
}

// Sweep recomputes every stored health card on a cron schedule.
type Sweep struct {
	cron     *cron.Cron
	cards    CardRefresher
	schedule string
	logger   zerolog.Logger
}

// NewSweep returns nil when schedule is empty.
func NewSweep(schedule string, cards CardRefresher, logger zerolog.Logger) (*Sweep, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, nil
	}
	logger = logger.With().Str("component", "health_card_sweep").Logger()
	s := &Sweep{
		cron:     cron.New(cron.WithLogger(logging.NewCronAdapter(logger))),
		cards:    cards,
		schedule: schedule,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return nil, errors.Wrapf(err, "invalid refresh schedule %q", schedule)
	}
	return s, nil
}

// Run performs one sweep.
func (s *Sweep) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.cards.RefreshAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("refreshed", n).Msg("scheduled health card refresh failed")
		return
	}
	s.logger.Info().Int("refreshed", n).Dur("duration", time.Since(start)).Msg("health cards refreshed")
}

func (s *Sweep) Start() {
	s.logger.Info().Str("schedule", s.schedule).Msg("health card sweep scheduled")
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweep) Stop() {
	<-s.cron.Stop().Done()
}
