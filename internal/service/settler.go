package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// SettleModeDelay waits a fixed delay between trigger and reconcile.
	SettleModeDelay = "delay"
	// SettleModePoll polls the TP until the restructured archive is published.
	SettleModePoll = "poll"

	defaultSettleDelay  = time.Second
	defaultPollInterval = time.Second
	defaultPollAttempts = 10
)

// Settler waits for the backend to finish restructuring a TP before statuses are reconciled.
type Settler interface {
	Settle(ctx context.Context, courseID uint, tpNo int) error
	Name() string
}

// FixedDelaySettler waits a constant duration.
type FixedDelaySettler struct {
	Delay time.Duration
}

// NewFixedDelaySettler builds a fixed delay settler; non-positive delays use one second.
func NewFixedDelaySettler(delay time.Duration) FixedDelaySettler {
	if delay <= 0 {
		delay = defaultSettleDelay
	}
	return FixedDelaySettler{Delay: delay}
}

func (s FixedDelaySettler) Name() string { return SettleModeDelay }

func (s FixedDelaySettler) Settle(ctx context.Context, _ uint, _ int) error {
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollSettler polls the TP until its restructured path is set. Once the attempt budget
// is spent it returns nil so reconciliation still happens.
type PollSettler struct {
	backend  ProcessingBackend
	interval time.Duration
	attempts int
	logger   zerolog.Logger
}

// NewPollSettler builds a polling settler.
func NewPollSettler(backend ProcessingBackend, interval time.Duration, attempts int, logger zerolog.Logger) *PollSettler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}
	return &PollSettler{
		backend:  backend,
		interval: interval,
		attempts: attempts,
		logger:   logger.With().Str("component", "poll_settler").Logger(),
	}
}

func (s *PollSettler) Name() string { return SettleModePoll }

func (s *PollSettler) Settle(ctx context.Context, courseID uint, tpNo int) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		tp, err := s.backend.GetTP(ctx, courseID, tpNo)
		if err != nil {
			s.logger.Debug().Err(err).Int("attempt", attempt).Int("tp_no", tpNo).Msg("tp poll failed")
			continue
		}
		if tp.Downloadable() {
			return nil
		}
	}

	s.logger.Warn().Uint("course_id", courseID).Int("tp_no", tpNo).Int("attempts", s.attempts).
		Msg("restructured archive not published in time, reconciling anyway")
	return nil
}

// NewSettler selects a settler by mode name.
func NewSettler(mode string, backend ProcessingBackend, delay, interval time.Duration, attempts int, logger zerolog.Logger) Settler {
	if mode == SettleModePoll && backend != nil {
		return NewPollSettler(backend, interval, attempts, logger)
	}
	return NewFixedDelaySettler(delay)
}
