package sweeper

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Expirer is the part of the visit registry the sweeper drives.
type Expirer interface {
	Expire(ttl time.Duration) int
	ExpireSessions(ttl time.Duration) []string
}

// Sweeper runs periodic housekeeping: idle visits are torn down and idle
// browsing sessions end, dropping their session-scoped records.
type Sweeper struct {
	Cron       *cron.Cron
	visits     Expirer
	visitTTL   time.Duration
	sessionTTL time.Duration
	log        zerolog.Logger
}

func New(visits Expirer, visitTTL, sessionTTL time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		Cron:       cron.New(),
		visits:     visits,
		visitTTL:   visitTTL,
		sessionTTL: sessionTTL,
		log:        logger,
	}
}

// Register schedules the sweep on spec (standard cron or "@every 1m").
func (s *Sweeper) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.Sweep); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	return nil
}

// AddJob schedules an extra housekeeping job on the same cron.
func (s *Sweeper) AddJob(spec, name string, job func()) error {
	if _, err := s.Cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	return nil
}

func (s *Sweeper) Start() {
	s.Cron.Start()
	s.log.Info().Msg("sweeper started")
}

// Stop waits for a running job to finish.
func (s *Sweeper) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) Sweep() {
	visits := s.visits.Expire(s.visitTTL)
	sessions := s.visits.ExpireSessions(s.sessionTTL)
	if visits > 0 || len(sessions) > 0 {
		s.log.Info().Int("visits", visits).Int("sessions", len(sessions)).Msg("expired idle state")
	}
}
