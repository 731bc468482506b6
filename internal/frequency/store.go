package frequency

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"popup-engine/internal/campaign"
	"popup-engine/internal/clock"
	"popup-engine/internal/kv"
	"popup-engine/internal/observability"
)

type Scope string

const (
	ScopeSession     Scope = "session"
	ScopeCalendarDay Scope = "calendar_day"
)

const sessionMarker = "1"

// Key derives the record key for a campaign in a scope.
func Key(scope Scope, campaignID string) string {
	return "popup:" + string(scope) + ":" + campaignID
}

// Store answers frequency-cap questions for one viewer. Session records go
// to the session bucket, calendar-day records to the durable bucket.
//
// Every storage failure is treated as "not capped": a broken medium may let
// a popup show too often but never suppresses it for good.
type Store struct {
	session kv.Bucket
	durable kv.Bucket
	clock   clock.Clock
	loc     *time.Location
	log     zerolog.Logger
}

func NewStore(session, durable kv.Bucket, clk clock.Clock, loc *time.Location, logger zerolog.Logger) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{session: session, durable: durable, clock: clk, loc: loc, log: logger}
}

func (s *Store) IsEligible(ctx context.Context, campaignID string, policy campaign.FrequencyPolicy) bool {
	switch policy {
	case campaign.OncePerSession:
		_, ok, err := s.get(ctx, s.session, Key(ScopeSession, campaignID))
		if err != nil {
			s.readFailed(err, campaignID, ScopeSession)
			return true
		}
		return !ok
	case campaign.OncePerCalendarDay:
		raw, ok, err := s.get(ctx, s.durable, Key(ScopeCalendarDay, campaignID))
		if err != nil {
			s.readFailed(err, campaignID, ScopeCalendarDay)
			return true
		}
		if !ok {
			return true
		}
		last, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.readFailed(err, campaignID, ScopeCalendarDay)
			return true
		}
		return dayBefore(last.In(s.loc), s.clock.Now().In(s.loc))
	default:
		return true
	}
}

func (s *Store) RecordShown(ctx context.Context, campaignID string, policy campaign.FrequencyPolicy) {
	var (
		scope  Scope
		bucket kv.Bucket
		value  string
	)
	switch policy {
	case campaign.OncePerSession:
		scope, bucket, value = ScopeSession, s.session, sessionMarker
	case campaign.OncePerCalendarDay:
		scope, bucket, value = ScopeCalendarDay, s.durable, s.clock.Now().In(s.loc).Format(time.RFC3339)
	default:
		return
	}
	if bucket == nil {
		s.writeFailed(kv.ErrUnavailable, campaignID, scope)
		return
	}
	if err := bucket.Set(ctx, Key(scope, campaignID), value); err != nil {
		s.writeFailed(err, campaignID, scope)
	}
}

func (s *Store) get(ctx context.Context, b kv.Bucket, key string) (string, bool, error) {
	if b == nil {
		return "", false, kv.ErrUnavailable
	}
	return b.Get(ctx, key)
}

func (s *Store) readFailed(err error, id string, scope Scope) {
	observability.FrequencyErrors.WithLabelValues("read").Inc()
	s.log.Warn().Err(err).Str("campaign_id", id).Str("scope", string(scope)).Msg("frequency read failed; treating as eligible")
}

func (s *Store) writeFailed(err error, id string, scope Scope) {
	observability.FrequencyErrors.WithLabelValues("write").Inc()
	s.log.Warn().Err(err).Str("campaign_id", id).Str("scope", string(scope)).Msg("frequency write failed")
}

// dayBefore reports whether a falls on a calendar date strictly before b.
// Both must already be in the viewer's location.
func dayBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
