package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"popup-engine/internal/catalog"
	"popup-engine/internal/storage"
)

// ListenAndRefresh rebuilds the campaign catalog whenever the campaign table
// notifies a change. It returns when ctx is cancelled.
func ListenAndRefresh(ctx context.Context, st *storage.Postgres, cat *catalog.Catalog, channel string, baseBackoff time.Duration) {
	if channel == "" {
		channel = st.ListenChannel()
	}
	for {
		err := listen(ctx, st, cat, channel)
		if ctx.Err() != nil {
			log.Info().Msg("listener stopped")
			return
		}
		backoff := jitter(baseBackoff)
		log.Error().Err(err).Dur("retry_in", backoff).Msg("listener connection lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func listen(ctx context.Context, st *storage.Postgres, cat *catalog.Catalog, channel string) error {
	conn, err := st.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("listening for campaign changes")

	// catch up on anything missed while disconnected
	if err := cat.Refresh(ctx, st); err != nil {
		log.Error().Err(err).Msg("refresh catalog error")
	}

	var lastRefresh time.Time
	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if time.Since(lastRefresh) < 200*time.Millisecond {
			continue // debounce burst of notifications
		}
		lastRefresh = time.Now()
		log.Info().Str("channel", ntf.Channel).Msg("campaigns changed; refreshing catalog")
		if err := cat.Refresh(ctx, st); err != nil {
			log.Error().Err(err).Msg("refresh catalog error")
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
