package sweeper

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeExpirer struct {
	visitTTL, sessionTTL time.Duration
	calls                int
}

func (f *fakeExpirer) Expire(ttl time.Duration) int {
	f.visitTTL = ttl
	f.calls++
	return 2
}

func (f *fakeExpirer) ExpireSessions(ttl time.Duration) []string {
	f.sessionTTL = ttl
	return []string{"s1"}
}

func TestSweep(t *testing.T) {
	f := &fakeExpirer{}
	s := New(f, time.Minute, time.Hour, zerolog.Nop())
	s.Sweep()

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, time.Minute, f.visitTTL)
	assert.Equal(t, time.Hour, f.sessionTTL)
}

func TestRegister(t *testing.T) {
	s := New(&fakeExpirer{}, time.Minute, time.Minute, zerolog.Nop())
	assert.NoError(t, s.Register("@every 1m"))
	assert.NoError(t, s.AddJob("*/5 * * * *", "refresh", func() {}))
	assert.Error(t, s.Register("not a spec"))
	assert.Len(t, s.Cron.Entries(), 2)
}
