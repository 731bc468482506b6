package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_EndDropsRecords(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(nil)

	require.NoError(t, s.Bucket("s1").Set(ctx, "k", "1"))
	_, ok, err := s.Bucket("s1").Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, _ = s.Bucket("s2").Get(ctx, "k")
	assert.False(t, ok, "sessions must not share records")

	assert.True(t, s.End("s1"))
	assert.False(t, s.End("s1"))

	_, ok, _ = s.Bucket("s1").Get(ctx, "k")
	assert.False(t, ok)
}

func TestSessions_Expire(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessions(func() time.Time { return now })

	s.Bucket("old")
	now = now.Add(20 * time.Minute)
	s.Bucket("fresh")
	now = now.Add(20 * time.Minute)

	gone := s.Expire(30 * time.Minute)
	assert.Equal(t, []string{"old"}, gone)
	assert.Equal(t, 1, s.Len())
}

func TestSessions_TouchKeepsSessionAlive(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessions(func() time.Time { return now })

	assert.False(t, s.Touch("s1"), "touch does not create")
	assert.Equal(t, 0, s.Len())

	s.Bucket("s1")
	for i := 0; i < 7; i++ {
		now = now.Add(5 * time.Minute)
		assert.True(t, s.Touch("s1"))
		assert.Empty(t, s.Expire(30*time.Minute))
	}
	assert.Equal(t, 1, s.Len())
}
