package kv

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned by buckets whose backing medium is gone
// (closed store, disabled storage).
var ErrUnavailable = errors.New("kv: storage unavailable")

// Bucket is a string key-value namespace. A missing key is reported as
// ok=false with a nil error.
type Bucket interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Map is an in-memory Bucket.
type Map struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMap() *Map { return &Map{m: map[string]string{}} }

func (b *Map) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[key]
	return v, ok, nil
}

func (b *Map) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = value
	return nil
}

func (b *Map) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}

type session struct {
	bucket   *Map
	lastSeen time.Time
}

// Sessions holds one session-lifetime bucket per browsing session id.
// Ending a session drops its bucket and every record in it.
type Sessions struct {
	mu  sync.Mutex
	now func() time.Time
	m   map[string]*session
}

func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{now: now, m: map[string]*session{}}
}

// Bucket returns the bucket for id, creating it on first use.
func (s *Sessions) Bucket(id string) Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		sess = &session{bucket: NewMap()}
		s.m[id] = sess
	}
	sess.lastSeen = s.now()
	return sess.bucket
}

// Touch marks the session as active without creating it. Reports whether
// the session exists.
func (s *Sessions) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if ok {
		sess.lastSeen = s.now()
	}
	return ok
}

// End drops the session. Reports whether it existed.
func (s *Sessions) End(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[id]
	delete(s.m, id)
	return ok
}

// Expire ends every session not touched within ttl and returns their ids.
func (s *Sessions) Expire(ttl time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	var out []string
	for id, sess := range s.m {
		if sess.lastSeen.Before(cutoff) {
			delete(s.m, id)
			out = append(out, id)
		}
	}
	return out
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
