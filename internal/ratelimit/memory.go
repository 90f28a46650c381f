package ratelimit

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	stamps []time.Time
	window time.Duration
}

// MemoryStore keeps attempt timestamps in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	keys  map[string]*attempts
	clock func() time.Time
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		keys:  make(map[string]*attempts),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) IsLimited(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	now := s.clock()
	from := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.keys[key]
	if !ok {
		entry = &attempts{}
		s.keys[key] = entry
	}
	if window > entry.window {
		entry.window = window
	}

	entry.stamps = trimBefore(entry.stamps, from)
	if len(entry.stamps) >= max {
		return true, nil
	}
	entry.stamps = append(entry.stamps, now)
	return false, nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = make(map[string]*attempts)
	return nil
}

func (s *MemoryStore) ClearKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

// Sweep drops keys with no attempt inside their window and returns how many
// were removed.
func (s *MemoryStore) Sweep() int {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.keys {
		entry.stamps = trimBefore(entry.stamps, now.Add(-entry.window))
		if len(entry.stamps) == 0 {
			delete(s.keys, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// trimBefore drops timestamps older than from; stamps are in ascending order.
func trimBefore(stamps []time.Time, from time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(from) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
