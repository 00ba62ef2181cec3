package ratelimit

import (
	"context"
	"sync"
	"time"

	"agentvault/internal/platform/clock"
)

// MemoryStore keeps fixed-window counters in a process-local map. State
// resets on restart; there is no cross-process coordination.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryStore{clock: clk, windows: make(map[string]*window)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, windowLen time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	w := s.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowLen)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Reset clears the counter for a key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}
