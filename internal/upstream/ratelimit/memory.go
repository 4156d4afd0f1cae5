package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps a sliding log of admission timestamps per class in
// process memory. Each class has its own lock so reads never wait on writes.
type MemoryStore struct {
	windows map[Class]*window
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewMemoryStore creates an empty store with one window per class.
func NewMemoryStore() *MemoryStore {
	windows := make(map[Class]*window, len(Classes))
	for _, class := range Classes {
		windows[class] = &window{}
	}
	return &MemoryStore{windows: windows}
}

// Admit prunes expired timestamps, then records now if the class is under its
// ceiling. A throttled decision leaves the window untouched.
func (s *MemoryStore) Admit(_ context.Context, class Class, limit Limit, now time.Time) (Decision, error) {
	w, ok := s.windows[class]
	if !ok {
		return Decision{}, fmt.Errorf("memory store: unknown class %q", class)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now.Add(-limit.Window))

	if len(w.stamps) < limit.Ceiling {
		w.stamps = append(w.stamps, now)
		return allowed(), nil
	}

	oldest := w.stamps[0]
	return throttled(oldest.Add(limit.Window).Sub(now)), nil
}

// Count returns the number of admissions still inside the window.
func (s *MemoryStore) Count(_ context.Context, class Class, limit Limit, now time.Time) (int, error) {
	w, ok := s.windows[class]
	if !ok {
		return 0, fmt.Errorf("memory store: unknown class %q", class)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now.Add(-limit.Window))
	return len(w.stamps), nil
}

// prune drops every timestamp at or before cutoff. Timestamps are appended in
// order so the expired ones always form a prefix.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(w.stamps, w.stamps[i:])
	w.stamps = w.stamps[:n]
}
