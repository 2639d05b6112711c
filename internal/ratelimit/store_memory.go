package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sliding windows in process memory. Each key has its own
// mutex so unrelated tenants never serialize on a shared lock.
type MemoryStore struct {
	windows sync.Map // map[string]*window
	stopCh  chan struct{}
}

// minIdleEviction is the floor for idle eviction; keys with longer budget
// windows are kept for at least their own window so a saturated client
// cannot shed its history early.
const minIdleEviction = 5 * time.Minute

type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	size     time.Duration
	lastSeen time.Time
}

// NewMemoryStore creates the store and starts its cleanup goroutine.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &MemoryStore{stopCh: make(chan struct{})}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Stop stops the cleanup goroutine.
func (s *MemoryStore) Stop() {
	close(s.stopCh)
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup drops idle windows. A key must be idle for its own window size
// (at least minIdleEviction) before eviction, otherwise deleting it would
// hand a saturated client a fresh budget mid-window.
func (s *MemoryStore) cleanup() {
	now := time.Now()
	s.windows.Range(func(key, value interface{}) bool {
		w := value.(*window) //nolint:errcheck // type guaranteed by sync.Map usage
		w.mu.Lock()
		idle := minIdleEviction
		if w.size > idle {
			idle = w.size
		}
		expired := now.Sub(w.lastSeen) >= idle
		w.mu.Unlock()
		if expired {
			s.windows.Delete(key)
		}
		return true
	})
}

// Take implements Store. Purge, count, and insert happen under the per-key
// lock, so concurrent checks never over-admit.
func (s *MemoryStore) Take(_ context.Context, key string, windowSize time.Duration, limit int) (bool, time.Duration, error) {
	wI, _ := s.windows.LoadOrStore(key, &window{})
	w := wI.(*window) //nolint:errcheck // type guaranteed by sync.Map usage

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.lastSeen = now
	w.size = windowSize

	cutoff := now.Add(-windowSize)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= limit {
		// Oldest stamp leaving the window frees the next slot
		retryAfter := w.stamps[0].Add(windowSize).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	w.stamps = append(w.stamps, now)
	return true, 0, nil
}
