package session

import (
	"context"
	"sync"
	"time"

	"github.com/vincentagber/real-estate-crm/internal/domain"
)

const sweepInterval = 5 * time.Minute

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	stopCh  chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	payload   domain.SessionPayload
	expiresAt time.Time
}

// NewMemoryStore returns an in-process session store. Used in development
// and in tests; production deployments configure Redis.
func NewMemoryStore(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &memoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *memoryStore) Start(_ context.Context, id string, payload domain.SessionPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{payload: payload, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

func (s *memoryStore) Read(_ context.Context, id string) (domain.SessionPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return domain.SessionPayload{}, ErrNoSession
	}
	now := time.Now()
	if now.After(entry.expiresAt) {
		delete(s.entries, id)
		return domain.SessionPayload{}, ErrNoSession
	}
	entry.expiresAt = now.Add(s.ttl)
	s.entries[id] = entry
	return entry.payload, nil
}

func (s *memoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *memoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *memoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

func (s *memoryStore) Close() {
	s.once.Do(func() {
		close(s.stopCh)
	})
}
