package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ignatzorin/taskhub-backend/internal/goroutine"
)

// MemoryEventStore хранит обработанные события в памяти процесса.
// Используется, когда REDIS_URL не задан (локальная разработка, один экземпляр).
type MemoryEventStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryEventStore создаёт хранилище и запускает периодическую очистку до отмены ctx.
func NewMemoryEventStore(ctx context.Context) *MemoryEventStore {
	s := &MemoryEventStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}

	goroutine.SafeGoWithContext(ctx, "webhook-events-cleanup", func(ctx context.Context) {
		s.cleanup(ctx, 5*time.Minute)
	})

	return s
}

func (s *MemoryEventStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, ok := s.entries[eventID]
	if !ok {
		return false, nil
	}
	// просроченные записи удалит cleanup
	return s.now().Before(expiresAt), nil
}

func (s *MemoryEventStore) Remember(_ context.Context, eventID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[eventID] = s.now().Add(ttl)
	return nil
}

func (s *MemoryEventStore) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *MemoryEventStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, id)
		}
	}
}
