package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/averyhale/booking-concierge/internal/scheduler"
)

// MemoryStore is a process-local session store for development and tests.
// Contexts are stored as JSON so callers cannot alias the stored value.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*scheduler.BookingContext, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}

	var bc scheduler.BookingContext
	if err := json.Unmarshal(entry.data, &bc); err != nil {
		return nil, fmt.Errorf("session: failed to decode context: %w", err)
	}
	return &bc, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, bc *scheduler.BookingContext) error {
	data, err := json.Marshal(bc)
	if err != nil {
		return fmt.Errorf("session: failed to marshal context: %w", err)
	}

	s.mu.Lock()
	s.entries[sessionID] = memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
