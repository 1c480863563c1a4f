package payment

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) (Record, error) {
	if rec.GatewayPaymentID == "" {
		return Record{}, ErrMissingGatewayID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.records[rec.GatewayPaymentID]
	if !ok {
		if rec.UserID == uuid.Nil {
			return Record{}, ErrMissingUser
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		s.records[rec.GatewayPaymentID] = rec
		return rec, nil
	}

	rec.UpdatedAt = now
	merged := Merge(existing, rec)
	s.records[rec.GatewayPaymentID] = merged
	return merged, nil
}

func (s *MemoryStore) FindByGatewayID(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) CountPendingForUser(_ context.Context, userID uuid.UUID, statuses []Status, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.UserID == userID && slices.Contains(statuses, rec.Status) && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, statuses []Status, since time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0)
	for _, rec := range s.records {
		if slices.Contains(statuses, rec.Status) && !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
