package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process ProfileStore. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[uuid.UUID]State)}
}

// Put stores st as is, replacing any existing profile. It is meant for
// seeding and bypasses the version check.
func (s *MemoryStore) Put(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[st.UserID] = st.clone()
}

func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.profiles[userID]
	if !ok {
		return State{}, ErrProfileNotFound
	}
	return st.clone(), nil
}

func (s *MemoryStore) FindByChatID(_ context.Context, chatID string) (State, error) {
	if chatID == "" {
		return State{}, ErrProfileNotFound
	}
	return s.findOne(func(st State) bool { return st.ChatID == chatID })
}

func (s *MemoryStore) FindByCustomerID(_ context.Context, customerID string) (State, error) {
	if customerID == "" {
		return State{}, ErrProfileNotFound
	}
	return s.findOne(func(st State) bool { return st.GatewayCustomerID == customerID })
}

func (s *MemoryStore) FindBySubscriptionID(_ context.Context, subscriptionID string) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []State
	for _, st := range s.profiles {
		if subscriptionID != "" && st.GatewaySubscriptionID == subscriptionID {
			out = append(out, st.clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateIf(_ context.Context, st State, version int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.profiles[st.UserID]
	if !ok {
		return State{}, ErrProfileNotFound
	}
	if cur.Version != version {
		return State{}, ErrVersionMismatch
	}
	st.Version = version + 1
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	s.profiles[st.UserID] = st.clone()
	return st.clone(), nil
}

// findOne returns the most recently updated profile matching fn.
func (s *MemoryStore) findOne(fn func(State) bool) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found State
		ok    bool
	)
	for _, st := range s.profiles {
		if fn(st) && (!ok || st.UpdatedAt.After(found.UpdatedAt)) {
			found, ok = st, true
		}
	}
	if !ok {
		return State{}, ErrProfileNotFound
	}
	return found.clone(), nil
}
