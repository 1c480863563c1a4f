package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers which webhook events were handled.
//
// Claim marks an event as in progress and reports false when it is already
// in progress or done. Complete marks it done; Release forgets a claim so a
// redelivery can try again.
type Deduplicator interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

const (
	markerProcessing = "processing"
	markerDone       = "done"
)

// RedisDeduplicator keeps claims as Redis keys with a TTL, so they are
// shared by every replica.
type RedisDeduplicator struct {
	client        redis.UniversalClient
	prefix        string
	processingTTL time.Duration
	doneTTL       time.Duration
}

// NewRedisDeduplicator returns a Redis backed Deduplicator. Keys are
// prefix + "webhook:" + event id.
func NewRedisDeduplicator(client redis.UniversalClient, prefix string, processingTTL, doneTTL time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{
		client:        client,
		prefix:        prefix + "webhook:",
		processingTTL: processingTTL,
		doneTTL:       doneTTL,
	}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+eventID, markerProcessing, d.processingTTL).Result()
}

func (d *RedisDeduplicator) Complete(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, d.prefix+eventID, markerDone, d.doneTTL).Err()
}

func (d *RedisDeduplicator) Release(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, d.prefix+eventID).Err()
}

// MemoryDeduplicator is an in-process Deduplicator.
type MemoryDeduplicator struct {
	mu            sync.Mutex
	entries       map[string]memoryEntry
	processingTTL time.Duration
	doneTTL       time.Duration
	now           func() time.Time
}

type memoryEntry struct {
	marker  string
	expires time.Time
}

func NewMemoryDeduplicator(processingTTL, doneTTL time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		entries:       make(map[string]memoryEntry),
		processingTTL: processingTTL,
		doneTTL:       doneTTL,
		now:           time.Now,
	}
}

func (d *MemoryDeduplicator) Claim(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if e, ok := d.entries[eventID]; ok && now.Before(e.expires) {
		return false, nil
	}
	d.entries[eventID] = memoryEntry{marker: markerProcessing, expires: now.Add(d.processingTTL)}
	d.evict(now)
	return true, nil
}

func (d *MemoryDeduplicator) Complete(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[eventID] = memoryEntry{marker: markerDone, expires: d.now().Add(d.doneTTL)}
	return nil
}

func (d *MemoryDeduplicator) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, eventID)
	return nil
}

// evict drops expired entries. Callers hold d.mu.
func (d *MemoryDeduplicator) evict(now time.Time) {
	for id, e := range d.entries {
		if !now.Before(e.expires) {
			delete(d.entries, id)
		}
	}
}
