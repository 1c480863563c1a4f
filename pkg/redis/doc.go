// Package redis connects to Redis with go-redis/v9 and exposes a readiness
// probe. The client is shared by the webhook deduplicator and the
// distributed per-user locker.
package redis
