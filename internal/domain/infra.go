package domain

import (
	"context"
	"io"
	"time"
)

// LockManager provides distributed locking. Acquire returns ErrLockHeld when
// the key is held by another party; the returned unlock function is safe to
// call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides ephemeral pub/sub for live feeds and durable streams
// for the bid audit trail.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter stores immutable objects, used for closed-lot ledger snapshots.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
