// internal/cache/journal.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for move records.
var DefaultQueueName = "chessrelay_moves"

// MoveRecord holds the minimal info an out-of-process historian needs to
// replay what happened in a room. Authoritative room state itself is
// never persisted; this queue is a side channel only.
type MoveRecord struct {
	RoomCode  string    `json:"room_code"`
	ActorID   uuid.UUID `json:"actor_id"`
	EventType string    `json:"event_type"`
	Move      string    `json:"move,omitempty"`
	FEN       string    `json:"fen,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp int64     `json:"timestamp"` // epoch seconds
}

// Journal pushes move records onto a Redis list. A nil *Journal is valid
// and drops everything, so callers never have to branch on whether the
// journal is configured.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect initializes a Journal against the given Redis address and
// verifies connectivity with a short ping.
func Connect(addr, queue string) (*Journal, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Journal{rdb: rdb, queue: queue}, nil
}

// Publish serializes the record to JSON and pushes it onto the queue.
// Safe on a nil Journal.
func (j *Journal) Publish(ctx context.Context, record MoveRecord) error {
	if j == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal MoveRecord: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}
