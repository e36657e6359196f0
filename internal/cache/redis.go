// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/models"
)

// DefaultQueueName is the Redis list the historian process consumes hand
// records from.
const DefaultQueueName = "table_hands"

// HandRecord is the minimal terminal report of one hand, pushed for the
// out-of-process historian. Best-effort: losing a record never affects play.
type HandRecord struct {
	TableID int64                 `json:"table_id"`
	GameID  int64                 `json:"game_id"`
	Bank    int64                 `json:"bank"`
	Results []models.PlayerResult `json:"results"`
	EndedAt int64                 `json:"ended_at"`
}

// History is the hand-history queue over Redis.
type History struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// ConnectHistory dials Redis and verifies it answers. queue falls back to
// DefaultQueueName when empty.
func ConnectHistory(ctx context.Context, addr string, db int, queue string, log *logrus.Logger) (*History, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	return &History{rdb: rdb, queue: queue, log: log}, nil
}

// PushHand serializes the record and appends it to the queue.
func (h *History) PushHand(ctx context.Context, rec HandRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal hand record: %w", err)
	}
	if err := h.rdb.RPush(ctx, h.queue, data).Err(); err != nil {
		return fmt.Errorf("rpush to %s: %w", h.queue, err)
	}
	return nil
}

// Close releases the client.
func (h *History) Close() error {
	return h.rdb.Close()
}
