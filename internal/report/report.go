// internal/report/report.go
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drawdash/drawdash/internal/scoring"
)

// DefaultQueueName is the Redis list the reporter pushes onto.
var DefaultQueueName = "drawdash_score_events"

// ScoreEventRecord is the wire shape of one reported score event.
type ScoreEventRecord struct {
	EventID   string `json:"event_id"`
	PlayerID  string `json:"player_id"`
	Type      string `json:"type"`
	Streak    int    `json:"streak,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// LeaderboardRecord is the wire shape of one reported leaderboard.
type LeaderboardRecord struct {
	RoomID    string                     `json:"room_id"`
	Entries   []scoring.LeaderboardEntry `json:"entries"`
	Timestamp int64                      `json:"timestamp"`
}

// Queue publishes score events and leaderboards onto a Redis list for
// out-of-process consumers. It satisfies the state machine's Reporter
// interface; the machine works fine with no queue attached.
type Queue struct {
	rdb   *redis.Client
	queue string
}

// New creates a Queue against an already-configured Redis client.
func New(rdb *redis.Client, queueName string) *Queue {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Queue{rdb: rdb, queue: queueName}
}

// ConnectFromEnv builds a Queue from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - REPORT_QUEUE_NAME (optional)
func ConnectFromEnv(ctx context.Context) (*Queue, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return New(rdb, os.Getenv("REPORT_QUEUE_NAME")), nil
}

// PublishScoreEvent serializes the event and pushes it onto the queue.
func (q *Queue) PublishScoreEvent(ctx context.Context, ev scoring.ScoreEvent) error {
	rec := ScoreEventRecord{
		EventID:   ev.ID.String(),
		PlayerID:  ev.PlayerID,
		Type:      string(ev.Type),
		Streak:    ev.Streak,
		Timestamp: ev.Timestamp.UnixMilli(),
	}
	return q.push(ctx, rec)
}

// PublishLeaderboard serializes a ranked leaderboard and pushes it onto the queue.
func (q *Queue) PublishLeaderboard(ctx context.Context, roomID string, entries []scoring.LeaderboardEntry) error {
	rec := LeaderboardRecord{
		RoomID:    roomID,
		Entries:   entries,
		Timestamp: time.Now().UnixMilli(),
	}
	return q.push(ctx, rec)
}

func (q *Queue) push(ctx context.Context, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal report record: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
