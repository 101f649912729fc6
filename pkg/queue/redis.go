package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"WindowEdge/pkg/logger"
)

// RedisQueue is a publisher onto a capped Redis list. Newest messages are at
// the head; readers use Peek or their own BRPOP loop.
type RedisQueue struct {
	logger    *logger.Logger
	client    *redis.Client
	keyPrefix string
	maxLen    int64

	mu        sync.RWMutex
	isRunning bool
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithMaxLen caps the list; older messages are trimmed on every push.
func WithMaxLen(n int64) RedisQueueOption {
	return func(r *RedisQueue) {
		r.maxLen = n
	}
}

// NewRedisPublisher creates a publisher-only queue. Call Start before Enqueue.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	rq := &RedisQueue{
		logger:    lgr,
		client:    client,
		keyPrefix: "windowedge:queue",
		maxLen:    10000,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// Start verifies the connection.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("queue already running")
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.isRunning = true
	r.logger.Info("redis publisher started",
		logger.String("addr", r.client.Options().Addr),
		logger.String("key", r.QueueKey()))
	return nil
}

// Stop marks the queue stopped. The client is owned by the caller.
func (r *RedisQueue) Stop() {
	r.mu.Lock()
	r.isRunning = false
	r.mu.Unlock()
}

// NewMessage builds the envelope Enqueue pushes.
func NewMessage(msgType string, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Enqueue adds a message to the head of the list and trims it to maxLen.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) error {
	r.mu.RLock()
	running := r.isRunning
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}

	msgData, err := json.Marshal(NewMessage(msgType, payload))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := r.QueueKey()
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, msgData)
	if r.maxLen > 0 {
		pipe.LTrim(ctx, key, 0, r.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage publishes a message (implements QueueService).
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload any) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Peek returns up to n of the newest messages without removing them.
func (r *RedisQueue) Peek(ctx context.Context, n int64) ([]Message, error) {
	raw, err := r.client.LRange(ctx, r.QueueKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, s := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(s), &msg); err != nil {
			r.logger.Warn("skip malformed message", logger.Error(err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// QueueKey is the list key messages are pushed to.
func (r *RedisQueue) QueueKey() string {
	return r.keyPrefix + ":messages"
}

var _ QueueService = (*RedisQueue)(nil)
